package storage_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/infrastructure/storage"
)

const cdc = "01800265980001001000000122023051911234567890"

var day = time.Date(2023, 5, 19, 10, 30, 0, 0, time.UTC)

func TestArtifactStore_RutasPorDia(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := storage.NewArtifactStore(fs, "/artefactos")

	p, err := s.WriteSigned(day, cdc, []byte("<rDE/>"))
	require.NoError(t, err)
	assert.Equal(t, "/artefactos/2023-05-19/"+cdc+"-signed.xml", p)

	p, err = s.WriteSOAP(day, cdc, "siRecepDE", "request", []byte("<env/>"))
	require.NoError(t, err)
	assert.Equal(t, "/artefactos/2023-05-19/"+cdc+"-siRecepDE-request.xml", p)

	p, err = s.WriteQR(day, cdc, []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, s.Path(day, cdc+"-qr.png"), p)

	data, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	// Sin temporales residuales.
	entries, err := afero.ReadDir(fs, "/artefactos/2023-05-19")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestArtifactStore_XMLCanonico(t *testing.T) {
	s := storage.NewArtifactStore(afero.NewMemMapFs(), "/a")
	p, err := s.WriteXML(day, cdc, []byte(`<?xml version="1.0" encoding="UTF-8"?><rDE b="2" a="1"><dVerFor>150</dVerFor><vacio/></rDE>`))
	require.NoError(t, err)

	data, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, `<rDE a="1" b="2"><dVerFor>150</dVerFor><vacio></vacio></rDE>`, string(data))

	_, err = s.WriteXML(day, cdc, []byte("<rDE>"))
	assert.Error(t, err)
}

func TestArtifactStore_Sobrescribe(t *testing.T) {
	s := storage.NewArtifactStore(afero.NewMemMapFs(), "/a")
	_, err := s.WriteSigned(day, cdc, []byte("v1"))
	require.NoError(t, err)
	p, err := s.WriteSigned(day, cdc, []byte("v2"))
	require.NoError(t, err)
	data, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestArtifactStore_EntradasInvalidas(t *testing.T) {
	s := storage.NewArtifactStore(afero.NewMemMapFs(), "/a")
	_, err := s.WriteSOAP(day, cdc, "siRecepDE", "otro", nil)
	assert.Error(t, err)
	_, err = s.WriteSigned(day, "../escape", []byte("x"))
	assert.Error(t, err)
}
