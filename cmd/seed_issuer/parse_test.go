package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const emisorOK = `<?xml version="1.0" encoding="UTF-8"?>
<emisor empresa="6f1c2a4e-8a0b-4b8e-9d2f-2f4c1e7b9a10" ruc="80026598-0">
  <nombre>DE generado en ambiente de prueba</nombre>
  <tipoContribuyente>2</tipoContribuyente>
  <actividad cod="46510">Comercio al por mayor</actividad>
  <direccion>Avda. Mcal. López</direccion>
  <numeroCasa>1234</numeroCasa>
  <departamento cod="1">CAPITAL</departamento>
  <ciudad cod="1">ASUNCION (DISTRITO)</ciudad>
  <timbrado numero="12560693" tipo="1" establecimiento="001" punto="001" desde="1" hasta="9999999" inicio="2023-01-01"/>
  <timbrado numero="12560693" tipo="5" establecimiento="001" punto="001" desde="1" hasta="500" inicio="2023-01-01" inactivo="true"/>
</emisor>`

func TestParseIssuerXML(t *testing.T) {
	seed, err := parseIssuerXML(strings.NewReader(emisorOK))
	require.NoError(t, err)

	assert.Equal(t, "80026598", seed.Issuer.RUC)
	assert.Equal(t, 0, seed.Issuer.DV)
	assert.Equal(t, 2, seed.Issuer.TaxpayerType)
	assert.Equal(t, "46510", seed.Issuer.ActivityCode)
	assert.Equal(t, 1, seed.Issuer.DepartmentID)
	assert.Equal(t, "ASUNCION (DISTRITO)", seed.Issuer.City)

	require.Len(t, seed.Timbrados, 2)
	assert.True(t, seed.Timbrados[0].IsActive)
	assert.False(t, seed.Timbrados[1].IsActive)
	assert.Equal(t, int64(500), seed.Timbrados[1].RangeTo)
	assert.Equal(t, "2023-01-01", seed.Timbrados[0].ValidFrom.Format("2006-01-02"))
}

func TestParseIssuerXML_Latin1(t *testing.T) {
	doc := strings.Replace(emisorOK, `encoding="UTF-8"`, `encoding="ISO-8859-1"`, 1)
	var buf bytes.Buffer
	w := charmap.ISO8859_1.NewEncoder().Writer(&buf)
	_, err := w.Write([]byte(doc))
	require.NoError(t, err)

	seed, err := parseIssuerXML(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Avda. Mcal. López", seed.Issuer.Address)
}

func TestParseIssuerXML_Errores(t *testing.T) {
	cases := map[string]string{
		"dv incorrecto":   strings.Replace(emisorOK, `ruc="80026598-0"`, `ruc="80026598-3"`, 1),
		"empresa no uuid": strings.Replace(emisorOK, `empresa="6f1c2a4e-8a0b-4b8e-9d2f-2f4c1e7b9a10"`, `empresa="x"`, 1),
		"timbrado corto":  strings.Replace(emisorOK, `numero="12560693" tipo="1"`, `numero="125" tipo="1"`, 1),
		"tipo inválido":   strings.Replace(emisorOK, `tipo="5"`, `tipo="9"`, 1),
		"rango invertido": strings.Replace(emisorOK, `hasta="500"`, `hasta="0"`, 1),
		"sin ciudad":      strings.Replace(emisorOK, `<ciudad cod="1">`, `<ciudad cod="">`, 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseIssuerXML(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
