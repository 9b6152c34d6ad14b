package sifen_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
)

const (
	testCSC    = "ABCD0000000000000000000000000000"
	testDigest = "Rm9vQmFyRGlnZXN0VmFsdWUxMjM0NTY3ODkwPT0="
)

func testQRInput() infra.QRInput {
	return infra.QRInput{
		CDC:                "01800265980001001000000122023051911234567890",
		EmissionDate:       emission,
		ReceiverIsTaxpayer: true,
		ReceiverID:         "80026598",
		GrandTotal:         dec("131000"),
		TotalIVA:           dec("11000"),
		ItemCount:          2,
		DigestValue:        testDigest,
	}
}

func TestQRFormatter_OrdenYHash(t *testing.T) {
	f := infra.NewQRFormatter("test", "1", testCSC, "")
	tok, err := f.Format(testQRInput())
	require.NoError(t, err)

	wantQuery := "nVersion=150" +
		"&Id=01800265980001001000000122023051911234567890" +
		"&dFeEmiDE=" + hex.EncodeToString([]byte("2023-05-19T10:30:00")) +
		"&dRucRec=80026598" +
		"&dTotGralOpe=131000.0000" +
		"&dTotIVA=11000.0000" +
		"&cItems=2" +
		"&DigestValue=" + hex.EncodeToString([]byte(testDigest)) +
		"&IdCSC=0001"
	assert.Equal(t, wantQuery, tok.Query)

	sum := sha256.Sum256([]byte(wantQuery + testCSC))
	assert.Equal(t, hex.EncodeToString(sum[:]), tok.Hash)
	assert.Equal(t, infra.QRBaseURLTest+wantQuery+"&cHashQR="+tok.Hash, tok.URL)
}

func TestQRFormatter_NuncaExponeElCSC(t *testing.T) {
	tok, err := infra.NewQRFormatter("prod", "2", testCSC, "").Format(testQRInput())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok.URL, infra.QRBaseURLProd))
	assert.NotContains(t, tok.URL, testCSC)
}

func TestQRFormatter_ReceptorNoContribuyente(t *testing.T) {
	in := testQRInput()
	in.ReceiverIsTaxpayer = false
	in.ReceiverID = "1234567"
	tok, err := infra.NewQRFormatter("test", "1", testCSC, "").Format(in)
	require.NoError(t, err)
	assert.Contains(t, tok.Query, "&dNumIDRec=1234567&")
	assert.NotContains(t, tok.Query, "dRucRec")
}

func TestQRFormatter_DatosFaltantes(t *testing.T) {
	f := infra.NewQRFormatter("test", "1", testCSC, "")

	in := testQRInput()
	in.DigestValue = ""
	_, err := f.Format(in)
	assert.True(t, domain.IsValidation(err))

	_, err = infra.NewQRFormatter("test", "1", "", "").Format(testQRInput())
	assert.True(t, domain.IsValidation(err))
}

func TestVerifyQR(t *testing.T) {
	tok, err := infra.NewQRFormatter("test", "1", testCSC, "").Format(testQRInput())
	require.NoError(t, err)

	require.NoError(t, infra.VerifyQR(tok.URL, testCSC))

	tampered := strings.Replace(tok.URL, "dTotGralOpe=131000.0000", "dTotGralOpe=1.0000", 1)
	err = infra.VerifyQR(tampered, testCSC)
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))

	assert.Error(t, infra.VerifyQR(tok.URL, "OTRO-CSC"))
	assert.True(t, domain.IsValidation(infra.VerifyQR("https://ekuatia.set.gov.py/consultas/qr", testCSC)))
}

func TestEmbedQR_DespuesDeLaFirma(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<rDE><dVerFor>150</dVerFor><DE Id="x"/><Signature/></rDE>`))

	require.NoError(t, infra.EmbedQR(doc, "https://qr/1"))
	require.NoError(t, infra.EmbedQR(doc, "https://qr/2"))

	children := doc.Root().ChildElements()
	require.Len(t, children, 4)
	assert.Equal(t, "Signature", children[2].Tag)
	assert.Equal(t, "gCamFuFD", children[3].Tag)
	assert.Equal(t, "https://qr/2", children[3].SelectElement("dCarQR").Text())
}

func TestEmbedQR_SinFirmaFalla(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<rDE><DE Id="x"/></rDE>`))
	err := infra.EmbedQR(doc, "https://qr/1")
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))
}

func TestQRPNG(t *testing.T) {
	png, err := infra.QRPNG("https://ekuatia.set.gov.py/consultas-test/qr?nVersion=150")
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
