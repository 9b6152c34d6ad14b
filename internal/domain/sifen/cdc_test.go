package sifen_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/sifen"
	pkgsifen "github.com/jhoicas/sifen-api/pkg/sifen"
)

// ──────────────────────────────────────────────────────────────────────────────
// Cuerpo esperado para los parámetros de buildCDCParams:
//
//	"01" + "80026598" + "0" + "001" + "001" + "0000001" + "2" + "20230519" + "1" + "123456789"
// ──────────────────────────────────────────────────────────────────────────────

const testCDCBody = "0180026598000100100000012202305191123456789"

func buildCDCParams() sifen.CDCParams {
	return sifen.CDCParams{
		DocType:       pkgsifen.DocInvoice,
		IssuerRUC:     "80026598",
		IssuerDV:      0,
		Establishment: "1",
		PointOfSale:   "001",
		Sequence:      1,
		TaxpayerType:  pkgsifen.TaxpayerLegal,
		EmissionDate:  time.Date(2023, 5, 19, 10, 30, 0, 0, time.Local),
		SecurityCode:  "123456789",
	}
}

func TestGenerateCDC_EstructuraExacta(t *testing.T) {
	cdc, dv, err := sifen.GenerateCDC(buildCDCParams())
	require.NoError(t, err)

	assert.Len(t, cdc, sifen.CDCLength)
	assert.Equal(t, testCDCBody, cdc[:43])
	assert.Equal(t, pkgsifen.CheckDigit(testCDCBody, 11), dv)
	assert.Equal(t, strconv.Itoa(dv), cdc[43:])
	for _, c := range cdc {
		assert.True(t, c >= '0' && c <= '9', "el CDC debe ser numérico")
	}
}

func TestGenerateCDC_Determinista(t *testing.T) {
	a, _, err := sifen.GenerateCDC(buildCDCParams())
	require.NoError(t, err)
	b, _, err := sifen.GenerateCDC(buildCDCParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p := buildCDCParams()
	p.SecurityCode = "987654321"
	c, _, err := sifen.GenerateCDC(p)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "otro código de seguridad produce otro CDC")
}

func TestGenerateCDC_CamposFueraDeRango(t *testing.T) {
	cases := map[string]func(*sifen.CDCParams){
		"ruc largo":        func(p *sifen.CDCParams) { p.IssuerRUC = "123456789" },
		"ruc no numérico":  func(p *sifen.CDCParams) { p.IssuerRUC = "80A26598" },
		"establecimiento":  func(p *sifen.CDCParams) { p.Establishment = "1000" },
		"secuencia":        func(p *sifen.CDCParams) { p.Sequence = 10_000_000 },
		"tipo documento":   func(p *sifen.CDCParams) { p.DocType = 9 },
		"código seguridad": func(p *sifen.CDCParams) { p.SecurityCode = "1234567890" },
		"fecha vacía":      func(p *sifen.CDCParams) { p.EmissionDate = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := buildCDCParams()
			mutate(&p)
			_, _, err := sifen.GenerateCDC(p)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestGenerateCDC_BaseConfigurable(t *testing.T) {
	p := buildCDCParams()
	p.CheckDigitBase = 9
	cdc, dv, err := sifen.GenerateCDC(p)
	require.NoError(t, err)
	assert.Equal(t, pkgsifen.CheckDigit(testCDCBody, 9), dv)
	assert.Len(t, cdc, sifen.CDCLength)
}

func TestValidateCDC(t *testing.T) {
	cdc, dv, err := sifen.GenerateCDC(buildCDCParams())
	require.NoError(t, err)
	require.NoError(t, sifen.ValidateCDC(cdc, 11))

	tampered := cdc[:43] + strconv.Itoa((dv+1)%10)
	assert.Error(t, sifen.ValidateCDC(tampered, 11))
	assert.Error(t, sifen.ValidateCDC(cdc[:43], 11))
	assert.Error(t, sifen.ValidateCDC("A"+cdc[1:], 11))
}

func TestParseCDC(t *testing.T) {
	cdc, dv, err := sifen.GenerateCDC(buildCDCParams())
	require.NoError(t, err)

	parts, err := sifen.ParseCDC(cdc, 11)
	require.NoError(t, err)
	assert.Equal(t, pkgsifen.DocInvoice, parts.DocType)
	assert.Equal(t, "80026598", parts.IssuerRUC)
	assert.Equal(t, "001", parts.Establishment)
	assert.Equal(t, "001", parts.PointOfSale)
	assert.Equal(t, int64(1), parts.Sequence)
	assert.Equal(t, 2, parts.TaxpayerType)
	assert.Equal(t, "2023-05-19", parts.EmissionDate.Format("2006-01-02"))
	assert.Equal(t, 1, parts.EmissionType)
	assert.Equal(t, "123456789", parts.SecurityCode)
	assert.Equal(t, dv, parts.CheckDigit)
}

func TestParseCDC_TopeDePesos(t *testing.T) {
	params := buildCDCParams()
	params.CheckDigitBase = 9
	cdc, dv, err := sifen.GenerateCDC(params)
	require.NoError(t, err)
	assert.Equal(t, 4, dv)

	parts, err := sifen.ParseCDC(cdc, 9)
	require.NoError(t, err)
	assert.Equal(t, 4, parts.CheckDigit)

	_, err = sifen.ParseCDC(cdc, 11)
	assert.True(t, domain.IsValidation(err))
}

func TestNewSecurityCode(t *testing.T) {
	code, err := sifen.NewSecurityCode()
	require.NoError(t, err)
	assert.Len(t, code, 9)
	_, err = strconv.Atoi(code)
	assert.NoError(t, err)
}
