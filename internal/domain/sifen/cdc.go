// Package sifen contiene las reglas de dominio del documento electrónico SIFEN:
// generación del CDC, cálculo de totales y validaciones previas a cualquier envío.
package sifen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// CDCLength largo total del CDC: 43 dígitos de datos + 1 dígito verificador.
const CDCLength = 44

const securityCodeWidth = 9

// CDCParams campos que componen el CDC.
type CDCParams struct {
	DocType        sifen.DocumentType
	IssuerRUC      string // sin DV
	IssuerDV       int
	Establishment  string
	PointOfSale    string
	Sequence       int64
	TaxpayerType   int
	EmissionDate   time.Time
	SecurityCode   string
	CheckDigitBase int // 0 = sifen.DefaultCheckDigitBase
}

// CDCParts descomposición de un CDC existente.
type CDCParts struct {
	DocType       sifen.DocumentType
	IssuerRUC     string
	IssuerDV      int
	Establishment string
	PointOfSale   string
	Sequence      int64
	TaxpayerType  int
	EmissionDate  time.Time
	EmissionType  int
	SecurityCode  string
	CheckDigit    int
}

// GenerateCDC arma el CDC de 44 dígitos:
//
//	iTiDE(2) + RUC(8) + DV(1) + dEst(3) + dPunExp(3) + dNumDoc(7) + iTipCont(1) +
//	AAAAMMDD(8) + iTipEmi(1) + dCodSeg(9) + dDVId(1)
//
// Es determinista para un mismo código de seguridad. La unicidad global la garantiza el
// llamador reintentando con un código nuevo ante colisión.
func GenerateCDC(p CDCParams) (string, int, error) {
	if !p.DocType.Valid() {
		return "", 0, domain.NewValidationError("iTiDE", fmt.Sprintf("tipo de documento %d inválido", int(p.DocType)))
	}
	ruc, err := padDigits("RUC", p.IssuerRUC, 8)
	if err != nil {
		return "", 0, err
	}
	if p.IssuerDV < 0 || p.IssuerDV > 9 {
		return "", 0, domain.NewValidationError("dDVEmi", "debe ser un dígito")
	}
	est, err := padDigits("dEst", p.Establishment, 3)
	if err != nil {
		return "", 0, err
	}
	pos, err := padDigits("dPunExp", p.PointOfSale, 3)
	if err != nil {
		return "", 0, err
	}
	if p.Sequence <= 0 || p.Sequence > 9_999_999 {
		return "", 0, domain.NewValidationError("dNumDoc", "fuera de rango (1..9999999)")
	}
	if p.TaxpayerType < 1 || p.TaxpayerType > 9 {
		return "", 0, domain.NewValidationError("iTipCont", "debe ser un dígito distinto de cero")
	}
	if p.EmissionDate.IsZero() {
		return "", 0, domain.NewValidationError("dFeEmiDE", "fecha de emisión requerida")
	}
	sec, err := padDigits("dCodSeg", p.SecurityCode, securityCodeWidth)
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	sb.Grow(CDCLength)
	sb.WriteString(p.DocType.Code())
	sb.WriteString(ruc)
	sb.WriteString(strconv.Itoa(p.IssuerDV))
	sb.WriteString(est)
	sb.WriteString(pos)
	sb.WriteString(fmt.Sprintf("%07d", p.Sequence))
	sb.WriteString(strconv.Itoa(p.TaxpayerType))
	sb.WriteString(p.EmissionDate.Format("20060102"))
	sb.WriteString(strconv.Itoa(sifen.EmissionTypeNormal))
	sb.WriteString(sec)

	body := sb.String()
	if len(body) != CDCLength-1 {
		return "", 0, domain.NewValidationError("CDC", fmt.Sprintf("largo %d, se esperaban %d", len(body), CDCLength-1))
	}
	dv := sifen.CheckDigit(body, p.CheckDigitBase)
	return body + strconv.Itoa(dv), dv, nil
}

// ValidateCDC comprueba largo, formato numérico y dígito verificador.
func ValidateCDC(cdc string, base int) error {
	if len(cdc) != CDCLength {
		return domain.NewValidationError("CDC", fmt.Sprintf("largo %d, se esperaban %d", len(cdc), CDCLength))
	}
	if !isDigits(cdc) {
		return domain.NewValidationError("CDC", "solo se admiten dígitos")
	}
	expected := sifen.CheckDigit(cdc[:CDCLength-1], base)
	if int(cdc[CDCLength-1]-'0') != expected {
		return domain.NewValidationError("CDC", fmt.Sprintf("dígito verificador inválido, esperado %d", expected))
	}
	return nil
}

// ParseCDC valida el CDC con el tope de pesos base y lo descompone en sus campos.
func ParseCDC(cdc string, base int) (*CDCParts, error) {
	if err := ValidateCDC(cdc, base); err != nil {
		return nil, err
	}
	docType, _ := strconv.Atoi(cdc[0:2])
	dv, _ := strconv.Atoi(cdc[10:11])
	seq, _ := strconv.ParseInt(cdc[17:24], 10, 64)
	taxpayer, _ := strconv.Atoi(cdc[24:25])
	date, err := time.ParseInLocation("20060102", cdc[25:33], time.Local)
	if err != nil {
		return nil, domain.NewValidationError("CDC", "fecha inválida: "+cdc[25:33])
	}
	emission, _ := strconv.Atoi(cdc[33:34])
	check, _ := strconv.Atoi(cdc[43:44])
	return &CDCParts{
		DocType:       sifen.DocumentType(docType),
		IssuerRUC:     strings.TrimLeft(cdc[2:10], "0"),
		IssuerDV:      dv,
		Establishment: cdc[11:14],
		PointOfSale:   cdc[14:17],
		Sequence:      seq,
		TaxpayerType:  taxpayer,
		EmissionDate:  date,
		EmissionType:  emission,
		SecurityCode:  cdc[34:43],
		CheckDigit:    check,
	}, nil
}

// NewSecurityCode genera el código de seguridad aleatorio de 9 dígitos (crypto/rand).
func NewSecurityCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		return "", fmt.Errorf("sifen: código de seguridad: %w", err)
	}
	return fmt.Sprintf("%09d", n.Int64()), nil
}

func padDigits(field, value string, width int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.NewValidationError(field, "requerido")
	}
	if !isDigits(value) {
		return "", domain.NewValidationError(field, fmt.Sprintf("%q no es numérico", value))
	}
	if len(value) > width {
		return "", domain.NewValidationError(field, fmt.Sprintf("%q excede %d dígitos", value, width))
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
