// Package sifen contiene catálogos y algoritmos alineados al Manual Técnico SIFEN v150
// (Sistema Integrado de Facturación Electrónica Nacional, SET Paraguay).
package sifen

import "fmt"

// SchemaVersion es la versión del formato (dVerFor) exigida por la SET.
const SchemaVersion = "150"

// Namespace del XML SIFEN (DE, lotes, eventos y mensajes SOAP).
const Namespace = "http://ekuatia.set.gov.py/sifen/xsd"

// =============================================================================
// Tipos de documento electrónico (iTiDE)
// =============================================================================

// DocumentType es el código iTiDE del documento electrónico.
type DocumentType int

const (
	DocInvoice       DocumentType = 1 // Factura electrónica
	DocExportInvoice DocumentType = 2 // Factura electrónica de exportación
	DocImportInvoice DocumentType = 3 // Factura electrónica de importación
	DocAutoInvoice   DocumentType = 4 // Autofactura electrónica
	DocCreditNote    DocumentType = 5 // Nota de crédito electrónica
	DocDebitNote     DocumentType = 6 // Nota de débito electrónica
	DocRemission     DocumentType = 7 // Nota de remisión electrónica
	DocWithholding   DocumentType = 8 // Comprobante de retención electrónico
)

var documentTypeNames = map[DocumentType]string{
	DocInvoice:       "Factura electrónica",
	DocExportInvoice: "Factura electrónica de exportación",
	DocImportInvoice: "Factura electrónica de importación",
	DocAutoInvoice:   "Autofactura electrónica",
	DocCreditNote:    "Nota de crédito electrónica",
	DocDebitNote:     "Nota de débito electrónica",
	DocRemission:     "Nota de remisión electrónica",
	DocWithholding:   "Comprobante de retención electrónico",
}

// Valid indica si el código pertenece al catálogo.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeNames[t]
	return ok
}

// Description devuelve dDesTiDE.
func (t DocumentType) Description() string {
	if d, ok := documentTypeNames[t]; ok {
		return d
	}
	return fmt.Sprintf("Tipo %d", int(t))
}

// Code devuelve el código a dos dígitos usado en el CDC.
func (t DocumentType) Code() string {
	return fmt.Sprintf("%02d", int(t))
}

// RequiresAssociatedDocument indica si el tipo exige gCamDEAsoc.
func (t DocumentType) RequiresAssociatedDocument() bool {
	return t == DocCreditNote || t == DocDebitNote || t == DocAutoInvoice
}

// =============================================================================
// Afectación tributaria (iAfecIVA) y tasas
// =============================================================================

// TaxClass clasificación de IVA de una línea.
type TaxClass string

const (
	TaxExempt TaxClass = "exento"
	TaxIVA5   TaxClass = "iva5"
	TaxIVA10  TaxClass = "iva10"
)

// AffectationCode devuelve iAfecIVA (1 = gravado, 3 = exento).
func (c TaxClass) AffectationCode() string {
	if c == TaxExempt {
		return "3"
	}
	return "1"
}

// AffectationDescription devuelve dDesAfecIVA.
func (c TaxClass) AffectationDescription() string {
	if c == TaxExempt {
		return "Exento"
	}
	return "Gravado IVA"
}

// Rate devuelve la tasa entera (0, 5, 10).
func (c TaxClass) Rate() int {
	switch c {
	case TaxIVA5:
		return 5
	case TaxIVA10:
		return 10
	default:
		return 0
	}
}

// Valid indica si la clase es conocida.
func (c TaxClass) Valid() bool {
	return c == TaxExempt || c == TaxIVA5 || c == TaxIVA10
}

// =============================================================================
// Tipo de contribuyente (iTipCont) y tipo de emisión (iTipEmi)
// =============================================================================

const (
	TaxpayerNatural = 1 // Persona física
	TaxpayerLegal   = 2 // Persona jurídica
)

// EmissionTypeNormal es el único tipo de emisión soportado en el CDC (1 = Normal).
const EmissionTypeNormal = 1

// =============================================================================
// Monedas
// =============================================================================

const (
	CurrencyPYG = "PYG"
	CurrencyUSD = "USD"
)

// =============================================================================
// Códigos de respuesta SIFEN (dCodRes / dCodResLot)
// =============================================================================

const (
	CodeLotReceived      = "0300" // Lote recibido con éxito
	CodeLotNotQueued     = "0301" // Lote no encolado para procesamiento
	CodeLotNotFound      = "0360" // Número de lote inexistente
	CodeLotProcessing    = "0361" // Lote en procesamiento
	CodeLotConcluded     = "0362" // Procesamiento de lote concluido
	CodeCDCNotFound      = "0420" // CDC inexistente
	CodeCDCFound         = "0422" // CDC encontrado
	CodeRUCFound         = "0502" // RUC encontrado
	CodeApproved         = "0260" // Autorización del DE satisfactoria
	CodeApprovedObserved = "1005" // Transmisión extemporánea (aprobado con observación)
	CodeEventRegistered  = "0600" // Evento registrado correctamente
	CodeUnexpectedError  = "0160" // XML mal formado / error inesperado
)

// Estados de resultado (dEstRes) devueltos por la SET.
const (
	ResultApproved         = "Aprobado"
	ResultApprovedObserved = "Aprobado con observación"
	ResultRejected         = "Rechazado"
)
