package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// DocumentStatus estado del ciclo de vida del DE frente a la SET.
type DocumentStatus string

const (
	DocStatusDraft     DocumentStatus = "Draft"     // Recibido del sistema de gestión, sin CDC
	DocStatusSigned    DocumentStatus = "Signed"    // CDC asignado, XML firmado y QR embebido
	DocStatusSent      DocumentStatus = "Sent"      // Enviado por siRecepDE, respuesta pendiente
	DocStatusEnqueued  DocumentStatus = "Enqueued"  // Miembro de un lote enviado por siRecepLoteDE
	DocStatusApproved  DocumentStatus = "Approved"  // Aprobado (o aprobado con observación)
	DocStatusRejected  DocumentStatus = "Rejected"  // Rechazado; corregir exige un DE nuevo
	DocStatusError     DocumentStatus = "Error"     // El lote falló antes de procesarse
	DocStatusCancelled DocumentStatus = "Cancelled" // Evento de cancelación registrado
)

// Terminal indica si el estado ya no admite transiciones por consulta.
func (s DocumentStatus) Terminal() bool {
	return s == DocStatusRejected || s == DocStatusError || s == DocStatusCancelled
}

// ElectronicDocument cabecera del documento electrónico (DE) entregado por el sistema de gestión.
// El motor solo adjunta CDC, firma, QR y estado; el resto es de solo lectura.
type ElectronicDocument struct {
	ID            string
	BusinessID    string
	DocType       sifen.DocumentType
	IssuerRUC     string // RUC sin DV
	IssuerDV      int
	TaxpayerType  int    // iTipCont: 1 persona física, 2 persona jurídica
	Establishment string // 3 dígitos
	PointOfSale   string // 3 dígitos
	Sequence      int64  // número de documento (7 dígitos)
	Currency      string
	ExchangeRate  decimal.Decimal // solo si Currency != PYG
	EmissionDate  time.Time       // hora civil local, sin offset
	OperationType int             // iTipTra: 1 venta de mercadería, 2 prestación de servicios...
	IsReturn      bool            // operación de devolución: montos = precio unitario × cantidad
	CreditSale    bool            // iCondOpe 2 (crédito) en lugar de contado

	Receiver   Receiver
	Vendor     *AutoInvoiceVendor  // solo autofactura
	Associated *AssociatedDocument // NC, ND y autofactura
	Remission  *RemissionData      // solo nota de remisión
	NoteReason int                 // iMotEmi para NC/ND

	Lines  []DocumentLine
	Totals *DocumentTotals // calculado una sola vez al preparar

	CDC            string
	SecurityCode   string // 9 dígitos aleatorios
	Status         DocumentStatus
	SignedXML      string
	DigestValue    string
	QRURL          string
	ProtocolNumber string // dProtAut devuelto por la SET
	LotID          string
	LastCode       string
	LastMessage    string
	ApprovedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssignCDC asigna el CDC una única vez. Un DE con CDC no puede regenerarlo.
func (d *ElectronicDocument) AssignCDC(cdc, securityCode string) error {
	if d.CDC != "" {
		return ErrCDCImmutable
	}
	d.CDC = cdc
	d.SecurityCode = securityCode
	return nil
}

// AttachTotals fija los totales calculados. Solo se permite una vez.
func (d *ElectronicDocument) AttachTotals(t DocumentTotals) error {
	if d.Totals != nil {
		return ErrTotalsImmutable
	}
	d.Totals = &t
	return nil
}

// Receiver datos del receptor (gDatRec).
type Receiver struct {
	IsTaxpayer  bool   // iNatRec: 1 contribuyente, 2 no contribuyente
	RUC         string // sin DV, solo contribuyente
	DV          int
	IDType      int    // iTipIDRec: 1 cédula paraguaya, 2 pasaporte, 3 cédula extranjera, 5 innominado
	IDNumber    string // solo no contribuyente
	Name        string
	Address     string
	HouseNumber int
	CountryCode string // ISO 3166 alfa-3, ej. PRY
	CountryName string
	Phone       string
	Email       string
	// iTiOpe: 1 B2B, 2 B2C, 3 B2G, 4 B2F
	OperationKind int
}

// Identifier devuelve el valor que la SET espera en el QR: RUC o número de documento.
func (r Receiver) Identifier() string {
	if r.IsTaxpayer {
		return r.RUC
	}
	return r.IDNumber
}

// AutoInvoiceVendor identidad del vendedor en una autofactura (gCamAE).
type AutoInvoiceVendor struct {
	Nature       int    // iNatVen: 1 no contribuyente, 2 extranjero
	IDType       int    // iTipIDVen
	IDNumber     string
	Name         string
	Address      string
	HouseNumber  int
	DepartmentID int
	Department   string
	CityID       int
	City         string
	Place        string // lugar de la transacción
}

// AssociatedDocument referencia al documento original (gCamDEAsoc).
type AssociatedDocument struct {
	Electronic    bool   // iTipDocAso 1 electrónico, 2 impreso
	CDC           string // si Electronic
	Timbrado      string // si impreso
	Establishment string
	PointOfSale   string
	Number        string
	PrintedType   int // iTipoDocAso: 1 factura, 2 NC, 3 ND, 4 NR
	IssueDate     time.Time
}

// RemissionData campos de la nota de remisión (gCamNRE).
type RemissionData struct {
	Reason      int // iMotEmiNR
	Responsible int // iRespEmiNR
	KmEstimate  int
	ShipDate    time.Time
}
