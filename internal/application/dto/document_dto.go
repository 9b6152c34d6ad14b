package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// localLayout fecha y hora civil sin offset, como la emite el sistema de gestión.
const localLayout = "2006-01-02T15:04:05"

// CreateDocumentRequest body para POST /api/documents.
// El emisor (RUC, DV, tipo de contribuyente) se toma de la empresa del token.
type CreateDocumentRequest struct {
	DocType       int                        `json:"doc_type"`
	Establishment string                     `json:"establishment"`
	PointOfSale   string                     `json:"point_of_sale"`
	Sequence      int64                      `json:"sequence"`
	Currency      string                     `json:"currency,omitempty"` // PYG por defecto
	ExchangeRate  decimal.Decimal            `json:"exchange_rate,omitempty"`
	EmissionDate  string                     `json:"emission_date"` // 2006-01-02T15:04:05
	OperationType int                        `json:"operation_type"`
	IsReturn      bool                       `json:"is_return,omitempty"`
	CreditSale    bool                       `json:"credit_sale,omitempty"`
	NoteReason    int                        `json:"note_reason,omitempty"`
	Receiver      ReceiverRequest            `json:"receiver"`
	Vendor        *AutoInvoiceVendorRequest  `json:"vendor,omitempty"`
	Associated    *AssociatedDocumentRequest `json:"associated,omitempty"`
	Remission     *RemissionRequest          `json:"remission,omitempty"`
	Lines         []DocumentLineRequest      `json:"lines"`
}

// ReceiverRequest receptor (gDatRec).
type ReceiverRequest struct {
	IsTaxpayer    bool   `json:"is_taxpayer"`
	RUC           string `json:"ruc,omitempty"`
	DV            int    `json:"dv,omitempty"`
	IDType        int    `json:"id_type,omitempty"`
	IDNumber      string `json:"id_number,omitempty"`
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	HouseNumber   int    `json:"house_number,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	CountryName   string `json:"country_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	OperationKind int    `json:"operation_kind,omitempty"`
}

// AutoInvoiceVendorRequest vendedor de una autofactura (gCamAE).
type AutoInvoiceVendorRequest struct {
	Nature       int    `json:"nature"`
	IDType       int    `json:"id_type"`
	IDNumber     string `json:"id_number"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	HouseNumber  int    `json:"house_number"`
	DepartmentID int    `json:"department_id"`
	Department   string `json:"department"`
	CityID       int    `json:"city_id"`
	City         string `json:"city"`
	Place        string `json:"place"`
}

// AssociatedDocumentRequest documento asociado (gCamDEAsoc).
type AssociatedDocumentRequest struct {
	Electronic    bool   `json:"electronic"`
	CDC           string `json:"cdc,omitempty"`
	Timbrado      string `json:"timbrado,omitempty"`
	Establishment string `json:"establishment,omitempty"`
	PointOfSale   string `json:"point_of_sale,omitempty"`
	Number        string `json:"number,omitempty"`
	PrintedType   int    `json:"printed_type,omitempty"`
	IssueDate     string `json:"issue_date,omitempty"` // 2006-01-02
}

// RemissionRequest datos de la nota de remisión (gCamNRE).
type RemissionRequest struct {
	Reason      int    `json:"reason"`
	Responsible int    `json:"responsible"`
	KmEstimate  int    `json:"km_estimate,omitempty"`
	ShipDate    string `json:"ship_date,omitempty"` // 2006-01-02
}

// DocumentLineRequest línea de detalle; los precios incluyen IVA.
type DocumentLineRequest struct {
	ProductCode     string          `json:"product_code"`
	Description     string          `json:"description"`
	UnitMeasure     int             `json:"unit_measure,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent,omitempty"`
	Amount          decimal.Decimal `json:"amount,omitempty"`
	TaxClass        string          `json:"tax_class"` // exento | iva5 | iva10
}

// ToEntity convierte la petición en un DE en borrador de la empresa. Devuelve el nombre
// del campo con fecha mal formada como error.
func (r CreateDocumentRequest) ToEntity(businessID string) (*entity.ElectronicDocument, error) {
	emission, err := time.ParseInLocation(localLayout, r.EmissionDate, time.Local)
	if err != nil {
		return nil, &FieldError{Field: "emission_date", Err: err}
	}
	doc := &entity.ElectronicDocument{
		BusinessID:    businessID,
		DocType:       sifen.DocumentType(r.DocType),
		Establishment: r.Establishment,
		PointOfSale:   r.PointOfSale,
		Sequence:      r.Sequence,
		Currency:      r.Currency,
		ExchangeRate:  r.ExchangeRate,
		EmissionDate:  emission,
		OperationType: r.OperationType,
		IsReturn:      r.IsReturn,
		CreditSale:    r.CreditSale,
		NoteReason:    r.NoteReason,
		Receiver: entity.Receiver{
			IsTaxpayer: r.Receiver.IsTaxpayer, RUC: r.Receiver.RUC, DV: r.Receiver.DV,
			IDType: r.Receiver.IDType, IDNumber: r.Receiver.IDNumber, Name: r.Receiver.Name,
			Address: r.Receiver.Address, HouseNumber: r.Receiver.HouseNumber,
			CountryCode: r.Receiver.CountryCode, CountryName: r.Receiver.CountryName,
			Phone: r.Receiver.Phone, Email: r.Receiver.Email, OperationKind: r.Receiver.OperationKind,
		},
	}
	if v := r.Vendor; v != nil {
		doc.Vendor = &entity.AutoInvoiceVendor{
			Nature: v.Nature, IDType: v.IDType, IDNumber: v.IDNumber, Name: v.Name,
			Address: v.Address, HouseNumber: v.HouseNumber, DepartmentID: v.DepartmentID,
			Department: v.Department, CityID: v.CityID, City: v.City, Place: v.Place,
		}
	}
	if a := r.Associated; a != nil {
		assoc := &entity.AssociatedDocument{
			Electronic: a.Electronic, CDC: a.CDC, Timbrado: a.Timbrado, Establishment: a.Establishment,
			PointOfSale: a.PointOfSale, Number: a.Number, PrintedType: a.PrintedType,
		}
		if a.IssueDate != "" {
			d, err := time.ParseInLocation(time.DateOnly, a.IssueDate, time.Local)
			if err != nil {
				return nil, &FieldError{Field: "associated.issue_date", Err: err}
			}
			assoc.IssueDate = d
		}
		doc.Associated = assoc
	}
	if rm := r.Remission; rm != nil {
		rem := &entity.RemissionData{Reason: rm.Reason, Responsible: rm.Responsible, KmEstimate: rm.KmEstimate}
		if rm.ShipDate != "" {
			d, err := time.ParseInLocation(time.DateOnly, rm.ShipDate, time.Local)
			if err != nil {
				return nil, &FieldError{Field: "remission.ship_date", Err: err}
			}
			rem.ShipDate = d
		}
		doc.Remission = rem
	}
	for _, l := range r.Lines {
		doc.Lines = append(doc.Lines, entity.DocumentLine{
			ProductCode: l.ProductCode, Description: l.Description, UnitMeasure: l.UnitMeasure,
			Quantity: l.Quantity, UnitPrice: l.UnitPrice, DiscountPercent: l.DiscountPercent,
			Amount: l.Amount, TaxClass: sifen.TaxClass(l.TaxClass),
		})
	}
	return doc, nil
}

// FieldError fecha u otro valor del body que no se pudo interpretar.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

// DocumentResponse estado del DE en respuestas.
type DocumentResponse struct {
	ID             string          `json:"id"`
	BusinessID     string          `json:"business_id"`
	DocType        int             `json:"doc_type"`
	DocTypeName    string          `json:"doc_type_name"`
	Number         string          `json:"number"` // 001-001-0000001
	EmissionDate   string          `json:"emission_date"`
	Status         string          `json:"status"`
	CDC            string          `json:"cdc,omitempty"`
	QRURL          string          `json:"qr_url,omitempty"`
	ProtocolNumber string          `json:"protocol_number,omitempty"`
	LotID          string          `json:"lot_id,omitempty"`
	LastCode       string          `json:"last_code,omitempty"`
	LastMessage    string          `json:"last_message,omitempty"`
	Totals         *TotalsResponse `json:"totals,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TotalsResponse totales calculados (gTotSub).
type TotalsResponse struct {
	SubExempt     decimal.Decimal `json:"sub_exempt"`
	Sub5          decimal.Decimal `json:"sub_5"`
	Sub10         decimal.Decimal `json:"sub_10"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	IVA5          decimal.Decimal `json:"iva_5"`
	IVA10         decimal.Decimal `json:"iva_10"`
	TotalIVA      decimal.Decimal `json:"total_iva"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	ItemCount     int             `json:"item_count"`
}

// NewDocumentResponse arma la respuesta a partir del DE.
func NewDocumentResponse(d *entity.ElectronicDocument) DocumentResponse {
	out := DocumentResponse{
		ID:             d.ID,
		BusinessID:     d.BusinessID,
		DocType:        int(d.DocType),
		DocTypeName:    d.DocType.Description(),
		Number:         d.Establishment + "-" + d.PointOfSale + "-" + padSequence(d.Sequence),
		EmissionDate:   d.EmissionDate.Format(localLayout),
		Status:         string(d.Status),
		CDC:            d.CDC,
		QRURL:          d.QRURL,
		ProtocolNumber: d.ProtocolNumber,
		LotID:          d.LotID,
		LastCode:       d.LastCode,
		LastMessage:    d.LastMessage,
		ApprovedAt:     d.ApprovedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if t := d.Totals; t != nil {
		out.Totals = &TotalsResponse{
			SubExempt: t.SubExempt, Sub5: t.Sub5, Sub10: t.Sub10, TotalDiscount: t.TotalDiscount,
			IVA5: t.IVA5, IVA10: t.IVA10, TotalIVA: t.TotalIVA, GrandTotal: t.GrandTotal, ItemCount: t.ItemCount,
		}
	}
	return out
}

func padSequence(n int64) string {
	s := []byte("0000000")
	for i := len(s) - 1; i >= 0 && n > 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}

// CancelRequest body para POST /api/documents/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// TrackEntryResponse observación del historial de un CDC.
type TrackEntryResponse struct {
	State          string    `json:"state"`
	Source         string    `json:"source"`
	Code           string    `json:"code,omitempty"`
	Message        string    `json:"message,omitempty"`
	ProtocolNumber string    `json:"protocol_number,omitempty"`
	LotID          string    `json:"lot_id,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

// CDCStatusResponse respuesta de GET /api/documents/cdc/:cdc.
type CDCStatusResponse struct {
	CDC      string               `json:"cdc"`
	Document *DocumentResponse    `json:"document,omitempty"`
	Remote   *RemoteStatus        `json:"remote,omitempty"`
	History  []TrackEntryResponse `json:"history"`
}

// RemoteStatus resultado de siConsDE.
type RemoteStatus struct {
	Found          bool   `json:"found"`
	Cancelled      bool   `json:"cancelled"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	ProtocolNumber string `json:"protocol_number,omitempty"`
}

// NewTrackEntries convierte el historial.
func NewTrackEntries(entries []*entity.CdcTrackEntry) []TrackEntryResponse {
	out := make([]TrackEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TrackEntryResponse{
			State: e.State, Source: e.Source, Code: e.Code, Message: e.Message,
			ProtocolNumber: e.ProtocolNumber, LotID: e.LotID, ObservedAt: e.ObservedAt,
		})
	}
	return out
}
