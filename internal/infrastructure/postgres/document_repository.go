package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
// Receptor, vendedor, documento asociado, datos de remisión y totales se guardan como JSONB.
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `
	id, business_id, doc_type, issuer_ruc, issuer_dv, taxpayer_type, establishment, point_of_sale,
	sequence, currency, exchange_rate, emission_date, operation_type, is_return, credit_sale,
	note_reason, receiver, vendor, associated, remission, totals, cdc, security_code, status,
	signed_xml, digest_value, qr_url, protocol_number, lot_id, last_code, last_message,
	approved_at, created_at, updated_at`

// Create inserta cabecera y líneas. Debe ejecutarse dentro de una tx si se requiere atomicidad.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.ElectronicDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	receiver, err := json.Marshal(doc.Receiver)
	if err != nil {
		return fmt.Errorf("serializar receptor: %w", err)
	}
	vendor, err := marshalOptional(doc.Vendor)
	if err != nil {
		return err
	}
	associated, err := marshalOptional(doc.Associated)
	if err != nil {
		return err
	}
	remission, err := marshalOptional(doc.Remission)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO electronic_documents (id, business_id, doc_type, issuer_ruc, issuer_dv, taxpayer_type,
			establishment, point_of_sale, sequence, currency, exchange_rate, emission_date, operation_type,
			is_return, credit_sale, note_reason, receiver, vendor, associated, remission, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err = r.q.Exec(ctx, query,
		doc.ID, doc.BusinessID, int(doc.DocType), doc.IssuerRUC, doc.IssuerDV, doc.TaxpayerType,
		doc.Establishment, doc.PointOfSale, doc.Sequence, doc.Currency, doc.ExchangeRate, doc.EmissionDate,
		doc.OperationType, doc.IsReturn, doc.CreditSale, doc.NoteReason, receiver, vendor, associated,
		remission, doc.Status, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento %s: %w", doc.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	for i := range doc.Lines {
		l := &doc.Lines[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		_, err := r.q.Exec(ctx, `
			INSERT INTO document_lines (id, document_id, position, product_code, description, unit_measure,
				quantity, unit_price, discount_percent, amount, tax_class)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			l.ID, doc.ID, i+1, l.ProductCode, l.Description, l.UnitMeasure,
			l.Quantity, l.UnitPrice, l.DiscountPercent, l.Amount, string(l.TaxClass),
		)
		if err != nil {
			return fmt.Errorf("insert document line %d: %w", i+1, err)
		}
	}
	return nil
}

// GetByID obtiene el documento con sus líneas.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.ElectronicDocument, error) {
	return r.getOne(ctx, `SELECT `+documentColumns+` FROM electronic_documents WHERE id = $1`, id)
}

// GetByCDC obtiene el documento por CDC.
func (r *DocumentRepo) GetByCDC(ctx context.Context, cdc string) (*entity.ElectronicDocument, error) {
	return r.getOne(ctx, `SELECT `+documentColumns+` FROM electronic_documents WHERE cdc = $1`, cdc)
}

// ReserveCDC asigna CDC y código de seguridad solo si el documento aún no tiene CDC.
func (r *DocumentRepo) ReserveCDC(ctx context.Context, docID, cdc, securityCode string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE electronic_documents
		SET cdc = $2, security_code = $3, updated_at = now()
		WHERE id = $1 AND cdc IS NULL`,
		docID, cdc, securityCode,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CDC %s: %w", cdc, domain.ErrDuplicate)
		}
		return fmt.Errorf("reserve cdc: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documento %s: %w", docID, domain.ErrCDCAlreadyAssigned)
	}
	return nil
}

// Update persiste los campos que adjunta el motor. Los totales se escriben una sola vez.
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.ElectronicDocument) error {
	var totals []byte
	if doc.Totals != nil {
		b, err := json.Marshal(doc.Totals)
		if err != nil {
			return fmt.Errorf("serializar totales: %w", err)
		}
		totals = b
	}
	query := `
		UPDATE electronic_documents
		SET totals          = COALESCE(totals, $2),
		    status          = $3,
		    signed_xml      = COALESCE($4, signed_xml),
		    digest_value    = COALESCE($5, digest_value),
		    qr_url          = COALESCE($6, qr_url),
		    protocol_number = COALESCE($7, protocol_number),
		    lot_id          = COALESCE($8, lot_id),
		    last_code       = $9,
		    last_message    = $10,
		    approved_at     = COALESCE($11, approved_at),
		    updated_at      = $12
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, totals, string(doc.Status),
		nullIfEmpty(doc.SignedXML), nullIfEmpty(doc.DigestValue), nullIfEmpty(doc.QRURL),
		nullIfEmpty(doc.ProtocolNumber), nullIfEmpty(doc.LotID),
		nullIfEmpty(doc.LastCode), nullIfEmpty(doc.LastMessage), doc.ApprovedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documento %s: %w", doc.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepo) getOne(ctx context.Context, query string, arg string) (*entity.ElectronicDocument, error) {
	var (
		d                                         entity.ElectronicDocument
		docType                                   int
		status                                    string
		receiver, vendor, associated, remission   []byte
		totals                                    []byte
		cdc, sec, signed, digest, qr, prot, lotID *string
		lastCode, lastMsg                         *string
	)
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&d.ID, &d.BusinessID, &docType, &d.IssuerRUC, &d.IssuerDV, &d.TaxpayerType, &d.Establishment,
		&d.PointOfSale, &d.Sequence, &d.Currency, &d.ExchangeRate, &d.EmissionDate, &d.OperationType,
		&d.IsReturn, &d.CreditSale, &d.NoteReason, &receiver, &vendor, &associated, &remission, &totals,
		&cdc, &sec, &status, &signed, &digest, &qr, &prot, &lotID, &lastCode, &lastMsg,
		&d.ApprovedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.DocType = sifen.DocumentType(docType)
	d.Status = entity.DocumentStatus(status)
	d.EmissionDate = localWallClock(d.EmissionDate)
	d.CDC, d.SecurityCode = derefStr(cdc), derefStr(sec)
	d.SignedXML, d.DigestValue, d.QRURL = derefStr(signed), derefStr(digest), derefStr(qr)
	d.ProtocolNumber, d.LotID = derefStr(prot), derefStr(lotID)
	d.LastCode, d.LastMessage = derefStr(lastCode), derefStr(lastMsg)

	if err := json.Unmarshal(receiver, &d.Receiver); err != nil {
		return nil, fmt.Errorf("leer receptor: %w", err)
	}
	if err := unmarshalOptional(vendor, &d.Vendor); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(associated, &d.Associated); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(remission, &d.Remission); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(totals, &d.Totals); err != nil {
		return nil, err
	}

	lines, err := r.lines(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Lines = lines
	return &d, nil
}

func (r *DocumentRepo) lines(ctx context.Context, docID string) ([]entity.DocumentLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_code, description, unit_measure, quantity, unit_price, discount_percent, amount, tax_class
		FROM document_lines WHERE document_id = $1 ORDER BY position`, docID)
	if err != nil {
		return nil, fmt.Errorf("list document lines: %w", err)
	}
	defer rows.Close()

	var out []entity.DocumentLine
	for rows.Next() {
		var l entity.DocumentLine
		var class string
		if err := rows.Scan(&l.ID, &l.ProductCode, &l.Description, &l.UnitMeasure,
			&l.Quantity, &l.UnitPrice, &l.DiscountPercent, &l.Amount, &class); err != nil {
			return nil, fmt.Errorf("scan document line: %w", err)
		}
		l.TaxClass = sifen.TaxClass(class)
		out = append(out, l)
	}
	return out, rows.Err()
}

func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializar %T: %w", v, err)
	}
	return b, nil
}

func unmarshalOptional[T any](data []byte, dst **T) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("leer %T: %w", v, err)
	}
	*dst = &v
	return nil
}
