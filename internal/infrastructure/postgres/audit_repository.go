package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
)

var (
	_ repository.SoapTransactionRepository = (*SoapTransactionRepo)(nil)
	_ repository.TrackRepository           = (*TrackRepo)(nil)
)

// SoapTransactionRepo auditoría SOAP: INSERT al iniciar, UPDATE al completar.
type SoapTransactionRepo struct {
	q Querier
}

// NewSoapTransactionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSoapTransactionRepository(q Querier) *SoapTransactionRepo {
	return &SoapTransactionRepo{q: q}
}

func (r *SoapTransactionRepo) Create(ctx context.Context, tx *entity.SoapTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO soap_transactions (id, business_id, method, cdc, lot_id, request_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.BusinessID, tx.Method, nullIfEmpty(tx.CDC), nullIfEmpty(tx.LotID),
		nullIfEmpty(tx.RequestRef), tx.Status, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert soap transaction: %w", err)
	}
	return nil
}

func (r *SoapTransactionRepo) Complete(ctx context.Context, tx *entity.SoapTransaction) error {
	_, err := r.q.Exec(ctx, `
		UPDATE soap_transactions
		SET status = $2, code = $3, message = $4, response = $5, elapsed_ms = $6, completed_at = $7
		WHERE id = $1`,
		tx.ID, tx.Status, nullIfEmpty(tx.Code), nullIfEmpty(tx.Message), nullIfEmpty(tx.Response),
		tx.Elapsed.Milliseconds(), tx.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("complete soap transaction: %w", err)
	}
	return nil
}

// TrackRepo historial por CDC (solo inserción).
type TrackRepo struct {
	q Querier
}

// NewTrackRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTrackRepository(q Querier) *TrackRepo {
	return &TrackRepo{q: q}
}

func (r *TrackRepo) Append(ctx context.Context, e *entity.CdcTrackEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO cdc_track_entries (id, cdc, document_id, lot_id, state, source, code, message, protocol_number, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.CDC, nullIfEmpty(e.DocumentID), nullIfEmpty(e.LotID), e.State, e.Source,
		nullIfEmpty(e.Code), nullIfEmpty(e.Message), nullIfEmpty(e.ProtocolNumber), e.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert track entry: %w", err)
	}
	return nil
}

func (r *TrackRepo) ListByCDC(ctx context.Context, cdc string) ([]*entity.CdcTrackEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, cdc, document_id, lot_id, state, source, code, message, protocol_number, observed_at
		FROM cdc_track_entries WHERE cdc = $1 ORDER BY observed_at, id`, cdc)
	if err != nil {
		return nil, fmt.Errorf("list track entries: %w", err)
	}
	defer rows.Close()

	var out []*entity.CdcTrackEntry
	for rows.Next() {
		var e entity.CdcTrackEntry
		var docID, lotID, code, msg, prot *string
		if err := rows.Scan(&e.ID, &e.CDC, &docID, &lotID, &e.State, &e.Source, &code, &msg, &prot, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan track entry: %w", err)
		}
		e.DocumentID, e.LotID = derefStr(docID), derefStr(lotID)
		e.Code, e.Message, e.ProtocolNumber = derefStr(code), derefStr(msg), derefStr(prot)
		out = append(out, &e)
	}
	return out, rows.Err()
}
