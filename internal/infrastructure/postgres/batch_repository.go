package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo lotes (lots) y sus miembros ordenados (lot_members).
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO lots (id, business_id, doc_type, protocol_number, state, last_code, last_message, poll_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.BusinessID, b.DocType, nullIfEmpty(b.ProtocolNumber), string(b.State),
		nullIfEmpty(b.LastCode), nullIfEmpty(b.LastMessage), b.PollCount, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	for _, m := range b.Members {
		_, err := r.q.Exec(ctx, `
			INSERT INTO lot_members (lot_id, position, document_id, cdc, status, code, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.ID, m.Position, m.DocumentID, m.CDC, string(m.Status), nullIfEmpty(m.Code), nullIfEmpty(m.Message),
		)
		if err != nil {
			return fmt.Errorf("insert lot member %d: %w", m.Position, err)
		}
	}
	return nil
}

func (r *BatchRepo) GetByID(ctx context.Context, id string) (*entity.Batch, error) {
	b, err := scanBatch(r.q.QueryRow(ctx, `
		SELECT id, business_id, doc_type, protocol_number, state, last_code, last_message, poll_count, created_at, updated_at
		FROM lots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	if err := r.loadMembers(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Update persiste el estado del lote y de cada miembro. La membresía no cambia.
func (r *BatchRepo) Update(ctx context.Context, b *entity.Batch) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE lots
		SET protocol_number = COALESCE($2, protocol_number), state = $3, last_code = $4,
		    last_message = $5, poll_count = $6, updated_at = $7
		WHERE id = $1`,
		b.ID, nullIfEmpty(b.ProtocolNumber), string(b.State), nullIfEmpty(b.LastCode),
		nullIfEmpty(b.LastMessage), b.PollCount, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lote %s: %w", b.ID, domain.ErrNotFound)
	}
	for _, m := range b.Members {
		_, err := r.q.Exec(ctx, `
			UPDATE lot_members SET status = $3, code = $4, message = $5
			WHERE lot_id = $1 AND position = $2`,
			b.ID, m.Position, string(m.Status), nullIfEmpty(m.Code), nullIfEmpty(m.Message),
		)
		if err != nil {
			return fmt.Errorf("update lot member %d: %w", m.Position, err)
		}
	}
	return nil
}

func (r *BatchRepo) ListOpen(ctx context.Context, limit int) ([]*entity.Batch, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, business_id, doc_type, protocol_number, state, last_code, last_message, poll_count, created_at, updated_at
		FROM lots WHERE state IN ($1, $2)
		ORDER BY created_at
		LIMIT $3`, string(entity.LotReceived), string(entity.LotProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}
	var out []*entity.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}
	for _, b := range out {
		if err := r.loadMembers(ctx, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *BatchRepo) loadMembers(ctx context.Context, b *entity.Batch) error {
	rows, err := r.q.Query(ctx, `
		SELECT position, document_id, cdc, status, code, message
		FROM lot_members WHERE lot_id = $1 ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("list lot members: %w", err)
	}
	defer rows.Close()
	b.Members = b.Members[:0]
	for rows.Next() {
		var m entity.BatchMember
		var status string
		var code, msg *string
		if err := rows.Scan(&m.Position, &m.DocumentID, &m.CDC, &status, &code, &msg); err != nil {
			return fmt.Errorf("scan lot member: %w", err)
		}
		m.Status = entity.DocumentStatus(status)
		m.Code, m.Message = derefStr(code), derefStr(msg)
		b.Members = append(b.Members, m)
	}
	return rows.Err()
}

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	var state string
	var prot, code, msg *string
	if err := row.Scan(&b.ID, &b.BusinessID, &b.DocType, &prot, &state, &code, &msg, &b.PollCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.State = entity.LotState(state)
	b.ProtocolNumber, b.LastCode, b.LastMessage = derefStr(prot), derefStr(code), derefStr(msg)
	return &b, nil
}
