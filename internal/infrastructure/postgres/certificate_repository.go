package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
)

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

// CertificateRepo persistencia de certificados. El blob y la contraseña llegan ya cifrados.
type CertificateRepo struct {
	q Querier
}

// NewCertificateRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCertificateRepository(q Querier) *CertificateRepo {
	return &CertificateRepo{q: q}
}

const certificateColumns = `
	id, business_id, name, state, encrypted_blob, encrypted_password, cert_path, key_path,
	subject_cn, issuer_cn, serial, not_before, not_after, is_default, last_error, processed_at,
	created_at, updated_at`

func (r *CertificateRepo) Create(ctx context.Context, c *entity.Certificate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `
		INSERT INTO certificates (id, business_id, name, state, encrypted_blob, encrypted_password,
			is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.BusinessID, c.Name, string(c.State), c.EncryptedBlob, c.EncryptedPassword,
		c.IsDefault, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("certificado %s: %w", c.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepo) GetByID(ctx context.Context, id string) (*entity.Certificate, error) {
	c, err := scanCertificate(r.q.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return c, nil
}

func (r *CertificateRepo) ListByBusiness(ctx context.Context, businessID string) ([]*entity.Certificate, error) {
	return r.list(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE business_id = $1 ORDER BY created_at`, businessID)
}

func (r *CertificateRepo) ListActiveExpiredBefore(ctx context.Context, t time.Time) ([]*entity.Certificate, error) {
	return r.list(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE state = $1 AND not_after < $2`,
		string(entity.CertActive), t)
}

func (r *CertificateRepo) Update(ctx context.Context, c *entity.Certificate) error {
	query := `
		UPDATE certificates
		SET name = $2, state = $3, encrypted_blob = $4, encrypted_password = $5, cert_path = $6,
		    key_path = $7, subject_cn = $8, issuer_cn = $9, serial = $10, not_before = $11,
		    not_after = $12, last_error = $13, processed_at = $14, updated_at = $15
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		c.ID, c.Name, string(c.State), c.EncryptedBlob, c.EncryptedPassword,
		nullIfEmpty(c.CertPath), nullIfEmpty(c.KeyPath), nullIfEmpty(c.SubjectCN), nullIfEmpty(c.IssuerCN),
		nullIfEmpty(c.Serial), c.NotBefore, c.NotAfter, nullIfEmpty(c.LastError), c.ProcessedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("certificado %s: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

// SetDefault desmarca los demás antes de marcar el nuevo: el índice único parcial se valida fila a fila.
// Ambos pasos corren en una transacción (o savepoint si q ya es una tx).
func (r *CertificateRepo) SetDefault(ctx context.Context, businessID, certID string) error {
	b, ok := r.q.(txBeginner)
	if !ok {
		return r.setDefault(ctx, r.q, businessID, certID)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := r.setDefault(ctx, tx, businessID, certID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *CertificateRepo) setDefault(ctx context.Context, q Querier, businessID, certID string) error {
	if _, err := q.Exec(ctx, `
		UPDATE certificates SET is_default = false, updated_at = now()
		WHERE business_id = $1 AND is_default AND id <> $2`, businessID, certID); err != nil {
		return fmt.Errorf("clear default certificate: %w", err)
	}
	tag, err := q.Exec(ctx, `
		UPDATE certificates SET is_default = true, updated_at = now()
		WHERE business_id = $1 AND id = $2`, businessID, certID)
	if err != nil {
		return fmt.Errorf("set default certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("certificado %s: %w", certID, domain.ErrNotFound)
	}
	return nil
}

func (r *CertificateRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Certificate, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()
	var out []*entity.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCertificate(row pgx.Row) (*entity.Certificate, error) {
	var c entity.Certificate
	var state string
	var certPath, keyPath, subject, issuer, serial, lastErr *string
	err := row.Scan(
		&c.ID, &c.BusinessID, &c.Name, &state, &c.EncryptedBlob, &c.EncryptedPassword,
		&certPath, &keyPath, &subject, &issuer, &serial, &c.NotBefore, &c.NotAfter,
		&c.IsDefault, &lastErr, &c.ProcessedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.State = entity.CertificateState(state)
	c.CertPath, c.KeyPath = derefStr(certPath), derefStr(keyPath)
	c.SubjectCN, c.IssuerCN, c.Serial = derefStr(subject), derefStr(issuer), derefStr(serial)
	c.LastError = derefStr(lastErr)
	return &c, nil
}
