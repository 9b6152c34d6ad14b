package repository

import (
	"context"
	"time"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// CertificateRepository puerto de persistencia de certificados de firma.
type CertificateRepository interface {
	Create(ctx context.Context, cert *entity.Certificate) error
	GetByID(ctx context.Context, id string) (*entity.Certificate, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*entity.Certificate, error)
	Update(ctx context.Context, cert *entity.Certificate) error

	// SetDefault marca el certificado como predeterminado y desmarca los demás de la empresa.
	SetDefault(ctx context.Context, businessID, certID string) error

	// ListActiveExpiredBefore certificados activos cuyo vencimiento es anterior a t.
	ListActiveExpiredBefore(ctx context.Context, t time.Time) ([]*entity.Certificate, error)
}
