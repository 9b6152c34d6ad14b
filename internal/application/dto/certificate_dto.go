package dto

import (
	"time"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// CertificateResponse certificado sin material sensible.
type CertificateResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	State       string     `json:"state"`
	IsDefault   bool       `json:"is_default"`
	SubjectCN   string     `json:"subject_cn,omitempty"`
	IssuerCN    string     `json:"issuer_cn,omitempty"`
	Serial      string     `json:"serial,omitempty"`
	NotBefore   *time.Time `json:"not_before,omitempty"`
	NotAfter    *time.Time `json:"not_after,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewCertificateResponse nunca incluye el blob, la contraseña ni las rutas derivadas.
func NewCertificateResponse(c *entity.Certificate) CertificateResponse {
	return CertificateResponse{
		ID: c.ID, Name: c.Name, State: string(c.State), IsDefault: c.IsDefault,
		SubjectCN: c.SubjectCN, IssuerCN: c.IssuerCN, Serial: c.Serial,
		NotBefore: c.NotBefore, NotAfter: c.NotAfter, LastError: c.LastError,
		ProcessedAt: c.ProcessedAt, CreatedAt: c.CreatedAt,
	}
}

// IntegrityResponse diagnóstico de GET /api/certificates/:id/integrity.
type IntegrityResponse struct {
	CertificateID   string     `json:"certificate_id"`
	State           string     `json:"state"`
	FilesPresent    bool       `json:"files_present"`
	KeyMatches      bool       `json:"key_matches"`
	NotAfter        *time.Time `json:"not_after,omitempty"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	LastError       string     `json:"last_error,omitempty"`
	Problems        []string   `json:"problems"`
}
