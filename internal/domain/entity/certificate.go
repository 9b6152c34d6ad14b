package entity

import "time"

// CertificateState estado del certificado de firma.
type CertificateState string

const (
	CertPending CertificateState = "pendiente" // Subido, sin procesar
	CertActive  CertificateState = "activo"    // Extraído y vigente
	CertExpired CertificateState = "vencido"   // Extraído, fecha de vencimiento pasada
	CertError   CertificateState = "error"     // Falló la extracción y no hay material previo
)

// Certificate certificado PKCS12 de una empresa. Los archivos derivados (PEM y clave)
// solo los escribe el proceso de extracción; la firma los lee sin modificarlos.
type Certificate struct {
	ID                string
	BusinessID        string
	Name              string
	State             CertificateState
	EncryptedBlob     []byte // PKCS12 cifrado con la clave del servidor
	EncryptedPassword []byte // contraseña del PKCS12 cifrada
	CertPath          string // PEM del certificado
	KeyPath           string // clave privada sin cifrar (permiso 0600)
	SubjectCN         string
	IssuerCN          string
	Serial            string
	NotBefore         *time.Time
	NotAfter          *time.Time
	IsDefault         bool
	LastError         string
	ProcessedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasMaterial indica si el certificado tiene archivos derivados de un proceso anterior exitoso.
func (c *Certificate) HasMaterial() bool {
	return c.CertPath != "" && c.KeyPath != "" && c.NotAfter != nil
}

// Usable indica si puede firmar: activo y no vencido a la fecha now.
func (c *Certificate) Usable(now time.Time) bool {
	return c.State == CertActive && c.NotAfter != nil && now.Before(*c.NotAfter)
}
