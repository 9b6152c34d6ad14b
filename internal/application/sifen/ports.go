package sifen

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/jhoicas/sifen-api/internal/domain/repository"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
)

// Repos repositorios atados a una misma transacción.
type Repos struct {
	Documents repository.DocumentRepository
	Batches   repository.BatchRepository
	Track     repository.TrackRepository
}

// TxRunner ejecuta fn dentro de una transacción con repos de documentos, lotes e historial.
type TxRunner interface {
	RunSIFEN(ctx context.Context, fn func(r Repos) error) error
}

// ProtocolClient operaciones SOAP contra la SET. Implementado por infra.SOAPClient.
type ProtocolClient interface {
	SendDocument(ctx context.Context, t infra.Target, signedXML string) (*infra.DocumentResult, error)
	SendLot(ctx context.Context, t infra.Target, zipBytes []byte) (*infra.LotReceipt, error)
	QueryLot(ctx context.Context, t infra.Target, protocolNumber string) (*infra.LotResult, error)
	QueryDocument(ctx context.Context, t infra.Target, cdc string) (*infra.QueryResult, error)
	SendEvent(ctx context.Context, t infra.Target, signedEvent string) (*infra.EventResult, error)
	QueryRUC(ctx context.Context, t infra.Target, ruc string) (*infra.RUCResult, error)
}

// KeyPairSource entrega el par certificado/llave activo de la empresa (certstore.Store).
type KeyPairSource interface {
	KeyPairFor(ctx context.Context, businessID string) (tls.Certificate, error)
}

// ArtifactSink persistencia de artefactos por día (storage.ArtifactStore).
type ArtifactSink interface {
	WriteXML(day time.Time, cdc string, data []byte) (string, error)
	WriteSigned(day time.Time, cdc string, data []byte) (string, error)
	WriteQR(day time.Time, cdc string, png []byte) (string, error)
}

// Config parámetros del orquestador.
type Config struct {
	AppEnv              string // dev: firma local y aprobación simulada, sin red
	CheckDigitBase      int
	MaxLotSize          int
	CancelWindowInvoice time.Duration
	CancelWindowOther   time.Duration
	SystemName          string
	AsyncTimeout        time.Duration // ProcessAsync; 0 = 60 s
}
