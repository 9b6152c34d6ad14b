package entity

import "time"

// Estados de una SoapTransaction.
const (
	SoapPending = "pending"
	SoapSuccess = "success"
	SoapFailure = "failure"
)

// SoapTransaction registro de auditoría de un intercambio con la SET. Se inserta antes de la
// llamada (pending) y se actualiza después; nunca se borra.
type SoapTransaction struct {
	ID          string
	BusinessID  string
	Method      string // siRecepDE, siRecepLoteDE, siConsDE, ...
	CDC         string
	LotID       string
	RequestRef  string // ruta del artefacto con el XML de la solicitud
	Response    string // respuesta cruda
	Status      string
	Code        string
	Message     string
	Elapsed     time.Duration
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// LotState estado del lote (rLoteDE) en la SET.
type LotState string

const (
	LotReceived   LotState = "Received"
	LotProcessing LotState = "Processing"
	LotConcluded  LotState = "Concluded"
	LotError      LotState = "Error"
)

// Batch lote de DE enviado por siRecepLoteDE. La membresía se fija al crearlo.
type Batch struct {
	ID             string
	BusinessID     string
	DocType        int
	ProtocolNumber string // dProtConsLote
	State          LotState
	Members        []BatchMember
	LastCode       string
	LastMessage    string
	PollCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BatchMember miembro ordenado del lote.
type BatchMember struct {
	Position   int
	DocumentID string
	CDC        string
	Status     DocumentStatus
	Code       string
	Message    string
}

// Estados observados para un CDC.
const (
	TrackPending   = "Pending"
	TrackApproved  = "Approved"
	TrackRejected  = "Rejected"
	TrackCancelled = "Cancelled"
	TrackError     = "Error"
)

// CdcTrackEntry entrada del historial de estados observados de un CDC (solo inserción).
type CdcTrackEntry struct {
	ID             string
	CDC            string
	DocumentID     string
	LotID          string
	State          string
	Source         string // método SOAP que produjo la observación
	Code           string
	Message        string
	ProtocolNumber string
	ObservedAt     time.Time
}
