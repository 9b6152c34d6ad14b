package dto

import (
	"time"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// SubmitLotRequest body para POST /api/lots.
type SubmitLotRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// LotResponse lote y sus miembros.
type LotResponse struct {
	ID             string              `json:"id"`
	DocType        int                 `json:"doc_type"`
	ProtocolNumber string              `json:"protocol_number,omitempty"`
	State          string              `json:"state"`
	LastCode       string              `json:"last_code,omitempty"`
	LastMessage    string              `json:"last_message,omitempty"`
	PollCount      int                 `json:"poll_count"`
	Members        []LotMemberResponse `json:"members"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// LotMemberResponse miembro del lote en orden de envío.
type LotMemberResponse struct {
	Position   int    `json:"position"`
	DocumentID string `json:"document_id"`
	CDC        string `json:"cdc"`
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// NewLotResponse arma la respuesta del lote.
func NewLotResponse(b *entity.Batch) LotResponse {
	out := LotResponse{
		ID: b.ID, DocType: b.DocType, ProtocolNumber: b.ProtocolNumber, State: string(b.State),
		LastCode: b.LastCode, LastMessage: b.LastMessage, PollCount: b.PollCount,
		Members: make([]LotMemberResponse, 0, len(b.Members)), CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
	for _, m := range b.Members {
		out.Members = append(out.Members, LotMemberResponse{
			Position: m.Position, DocumentID: m.DocumentID, CDC: m.CDC,
			Status: string(m.Status), Code: m.Code, Message: m.Message,
		})
	}
	return out
}

// VoidRangeRequest body para POST /api/ranges/void.
type VoidRangeRequest struct {
	DocType       int    `json:"doc_type"`
	Establishment string `json:"establishment"`
	PointOfSale   string `json:"point_of_sale"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
	Reason        string `json:"reason"`
}

// EventResponse resultado de un evento (cancelación o inutilización).
type EventResponse struct {
	EventID        string `json:"event_id"`
	Result         string `json:"result"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	ProtocolNumber string `json:"protocol_number,omitempty"`
}

// RUCResponse resultado de siConsRUC.
type RUCResponse struct {
	RUC        string `json:"ruc"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusCode string `json:"status_code"`
	EInvoicing bool   `json:"e_invoicing"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}
