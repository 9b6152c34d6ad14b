package sifen

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// Transiciones permitidas del DE. Sent → Signed solo cuando consta que la SET no recibió el DE
// (la solicitud no salió o siConsDE responde CDC inexistente). Signed → Error cuando el lote
// que lo contenía no fue encolado.
var documentTransitions = map[entity.DocumentStatus][]entity.DocumentStatus{
	entity.DocStatusDraft:    {entity.DocStatusSigned},
	entity.DocStatusSigned:   {entity.DocStatusSent, entity.DocStatusEnqueued, entity.DocStatusError},
	entity.DocStatusSent:     {entity.DocStatusApproved, entity.DocStatusRejected, entity.DocStatusSigned},
	entity.DocStatusEnqueued: {entity.DocStatusApproved, entity.DocStatusRejected, entity.DocStatusError},
	entity.DocStatusApproved: {entity.DocStatusCancelled},
}

// Transiciones permitidas del lote.
var lotTransitions = map[entity.LotState][]entity.LotState{
	entity.LotReceived:   {entity.LotProcessing, entity.LotConcluded, entity.LotError},
	entity.LotProcessing: {entity.LotConcluded, entity.LotError},
}

// CanTransition indica si el DE puede pasar de from a to.
func CanTransition(from, to entity.DocumentStatus) bool {
	for _, s := range documentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionLot indica si el lote puede pasar de from a to.
func CanTransitionLot(from, to entity.LotState) bool {
	for _, s := range lotTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Finished indica si el lote ya no admite consultas.
func Finished(s entity.LotState) bool {
	return s == entity.LotConcluded || s == entity.LotError
}

// Observation datos de la respuesta de la SET que produjo el cambio de estado.
type Observation struct {
	Source         string // método SOAP u operación local
	Code           string
	Message        string
	ProtocolNumber string
	LotID          string
}

// Tracker aplica las tablas de transición y registra cada observación en el historial del CDC.
// No guarda estado propio: todo se lee y escribe por los repos recibidos.
type Tracker struct {
	now func() time.Time
	log zerolog.Logger
}

// NewTracker construye el tracker. now nil = time.Now.
func NewTracker(log zerolog.Logger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, log: log}
}

// Transition mueve el DE a `to`, lo persiste y agrega una entrada al historial.
// Repetir el estado actual no hace nada.
func (t *Tracker) Transition(ctx context.Context, r Repos, doc *entity.ElectronicDocument, to entity.DocumentStatus, obs Observation) error {
	if doc.Status == to {
		return nil
	}
	if !CanTransition(doc.Status, to) {
		return domain.NewStateError("documento", doc.ID, fmt.Sprintf("transición %s → %s no permitida", doc.Status, to))
	}
	now := t.now()
	doc.Status = to
	doc.LastCode, doc.LastMessage = obs.Code, obs.Message
	if obs.ProtocolNumber != "" && to != entity.DocStatusCancelled {
		doc.ProtocolNumber = obs.ProtocolNumber
	}
	if obs.LotID != "" {
		doc.LotID = obs.LotID
	}
	if to == entity.DocStatusApproved {
		doc.ApprovedAt = &now
	}
	doc.UpdatedAt = now
	if err := r.Documents.Update(ctx, doc); err != nil {
		return fmt.Errorf("tracker: persistir documento: %w", err)
	}
	if err := t.Record(ctx, r, doc, obs); err != nil {
		return err
	}
	t.log.Info().Str("doc_id", doc.ID).Str("cdc", doc.CDC).Str("status", string(to)).
		Str("code", obs.Code).Str("source", obs.Source).Msg("cambio de estado")
	return nil
}

// Record agrega una observación al historial sin cambiar el estado del DE.
func (t *Tracker) Record(ctx context.Context, r Repos, doc *entity.ElectronicDocument, obs Observation) error {
	if doc.CDC == "" {
		return nil
	}
	entry := &entity.CdcTrackEntry{
		CDC:            doc.CDC,
		DocumentID:     doc.ID,
		LotID:          obs.LotID,
		State:          trackState(doc.Status),
		Source:         obs.Source,
		Code:           obs.Code,
		Message:        obs.Message,
		ProtocolNumber: obs.ProtocolNumber,
		ObservedAt:     t.now(),
	}
	if err := r.Track.Append(ctx, entry); err != nil {
		return fmt.Errorf("tracker: historial %s: %w", doc.CDC, err)
	}
	return nil
}

// ApplyLotResult interpreta la respuesta de siResultLoteDE.
//
//	0361 → Processing
//	0362 → Concluded; cada miembro toma su resultado, sin resultado → Error
//	0360, 0160 → Error; todos los miembros → Error
//
// Un lote ya concluido o en error no cambia. Otro código devuelve ProtocolError sin cambios.
func (t *Tracker) ApplyLotResult(ctx context.Context, r Repos, b *entity.Batch, res *infra.LotResult) error {
	if Finished(b.State) {
		return nil
	}
	var to entity.LotState
	switch res.Code {
	case sifen.CodeLotProcessing:
		to = entity.LotProcessing
	case sifen.CodeLotConcluded:
		to = entity.LotConcluded
	case sifen.CodeLotNotFound, sifen.CodeUnexpectedError:
		to = entity.LotError
	default:
		return &domain.ProtocolError{Method: infra.MethodResultLote, Code: res.Code, Message: res.Message}
	}
	if b.State != to && !CanTransitionLot(b.State, to) {
		return domain.NewStateError("lote", b.ID, fmt.Sprintf("transición %s → %s no permitida", b.State, to))
	}

	switch to {
	case entity.LotConcluded:
		byCDC := make(map[string]infra.DocumentResult, len(res.Members))
		for _, m := range res.Members {
			byCDC[m.CDC] = m
		}
		for i := range b.Members {
			m := &b.Members[i]
			obs := Observation{Source: infra.MethodResultLote, LotID: b.ID}
			status := entity.DocStatusError
			if dr, ok := byCDC[m.CDC]; ok {
				status = entity.DocStatusRejected
				if dr.Approved() {
					status = entity.DocStatusApproved
				}
				obs.Code, obs.Message, obs.ProtocolNumber = dr.Code, dr.Message, dr.ProtocolNumber
			} else {
				obs.Message = "el lote concluyó sin resultado para el CDC"
			}
			if err := t.resolveMember(ctx, r, m, status, obs); err != nil {
				return err
			}
		}
	case entity.LotError:
		if err := t.failMembers(ctx, r, b, Observation{Source: infra.MethodResultLote, Code: res.Code, Message: res.Message}); err != nil {
			return err
		}
	}

	if b.State != to {
		t.log.Info().Str("lot_id", b.ID).Str("from", string(b.State)).Str("to", string(to)).
			Str("code", res.Code).Msg("cambio de estado del lote")
	}
	b.State = to
	b.LastCode, b.LastMessage = res.Code, res.Message
	b.UpdatedAt = t.now()
	if err := r.Batches.Update(ctx, b); err != nil {
		return fmt.Errorf("tracker: persistir lote: %w", err)
	}
	return nil
}

// failMembers pasa todos los miembros del lote a Error.
func (t *Tracker) failMembers(ctx context.Context, r Repos, b *entity.Batch, obs Observation) error {
	obs.LotID = b.ID
	for i := range b.Members {
		if err := t.resolveMember(ctx, r, &b.Members[i], entity.DocStatusError, obs); err != nil {
			return err
		}
	}
	return nil
}

// FailMembers pasa a Error todos los miembros de un lote ya persistido en Error (rechazado en
// la recepción) y guarda el estado de cada miembro.
func (t *Tracker) FailMembers(ctx context.Context, r Repos, b *entity.Batch, obs Observation) error {
	if b.State != entity.LotError {
		return domain.NewStateError("lote", b.ID, fmt.Sprintf("estado %s, se esperaba Error", b.State))
	}
	if err := t.failMembers(ctx, r, b, obs); err != nil {
		return err
	}
	b.UpdatedAt = t.now()
	if err := r.Batches.Update(ctx, b); err != nil {
		return fmt.Errorf("tracker: persistir lote: %w", err)
	}
	return nil
}

func (t *Tracker) resolveMember(ctx context.Context, r Repos, m *entity.BatchMember, status entity.DocumentStatus, obs Observation) error {
	doc, err := r.Documents.GetByID(ctx, m.DocumentID)
	if err != nil {
		return fmt.Errorf("tracker: miembro %d del lote: %w", m.Position, err)
	}
	if doc == nil {
		return domain.NewStateError("documento", m.DocumentID, "miembro de lote desconocido")
	}
	if err := t.Transition(ctx, r, doc, status, obs); err != nil {
		return err
	}
	m.Status, m.Code, m.Message = status, obs.Code, obs.Message
	return nil
}

func trackState(s entity.DocumentStatus) string {
	switch s {
	case entity.DocStatusApproved:
		return entity.TrackApproved
	case entity.DocStatusRejected:
		return entity.TrackRejected
	case entity.DocStatusCancelled:
		return entity.TrackCancelled
	case entity.DocStatusError:
		return entity.TrackError
	default:
		return entity.TrackPending
	}
}
