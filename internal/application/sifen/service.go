// Package sifen orquesta el ciclo del documento electrónico SIFEN:
//
//	validar → totales → CDC → XML → firma → QR → envío (individual o lote) → seguimiento
//
// Modos de operación (Config.AppEnv):
//   - "dev"  → arma y firma el XML, NO llama a la SET. Aprobación simulada.
//   - "test" → sifen-test.set.gov.py
//   - "prod" → sifen.set.gov.py
package sifen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
	domsifen "github.com/jhoicas/sifen-api/internal/domain/sifen"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// maxCDCAttempts reintentos ante colisión del código de seguridad.
const maxCDCAttempts = 5

const devProtocolPrefix = "DEV-"

// Service orquestador SIFEN. Todas las dependencias se inyectan; client puede ser nil en dev.
type Service struct {
	docs      repository.DocumentRepository
	batches   repository.BatchRepository
	track     repository.TrackRepository
	issuers   repository.IssuerRepository
	timbrados repository.TimbradoRepository
	tx        TxRunner
	builder   *infra.XMLBuilderService
	signer    sifen.Signer
	qr        *infra.QRFormatter
	keys      KeyPairSource
	client    ProtocolClient
	artifacts ArtifactSink
	tracker   *Tracker
	cfg       Config
	log       zerolog.Logger

	now          func() time.Time
	securityCode func() (string, error)
	eventSeq     atomic.Uint32
}

// Deps dependencias del orquestador.
type Deps struct {
	Documents repository.DocumentRepository
	Batches   repository.BatchRepository
	Track     repository.TrackRepository
	Issuers   repository.IssuerRepository
	Timbrados repository.TimbradoRepository
	Tx        TxRunner
	Builder   *infra.XMLBuilderService
	Signer    sifen.Signer
	QR        *infra.QRFormatter
	Keys      KeyPairSource
	Client    ProtocolClient
	Artifacts ArtifactSink
}

// Option configura el Service.
type Option func(*Service)

// WithClock reemplaza time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSecurityCodes reemplaza el generador del código de seguridad del CDC.
func WithSecurityCodes(gen func() (string, error)) Option {
	return func(s *Service) { s.securityCode = gen }
}

// NewService construye el orquestador.
func NewService(d Deps, cfg Config, log zerolog.Logger, opts ...Option) *Service {
	if cfg.CheckDigitBase == 0 {
		cfg.CheckDigitBase = sifen.DefaultCheckDigitBase
	}
	if cfg.MaxLotSize <= 0 || cfg.MaxLotSize > infra.MaxLotSize {
		cfg.MaxLotSize = infra.MaxLotSize
	}
	if cfg.CancelWindowInvoice == 0 {
		cfg.CancelWindowInvoice = 48 * time.Hour
	}
	if cfg.CancelWindowOther == 0 {
		cfg.CancelWindowOther = 168 * time.Hour
	}
	if cfg.AsyncTimeout == 0 {
		cfg.AsyncTimeout = 60 * time.Second
	}
	s := &Service{
		docs:         d.Documents,
		batches:      d.Batches,
		track:        d.Track,
		issuers:      d.Issuers,
		timbrados:    d.Timbrados,
		tx:           d.Tx,
		builder:      d.Builder,
		signer:       d.Signer,
		qr:           d.QR,
		keys:         d.Keys,
		client:       d.Client,
		artifacts:    d.Artifacts,
		cfg:          cfg,
		log:          log.With().Str("component", "sifen").Logger(),
		now:          time.Now,
		securityCode: domsifen.NewSecurityCode,
	}
	for _, o := range opts {
		o(s)
	}
	s.tracker = NewTracker(s.log, s.now)
	return s
}

// Dev indica si el servicio simula la SET. Solo con AppEnv "dev" explícito.
func (s *Service) Dev() bool {
	return strings.EqualFold(strings.TrimSpace(s.cfg.AppEnv), infra.AppEnvDev)
}

// =============================================================================
// Alta y preparación
// =============================================================================

// CreateDocument registra un DE en borrador. Valida la estructura antes de persistir.
func (s *Service) CreateDocument(ctx context.Context, doc *entity.ElectronicDocument) (*entity.ElectronicDocument, error) {
	if doc == nil {
		return nil, domain.NewValidationError("DE", "documento nulo")
	}
	if doc.CDC != "" || doc.Totals != nil {
		return nil, domain.NewValidationError("DE", "CDC y totales los asigna el motor")
	}
	issuer, err := s.issuers.GetByBusinessID(ctx, doc.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("emisor: %w", err)
	}
	if issuer == nil {
		return nil, domain.NewValidationError("gEmis", "la empresa no tiene emisor configurado")
	}
	doc.IssuerRUC, doc.IssuerDV, doc.TaxpayerType = issuer.RUC, issuer.DV, issuer.TaxpayerType
	if doc.Currency == "" {
		doc.Currency = sifen.CurrencyPYG
	}
	if err := domsifen.ValidateDocument(doc, s.cfg.CheckDigitBase); err != nil {
		return nil, err
	}
	now := s.now()
	doc.ID = uuid.New().String()
	doc.Status = entity.DocStatusDraft
	doc.CreatedAt, doc.UpdatedAt = now, now
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Info().Str("doc_id", doc.ID).Str("business_id", doc.BusinessID).
		Int("type", int(doc.DocType)).Msg("documento registrado")
	return doc, nil
}

// GetDocument devuelve el DE de la empresa.
func (s *Service) GetDocument(ctx context.Context, businessID, docID string) (*entity.ElectronicDocument, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("documento %s: %w", docID, domain.ErrNotFound)
	}
	if doc.BusinessID != businessID {
		return nil, domain.ErrForbidden
	}
	return doc, nil
}

// Prepare valida, calcula totales, asigna CDC, arma, firma y embebe el QR. Deja el DE en Signed.
// Un DE ya firmado se devuelve sin cambios.
func (s *Service) Prepare(ctx context.Context, businessID, docID string) (*entity.ElectronicDocument, error) {
	doc, err := s.GetDocument(ctx, businessID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.DocStatusSigned {
		return doc, nil
	}
	if doc.Status != entity.DocStatusDraft {
		return nil, domain.NewStateError("documento", doc.ID, "solo se prepara un documento en borrador")
	}
	log := s.log.With().Str("doc_id", doc.ID).Str("business_id", businessID).Logger()

	issuer, err := s.issuers.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("emisor: %w", err)
	}
	if issuer == nil {
		return nil, domain.NewValidationError("gEmis", "la empresa no tiene emisor configurado")
	}
	timbrado, err := s.timbrados.GetActive(ctx, businessID, int(doc.DocType), doc.Establishment, doc.PointOfSale)
	if err != nil {
		return nil, fmt.Errorf("timbrado: %w", err)
	}
	if timbrado == nil {
		return nil, domain.NewValidationError("gTimb", "no hay timbrado vigente para el tipo, establecimiento y punto")
	}
	if !timbrado.Covers(doc.Sequence) {
		return nil, domain.NewValidationError("dNumDoc", fmt.Sprintf("%d fuera del rango autorizado %d..%d",
			doc.Sequence, timbrado.RangeFrom, timbrado.RangeTo))
	}

	if err := domsifen.ValidateDocument(doc, s.cfg.CheckDigitBase); err != nil {
		return nil, err
	}
	if doc.Totals == nil {
		totals, err := domsifen.ComputeTotals(doc.Lines, doc.IsReturn)
		if err != nil {
			return nil, err
		}
		if err := doc.AttachTotals(totals); err != nil {
			return nil, domain.NewStateError("documento", doc.ID, err.Error())
		}
	}
	if doc.CDC == "" {
		if err := s.reserveCDC(ctx, doc); err != nil {
			return nil, err
		}
	}
	log = log.With().Str("cdc", doc.CDC).Logger()

	xmlDoc, err := s.builder.Build(&infra.BuildContext{
		Document:   doc,
		Issuer:     issuer,
		Timbrado:   timbrado,
		SignedAt:   s.now(),
		SystemName: s.cfg.SystemName,
	})
	if err != nil {
		return nil, err
	}
	day := s.now()
	if raw, err := xmlDoc.WriteToBytes(); err == nil {
		s.writeArtifact(log, "xml", func() (string, error) { return s.artifacts.WriteXML(day, doc.CDC, raw) })
	}

	kp, err := s.keys.KeyPairFor(ctx, businessID)
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(xmlDoc, doc.CDC, kp)
	if err != nil {
		return nil, err
	}

	token, err := s.qr.Format(infra.QRInput{
		CDC:                doc.CDC,
		EmissionDate:       doc.EmissionDate,
		ReceiverIsTaxpayer: doc.Receiver.IsTaxpayer,
		ReceiverID:         doc.Receiver.Identifier(),
		GrandTotal:         doc.Totals.GrandTotal,
		TotalIVA:           doc.Totals.TotalIVA,
		ItemCount:          doc.Totals.ItemCount,
		DigestValue:        signed.DigestValue,
	})
	if err != nil {
		return nil, err
	}
	if err := infra.EmbedQR(signed.Document, token.URL); err != nil {
		return nil, err
	}
	signedXML, err := signed.Document.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serializar XML firmado: %w", err)
	}
	s.writeArtifact(log, "signed", func() (string, error) { return s.artifacts.WriteSigned(day, doc.CDC, []byte(signedXML)) })
	if png, err := infra.QRPNG(token.URL); err == nil {
		s.writeArtifact(log, "qr", func() (string, error) { return s.artifacts.WriteQR(day, doc.CDC, png) })
	} else {
		log.Warn().Err(err).Msg("no se pudo generar la imagen QR")
	}

	doc.SignedXML = signedXML
	doc.DigestValue = signed.DigestValue
	doc.QRURL = token.URL
	err = s.tx.RunSIFEN(ctx, func(r Repos) error {
		return s.tracker.Transition(ctx, r, doc, entity.DocStatusSigned, Observation{Source: "prepare"})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// reserveCDC genera el CDC y lo reserva en la base. Reintenta con otro código de seguridad
// si el CDC ya existe.
func (s *Service) reserveCDC(ctx context.Context, doc *entity.ElectronicDocument) error {
	for attempt := 1; attempt <= maxCDCAttempts; attempt++ {
		code, err := s.securityCode()
		if err != nil {
			return err
		}
		cdc, _, err := domsifen.GenerateCDC(domsifen.CDCParams{
			DocType:        doc.DocType,
			IssuerRUC:      doc.IssuerRUC,
			IssuerDV:       doc.IssuerDV,
			Establishment:  doc.Establishment,
			PointOfSale:    doc.PointOfSale,
			Sequence:       doc.Sequence,
			TaxpayerType:   doc.TaxpayerType,
			EmissionDate:   doc.EmissionDate,
			SecurityCode:   code,
			CheckDigitBase: s.cfg.CheckDigitBase,
		})
		if err != nil {
			return err
		}
		err = s.docs.ReserveCDC(ctx, doc.ID, cdc, code)
		switch {
		case err == nil:
			if err := doc.AssignCDC(cdc, code); err != nil {
				return domain.NewStateError("documento", doc.ID, err.Error())
			}
			return nil
		case errors.Is(err, domain.ErrDuplicate):
			s.log.Warn().Str("doc_id", doc.ID).Int("attempt", attempt).Msg("colisión de CDC, nuevo código de seguridad")
		case errors.Is(err, domain.ErrCDCAlreadyAssigned):
			return &domain.StateError{Entity: "documento", ID: doc.ID, Message: "CDC ya asignado", Cause: err}
		default:
			return fmt.Errorf("reservar CDC: %w", err)
		}
	}
	return &domain.StateError{Entity: "documento", ID: doc.ID, Message: "no se pudo generar un CDC único", Cause: domain.ErrDuplicate}
}

// =============================================================================
// Envío individual
// =============================================================================

// Send transmite un DE firmado por siRecepDE. El DE queda en Sent antes de la llamada.
// Si la solicitud no llegó a escribirse vuelve a Signed y se puede reenviar; cualquier otro
// TransportError o SOAP Fault deja un resultado desconocido que se resuelve con QueryCDC.
// Un rechazo persiste Rejected y devuelve ProtocolError.
func (s *Service) Send(ctx context.Context, businessID, docID string) (*entity.ElectronicDocument, error) {
	doc, err := s.GetDocument(ctx, businessID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.DocStatusSigned {
		return nil, domain.NewStateError("documento", doc.ID, fmt.Sprintf("estado %s, se esperaba Signed", doc.Status))
	}
	if !s.Dev() && s.client == nil {
		return nil, fmt.Errorf("cliente SOAP no configurado para el ambiente %q", s.cfg.AppEnv)
	}
	log := s.log.With().Str("doc_id", doc.ID).Str("cdc", doc.CDC).Logger()

	err = s.tx.RunSIFEN(ctx, func(r Repos) error {
		return s.tracker.Transition(ctx, r, doc, entity.DocStatusSent, Observation{Source: infra.MethodRecepDE})
	})
	if err != nil {
		return nil, err
	}

	var res *infra.DocumentResult
	if s.Dev() {
		log.Info().Msg("[DEV] envío simulado, sin llamada a la SET")
		res = &infra.DocumentResult{
			CDC: doc.CDC, Result: sifen.ResultApproved, Code: sifen.CodeApproved,
			Message: "Aprobación simulada", ProtocolNumber: devProtocolPrefix + doc.CDC[len(doc.CDC)-10:],
		}
	} else {
		res, err = s.client.SendDocument(ctx, infra.Target{BusinessID: businessID, CDC: doc.CDC}, doc.SignedXML)
		if domain.NeverSent(err) {
			log.Warn().Err(err).Msg("la solicitud no salió; el DE vuelve a Signed")
			obs := Observation{Source: infra.MethodRecepDE, Message: "no enviado: " + err.Error()}
			if terr := s.tx.RunSIFEN(ctx, func(r Repos) error {
				return s.tracker.Transition(ctx, r, doc, entity.DocStatusSigned, obs)
			}); terr != nil {
				log.Error().Err(terr).Msg("no se pudo revertir el DE a Signed")
			}
			return doc, err
		}
		if err != nil {
			log.Error().Err(err).Msg("envío sin respuesta; resultado desconocido")
			return doc, err
		}
	}

	to := entity.DocStatusRejected
	if res.Approved() {
		to = entity.DocStatusApproved
	}
	obs := Observation{Source: infra.MethodRecepDE, Code: res.Code, Message: res.Message, ProtocolNumber: res.ProtocolNumber}
	err = s.tx.RunSIFEN(ctx, func(r Repos) error {
		return s.tracker.Transition(ctx, r, doc, to, obs)
	})
	if err != nil {
		return nil, err
	}
	if to == entity.DocStatusRejected {
		return doc, &domain.ProtocolError{Method: infra.MethodRecepDE, Code: res.Code, Message: res.Message}
	}
	return doc, nil
}

// ProcessAsync prepara y envía el DE en una goroutine propia con su propio timeout,
// desacoplada del ciclo HTTP.
func (s *Service) ProcessAsync(businessID, docID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AsyncTimeout)
		defer cancel()
		log := s.log.With().Str("doc_id", docID).Str("business_id", businessID).Logger()

		if _, err := s.Prepare(ctx, businessID, docID); err != nil {
			log.Error().Err(err).Msg("preparación asíncrona fallida")
			return
		}
		doc, err := s.Send(ctx, businessID, docID)
		if err != nil {
			log.Error().Err(err).Msg("envío asíncrono fallido")
			return
		}
		log.Info().Str("cdc", doc.CDC).Str("status", string(doc.Status)).Msg("documento procesado")
	}()
}

// =============================================================================
// Lotes
// =============================================================================

// SubmitLot envía hasta MaxLotSize DE firmados del mismo tipo por siRecepLoteDE.
// 0300 crea el lote en Received y pasa los miembros a Enqueued. Otro código registra el lote
// en Error con todos sus miembros en Error y devuelve ProtocolError.
func (s *Service) SubmitLot(ctx context.Context, businessID string, docIDs []string) (*entity.Batch, error) {
	if len(docIDs) == 0 || len(docIDs) > s.cfg.MaxLotSize {
		return nil, domain.NewValidationError("rLoteDE", fmt.Sprintf("el lote debe tener entre 1 y %d documentos", s.cfg.MaxLotSize))
	}
	if !s.Dev() && s.client == nil {
		return nil, fmt.Errorf("cliente SOAP no configurado para el ambiente %q", s.cfg.AppEnv)
	}
	seen := make(map[string]bool, len(docIDs))
	docs := make([]*entity.ElectronicDocument, 0, len(docIDs))
	signed := make([]string, 0, len(docIDs))
	for _, id := range docIDs {
		if seen[id] {
			return nil, domain.NewValidationError("rLoteDE", "documento repetido: "+id)
		}
		seen[id] = true
		doc, err := s.GetDocument(ctx, businessID, id)
		if err != nil {
			return nil, err
		}
		if doc.Status != entity.DocStatusSigned {
			return nil, domain.NewStateError("documento", doc.ID, fmt.Sprintf("estado %s, se esperaba Signed", doc.Status))
		}
		if len(docs) > 0 && doc.DocType != docs[0].DocType {
			return nil, domain.NewValidationError("iTiDE", "todos los documentos del lote deben ser del mismo tipo")
		}
		docs = append(docs, doc)
		signed = append(signed, doc.SignedXML)
	}

	lotXML, err := infra.BuildLotXML(signed)
	if err != nil {
		return nil, err
	}
	zipBytes, err := infra.CompressLot(lotXML)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b := &entity.Batch{
		ID:         uuid.New().String(),
		BusinessID: businessID,
		DocType:    int(docs[0].DocType),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log := s.log.With().Str("lot_id", b.ID).Str("business_id", businessID).Logger()

	var receipt *infra.LotReceipt
	if s.Dev() {
		log.Info().Int("members", len(docs)).Msg("[DEV] lote simulado, sin llamada a la SET")
		receipt = &infra.LotReceipt{Code: sifen.CodeLotReceived, Message: "Lote recibido (simulado)", ProtocolNumber: devProtocolPrefix + b.ID}
	} else {
		receipt, err = s.client.SendLot(ctx, infra.Target{BusinessID: businessID, LotID: b.ID}, zipBytes)
		if err != nil {
			log.Error().Err(err).Msg("envío de lote sin respuesta")
			return nil, err
		}
	}

	accepted := receipt.Code == sifen.CodeLotReceived
	b.ProtocolNumber = receipt.ProtocolNumber
	b.LastCode, b.LastMessage = receipt.Code, receipt.Message
	b.State = entity.LotReceived
	memberStatus := entity.DocStatusEnqueued
	if !accepted {
		b.State = entity.LotError
		memberStatus = entity.DocStatusSigned
	}
	for i, doc := range docs {
		b.Members = append(b.Members, entity.BatchMember{
			Position: i + 1, DocumentID: doc.ID, CDC: doc.CDC, Status: memberStatus,
		})
	}

	obs := Observation{Source: infra.MethodRecepLoteDE, Code: receipt.Code, Message: receipt.Message, LotID: b.ID}
	err = s.tx.RunSIFEN(ctx, func(r Repos) error {
		if err := r.Batches.Create(ctx, b); err != nil {
			return err
		}
		if !accepted {
			return s.tracker.FailMembers(ctx, r, b, obs)
		}
		for _, doc := range docs {
			if err := s.tracker.Transition(ctx, r, doc, entity.DocStatusEnqueued, obs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		log.Warn().Str("code", receipt.Code).Msg("lote no encolado")
		return b, &domain.ProtocolError{Method: infra.MethodRecepLoteDE, Code: receipt.Code, Message: receipt.Message}
	}
	log.Info().Str("protocol", b.ProtocolNumber).Int("members", len(b.Members)).Msg("lote recibido")
	return b, nil
}

// PollLot consulta el resultado del lote y aplica las transiciones. Un lote concluido o en
// error se devuelve tal cual, sin llamar a la SET. Un SOAP Fault de siResultLoteDE se trata
// como error inesperado (0160): el lote y todos sus miembros pasan a Error.
func (s *Service) PollLot(ctx context.Context, businessID, lotID string) (*entity.Batch, error) {
	b, err := s.batches.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NewStateError("lote", lotID, "lote desconocido")
	}
	if businessID != "" && b.BusinessID != businessID {
		return nil, domain.ErrForbidden
	}
	if Finished(b.State) {
		return b, nil
	}

	var res *infra.LotResult
	if s.Dev() {
		res = &infra.LotResult{Code: sifen.CodeLotConcluded, Message: "Lote concluido (simulado)"}
		for _, m := range b.Members {
			res.Members = append(res.Members, infra.DocumentResult{
				CDC: m.CDC, Result: sifen.ResultApproved, Code: sifen.CodeApproved, Message: "Aprobación simulada",
			})
		}
	} else {
		if s.client == nil {
			return nil, fmt.Errorf("cliente SOAP no configurado para el ambiente %q", s.cfg.AppEnv)
		}
		res, err = s.client.QueryLot(ctx, infra.Target{BusinessID: b.BusinessID, LotID: b.ID}, b.ProtocolNumber)
		var perr *domain.ProtocolError
		switch {
		case errors.As(err, &perr):
			// SOAP Fault o respuesta sin contenido: error inesperado del lote.
			res = &infra.LotResult{Code: sifen.CodeUnexpectedError, Message: perr.Error()}
		case err != nil:
			return nil, err
		}
	}

	b.PollCount++
	err = s.tx.RunSIFEN(ctx, func(r Repos) error {
		return s.tracker.ApplyLotResult(ctx, r, b, res)
	})
	if err != nil {
		return nil, err
	}
	if b.State == entity.LotError {
		s.log.Warn().Str("lot_id", b.ID).Str("code", res.Code).Str("message", res.Message).Msg("lote en error")
	}
	return b, nil
}

// OpenLots lotes pendientes de resultado (para el worker).
func (s *Service) OpenLots(ctx context.Context, limit int) ([]*entity.Batch, error) {
	return s.batches.ListOpen(ctx, limit)
}

// =============================================================================
// Consultas
// =============================================================================

// CDCStatus estado local y remoto de un CDC.
type CDCStatus struct {
	Document *entity.ElectronicDocument
	History  []*entity.CdcTrackEntry
	Remote   *infra.QueryResult // nil en dev
}

// QueryCDC consulta el CDC en la SET por siConsDE y concilia el estado local: un DE enviado o
// encolado que la SET conoce pasa a Approved; un evento de cancelación pasa a Cancelled; un DE
// enviado que la SET no conoce (0420) vuelve a Signed para reenviarlo.
func (s *Service) QueryCDC(ctx context.Context, businessID, cdc string) (*CDCStatus, error) {
	if err := domsifen.ValidateCDC(cdc, s.cfg.CheckDigitBase); err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByCDC(ctx, cdc)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.NewStateError("CDC", cdc, "CDC desconocido")
	}
	if doc.BusinessID != businessID {
		return nil, domain.ErrForbidden
	}

	out := &CDCStatus{Document: doc}
	if !s.Dev() {
		if s.client == nil {
			return nil, fmt.Errorf("cliente SOAP no configurado para el ambiente %q", s.cfg.AppEnv)
		}
		res, err := s.client.QueryDocument(ctx, infra.Target{BusinessID: businessID, CDC: cdc}, cdc)
		if err != nil {
			return nil, err
		}
		out.Remote = res
		obs := Observation{Source: infra.MethodConsDE, Code: res.Code, Message: res.Message, ProtocolNumber: res.ProtocolNumber}
		err = s.tx.RunSIFEN(ctx, func(r Repos) error {
			switch {
			case res.Found && res.Cancelled && doc.Status == entity.DocStatusApproved:
				return s.tracker.Transition(ctx, r, doc, entity.DocStatusCancelled, obs)
			case res.Found && (doc.Status == entity.DocStatusSent || doc.Status == entity.DocStatusEnqueued):
				return s.tracker.Transition(ctx, r, doc, entity.DocStatusApproved, obs)
			case res.Code == sifen.CodeCDCNotFound && doc.Status == entity.DocStatusSent:
				return s.tracker.Transition(ctx, r, doc, entity.DocStatusSigned, obs)
			default:
				return s.tracker.Record(ctx, r, doc, obs)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	history, err := s.track.ListByCDC(ctx, cdc)
	if err != nil {
		return nil, err
	}
	out.History = history
	return out, nil
}

// LookupRUC consulta un RUC en la SET (siConsRUC). Acepta el RUC con o sin DV.
func (s *Service) LookupRUC(ctx context.Context, businessID, ruc string) (*infra.RUCResult, error) {
	ruc = sifen.NormalizeRUC(ruc)
	base := ruc
	if strings.Contains(ruc, "-") {
		if err := sifen.ValidateRUC(ruc, s.cfg.CheckDigitBase); err != nil {
			return nil, domain.NewValidationError("dRUCCons", err.Error())
		}
		base, _, _ = sifen.SplitRUC(ruc)
	}
	if base == "" || len(base) > 8 {
		return nil, domain.NewValidationError("dRUCCons", "RUC inválido")
	}
	if s.Dev() {
		return &infra.RUCResult{
			Code: sifen.CodeRUCFound, Message: "Consulta simulada", RUC: base,
			StatusCode: "ACT", Status: "ACTIVO",
		}, nil
	}
	if s.client == nil {
		return nil, fmt.Errorf("cliente SOAP no configurado para el ambiente %q", s.cfg.AppEnv)
	}
	return s.client.QueryRUC(ctx, infra.Target{BusinessID: businessID}, base)
}

// =============================================================================
// Eventos
// =============================================================================

// CancelWindow ventana de cancelación según el tipo de documento.
func (s *Service) CancelWindow(t sifen.DocumentType) time.Duration {
	switch t {
	case sifen.DocInvoice, sifen.DocExportInvoice, sifen.DocImportInvoice:
		return s.cfg.CancelWindowInvoice
	default:
		return s.cfg.CancelWindowOther
	}
}

// Cancel registra el evento de cancelación de un DE aprobado dentro de la ventana permitida.
func (s *Service) Cancel(ctx context.Context, businessID, docID, reason string) (*entity.ElectronicDocument, error) {
	doc, err := s.GetDocument(ctx, businessID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.DocStatusApproved {
		return nil, domain.NewStateError("documento", doc.ID, "solo se cancela un documento aprobado")
	}
	ref := doc.EmissionDate
	if doc.ApprovedAt != nil {
		ref = *doc.ApprovedAt
	}
	if window := s.CancelWindow(doc.DocType); s.now().Sub(ref) > window {
		return nil, domain.NewStateError("documento", doc.ID, fmt.Sprintf("fuera de la ventana de cancelación (%s)", window))
	}

	now := s.now()
	ev, err := infra.BuildCancelEvent(infra.CancelEvent{EventID: s.nextEventID(now), CDC: doc.CDC, Reason: reason, At: now})
	if err != nil {
		return nil, err
	}
	res, err := s.sendEvent(ctx, businessID, doc.CDC, ev)
	if err != nil {
		return nil, err
	}
	obs := Observation{Source: infra.MethodRecepEvento, Code: res.Code, Message: res.Message, ProtocolNumber: res.ProtocolNumber}
	if !res.Approved() {
		if err := s.tx.RunSIFEN(ctx, func(r Repos) error { return s.tracker.Record(ctx, r, doc, obs) }); err != nil {
			s.log.Warn().Err(err).Str("doc_id", doc.ID).Str("cdc", doc.CDC).Msg("no se pudo registrar el rechazo de la cancelación")
		}
		return nil, &domain.ProtocolError{Method: infra.MethodRecepEvento, Code: res.Code, Message: res.Message}
	}
	err = s.tx.RunSIFEN(ctx, func(r Repos) error {
		return s.tracker.Transition(ctx, r, doc, entity.DocStatusCancelled, obs)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// VoidRangeInput rango de numeración a inutilizar.
type VoidRangeInput struct {
	DocType       sifen.DocumentType
	Establishment string
	PointOfSale   string
	From          int64
	To            int64
	Reason        string
}

// VoidRange inutiliza un rango de numeración del timbrado vigente.
func (s *Service) VoidRange(ctx context.Context, businessID string, in VoidRangeInput) (*infra.EventResult, error) {
	timbrado, err := s.timbrados.GetActive(ctx, businessID, int(in.DocType), in.Establishment, in.PointOfSale)
	if err != nil {
		return nil, fmt.Errorf("timbrado: %w", err)
	}
	if timbrado == nil {
		return nil, domain.NewValidationError("dNumTim", "no hay timbrado vigente para el tipo, establecimiento y punto")
	}
	if !timbrado.Covers(in.From) || !timbrado.Covers(in.To) {
		return nil, domain.NewValidationError("dNumIn", "el rango excede la numeración autorizada")
	}
	now := s.now()
	ev, err := infra.BuildVoidRangeEvent(infra.VoidRangeEvent{
		EventID:       s.nextEventID(now),
		Timbrado:      timbrado.Number,
		Establishment: in.Establishment,
		PointOfSale:   in.PointOfSale,
		From:          in.From,
		To:            in.To,
		DocType:       in.DocType,
		Reason:        in.Reason,
		At:            now,
	})
	if err != nil {
		return nil, err
	}
	res, err := s.sendEvent(ctx, businessID, "", ev)
	if err != nil {
		return nil, err
	}
	if !res.Approved() {
		return res, &domain.ProtocolError{Method: infra.MethodRecepEvento, Code: res.Code, Message: res.Message}
	}
	s.log.Info().Str("business_id", businessID).Int64("from", in.From).Int64("to", in.To).Msg("rango inutilizado")
	return res, nil
}

// sendEvent firma rEve y lo transmite por siRecepEvento. En dev simula el registro.
func (s *Service) sendEvent(ctx context.Context, businessID, cdc string, ev *etree.Document) (*infra.EventResult, error) {
	rEve := ev.FindElement(".//rEve")
	if rEve == nil {
		return nil, domain.NewValidationError("rEve", "evento sin rEve")
	}
	eventID := rEve.SelectAttrValue("Id", "")
	kp, err := s.keys.KeyPairFor(ctx, businessID)
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(ev, eventID, kp)
	if err != nil {
		return nil, err
	}
	raw, err := signed.Document.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serializar evento: %w", err)
	}
	if s.Dev() {
		s.log.Info().Str("event_id", eventID).Str("cdc", cdc).Msg("[DEV] evento simulado, sin llamada a la SET")
		return &infra.EventResult{
			EventID: eventID, Result: sifen.ResultApproved, Code: sifen.CodeEventRegistered,
			Message: "Evento registrado (simulado)",
		}, nil
	}
	if s.client == nil {
		return nil, fmt.Errorf("cliente SOAP no configurado para el ambiente %q", s.cfg.AppEnv)
	}
	return s.client.SendEvent(ctx, infra.Target{BusinessID: businessID, CDC: cdc}, raw)
}

// nextEventID Id numérico del evento (hasta 10 dígitos).
func (s *Service) nextEventID(now time.Time) string {
	seq := s.eventSeq.Add(1) % 100
	return strconv.FormatInt((now.Unix()%100_000_000)*100+int64(seq), 10)
}

func (s *Service) writeArtifact(log zerolog.Logger, kind string, write func() (string, error)) {
	if s.artifacts == nil {
		return
	}
	if _, err := write(); err != nil {
		log.Warn().Err(err).Str("artifact", kind).Msg("no se pudo guardar el artefacto")
	}
}
