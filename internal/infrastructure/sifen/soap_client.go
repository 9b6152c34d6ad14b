package sifen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// AppEnvDev identificador local: firma y registra pero no envía a la SET.
	AppEnvDev = "dev"
	// AppEnvTest ambiente de pruebas de la SET.
	AppEnvTest = "test"
	// AppEnvProd ambiente de producción.
	AppEnvProd = "prod"

	baseURLTest = "https://sifen-test.set.gov.py"
	baseURLProd = "https://sifen.set.gov.py"

	soapNS          = "http://www.w3.org/2003/05/soap-envelope"
	soapContentType = "application/soap+xml; charset=utf-8"

	maxResponseBytes = 10 << 20
)

// Métodos SOAP de la SET.
const (
	MethodRecepDE     = "siRecepDE"
	MethodRecepLoteDE = "siRecepLoteDE"
	MethodConsDE      = "siConsDE"
	MethodResultLote  = "siResultLoteDE"
	MethodRecepEvento = "siRecepEvento"
	MethodConsRUC     = "siConsRUC"
)

var methodPaths = map[string]string{
	MethodRecepDE:     "/de/ws/sync/recibe.wsdl",
	MethodRecepLoteDE: "/de/ws/async/recibe-lote.wsdl",
	MethodConsDE:      "/de/ws/consultas/consulta.wsdl",
	MethodResultLote:  "/de/ws/consultas/consulta-lote.wsdl",
	MethodRecepEvento: "/de/ws/eventos/evento.wsdl",
	MethodConsRUC:     "/de/ws/consultas/consulta-ruc.wsdl",
}

// ── Puertos ───────────────────────────────────────────────────────────────────

// KeyPairProvider entrega el certificado de la empresa para autenticar el canal TLS.
type KeyPairProvider interface {
	KeyPairFor(ctx context.Context, businessID string) (tls.Certificate, error)
}

// ArtifactWriter persiste el XML de solicitudes y respuestas SOAP. Devuelve la ruta escrita.
type ArtifactWriter interface {
	WriteSOAP(day time.Time, key, method, kind string, data []byte) (string, error)
}

// ── Resultados ────────────────────────────────────────────────────────────────

// DocumentResult resultado de la SET para un DE (siRecepDE o miembro de lote).
type DocumentResult struct {
	CDC            string
	Result         string // dEstRes: Aprobado, Aprobado con observación, Rechazado
	Code           string
	Message        string
	ProtocolNumber string // dProtAut
	ProcessedAt    string
}

// Approved indica aprobación (incluye "Aprobado con observación").
func (r DocumentResult) Approved() bool {
	return strings.HasPrefix(strings.TrimSpace(r.Result), sifen.ResultApproved)
}

// LotReceipt respuesta de siRecepLoteDE.
type LotReceipt struct {
	Code           string // 0300 recibido, 0301 no encolado
	Message        string
	ProtocolNumber string // dProtConsLote
	ProcessingTime string // dTpoProces
}

// LotResult respuesta de siResultLoteDE.
type LotResult struct {
	Code    string // 0360 inexistente, 0361 en proceso, 0362 concluido
	Message string
	Members []DocumentResult
}

// QueryResult respuesta de siConsDE.
type QueryResult struct {
	Found          bool
	Code           string
	Message        string
	ProtocolNumber string
	Cancelled      bool // el contenido incluye un evento de cancelación
}

// EventResult respuesta de siRecepEvento.
type EventResult struct {
	EventID        string
	Result         string
	Code           string
	Message        string
	ProtocolNumber string
}

// Approved indica que el evento fue registrado.
func (r EventResult) Approved() bool {
	return strings.HasPrefix(strings.TrimSpace(r.Result), sifen.ResultApproved)
}

// RUCResult respuesta de siConsRUC.
type RUCResult struct {
	Code       string
	Message    string
	RUC        string
	Name       string
	StatusCode string
	Status     string
	EInvoicing bool
}

// Target identifica a quién pertenece la llamada (empresa, CDC o lote) para auditoría.
type Target struct {
	BusinessID string
	CDC        string
	LotID      string
}

func (t Target) key(method string) string {
	switch {
	case t.CDC != "":
		return t.CDC
	case t.LotID != "":
		return "lote-" + t.LotID
	default:
		return method
	}
}

// ── Cliente ───────────────────────────────────────────────────────────────────

// ClientConfig parámetros del cliente SOAP.
type ClientConfig struct {
	AppEnv  string
	BaseURL string        // vacío = URL del ambiente
	Timeout time.Duration // por llamada
}

// SOAPClient cliente SOAP 1.2 con la SET. Cada llamada registra una SoapTransaction pending
// antes de enviar y la completa después. No reintenta: los reintentos son del llamador.
type SOAPClient struct {
	baseURL   string
	timeout   time.Duration
	keys      KeyPairProvider
	audit     repository.SoapTransactionRepository
	artifacts ArtifactWriter
	log       zerolog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client // por huella del certificado
	seq     atomic.Uint32
	now     func() time.Time
}

// NewSOAPClient construye el cliente.
func NewSOAPClient(cfg ClientConfig, keys KeyPairProvider, audit repository.SoapTransactionRepository, artifacts ArtifactWriter, log zerolog.Logger) *SOAPClient {
	base := cfg.BaseURL
	if base == "" {
		base = baseURLTest
		if cfg.AppEnv == AppEnvProd {
			base = baseURLProd
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SOAPClient{
		baseURL:   strings.TrimSuffix(base, "/"),
		timeout:   timeout,
		keys:      keys,
		audit:     audit,
		artifacts: artifacts,
		log:       log.With().Str("component", "soap").Logger(),
		clients:   make(map[string]*http.Client),
		now:       time.Now,
	}
}

// SendDocument envía un DE firmado por siRecepDE (sincrónico).
func (c *SOAPClient) SendDocument(ctx context.Context, t Target, signedXML string) (*DocumentResult, error) {
	rDE, err := parseRoot(signedXML, "rDE")
	if err != nil {
		return nil, err
	}
	req := newBodyElement("rEnviDe")
	addText(req, "dId", c.nextID())
	req.CreateElement("xDE").AddChild(rDE)

	body, err := c.call(ctx, t, MethodRecepDE, req, func(b *etree.Element) (string, string) {
		return text(b, ".//dCodRes"), text(b, ".//dMsgRes")
	})
	if err != nil {
		return nil, err
	}
	prot := body.FindElement(".//rProtDe")
	if prot == nil {
		return nil, &domain.ProtocolError{Method: MethodRecepDE, Code: text(body, ".//dCodRes"), Message: "respuesta sin rProtDe: " + text(body, ".//dMsgRes")}
	}
	res := documentResult(prot)
	if res.CDC == "" {
		res.CDC = t.CDC
	}
	return &res, nil
}

// SendLot envía el lote (ZIP en base64 de rLoteDE) por siRecepLoteDE.
func (c *SOAPClient) SendLot(ctx context.Context, t Target, zipBytes []byte) (*LotReceipt, error) {
	req := newBodyElement("rEnvioLote")
	addText(req, "dId", c.nextID())
	addText(req, "xDE", base64.StdEncoding.EncodeToString(zipBytes))

	body, err := c.call(ctx, t, MethodRecepLoteDE, req, func(b *etree.Element) (string, string) {
		return text(b, ".//dCodRes"), text(b, ".//dMsgRes")
	})
	if err != nil {
		return nil, err
	}
	return &LotReceipt{
		Code:           text(body, ".//dCodRes"),
		Message:        text(body, ".//dMsgRes"),
		ProtocolNumber: text(body, ".//dProtConsLote"),
		ProcessingTime: text(body, ".//dTpoProces"),
	}, nil
}

// QueryLot consulta el resultado de un lote por siResultLoteDE.
func (c *SOAPClient) QueryLot(ctx context.Context, t Target, protocolNumber string) (*LotResult, error) {
	req := newBodyElement("rEnviConsLoteDe")
	addText(req, "dId", c.nextID())
	addText(req, "dProtConsLote", protocolNumber)

	body, err := c.call(ctx, t, MethodResultLote, req, func(b *etree.Element) (string, string) {
		return text(b, ".//dCodResLot"), text(b, ".//dMsgResLot")
	})
	if err != nil {
		return nil, err
	}
	out := &LotResult{
		Code:    text(body, ".//dCodResLot"),
		Message: text(body, ".//dMsgResLot"),
	}
	for _, el := range body.FindElements(".//gResProcLote") {
		out.Members = append(out.Members, documentResult(el))
	}
	return out, nil
}

// QueryDocument consulta un CDC por siConsDE.
func (c *SOAPClient) QueryDocument(ctx context.Context, t Target, cdc string) (*QueryResult, error) {
	req := newBodyElement("rEnviConsDeRequest")
	addText(req, "dId", c.nextID())
	addText(req, "dCDC", cdc)

	body, err := c.call(ctx, t, MethodConsDE, req, func(b *etree.Element) (string, string) {
		return text(b, ".//dCodRes"), text(b, ".//dMsgRes")
	})
	if err != nil {
		return nil, err
	}
	code := text(body, ".//dCodRes")
	res := &QueryResult{
		Found:   code == sifen.CodeCDCFound,
		Code:    code,
		Message: text(body, ".//dMsgRes"),
	}
	if content := body.FindElement(".//xContenDE"); content != nil {
		inner := innerDocument(content)
		res.ProtocolNumber = text(inner, ".//dProtAut")
		res.Cancelled = inner.FindElement(".//rGeVeCan") != nil
	}
	return res, nil
}

// SendEvent envía un evento firmado (gGroupGesEve) por siRecepEvento.
func (c *SOAPClient) SendEvent(ctx context.Context, t Target, signedEvent string) (*EventResult, error) {
	group, err := parseRoot(signedEvent, "gGroupGesEve")
	if err != nil {
		return nil, err
	}
	req := newBodyElement("rEnviEventoDe")
	addText(req, "dId", c.nextID())
	req.CreateElement("dEvReg").AddChild(group)

	body, err := c.call(ctx, t, MethodRecepEvento, req, func(b *etree.Element) (string, string) {
		return text(b, ".//dCodRes"), text(b, ".//dMsgRes")
	})
	if err != nil {
		return nil, err
	}
	el := body.FindElement(".//gResProcEVe")
	if el == nil {
		el = body
	}
	return &EventResult{
		EventID:        text(el, ".//id"),
		Result:         text(el, ".//dEstRes"),
		Code:           text(el, ".//dCodRes"),
		Message:        text(el, ".//dMsgRes"),
		ProtocolNumber: text(el, ".//dProtAut"),
	}, nil
}

// QueryRUC consulta un RUC por siConsRUC.
func (c *SOAPClient) QueryRUC(ctx context.Context, t Target, ruc string) (*RUCResult, error) {
	req := newBodyElement("rEnviConsRUC")
	addText(req, "dId", c.nextID())
	addText(req, "dRUCCons", ruc)

	body, err := c.call(ctx, t, MethodConsRUC, req, func(b *etree.Element) (string, string) {
		return text(b, ".//dCodRes"), text(b, ".//dMsgRes")
	})
	if err != nil {
		return nil, err
	}
	return &RUCResult{
		Code:       text(body, ".//dCodRes"),
		Message:    text(body, ".//dMsgRes"),
		RUC:        text(body, ".//dRUCCons"),
		Name:       text(body, ".//dRazCons"),
		StatusCode: text(body, ".//dCodEstCons"),
		Status:     text(body, ".//dDesEstCons"),
		EInvoicing: strings.EqualFold(text(body, ".//dRUCFactElec"), "S"),
	}, nil
}

// ── Transporte ────────────────────────────────────────────────────────────────

type codeExtractor func(body *etree.Element) (code, message string)

// call registra la transacción, envía el envelope por mTLS y devuelve el primer hijo de Body.
func (c *SOAPClient) call(ctx context.Context, t Target, method string, content *etree.Element, extract codeExtractor) (*etree.Element, error) {
	url := c.baseURL + methodPaths[method]
	payload, err := buildEnvelope(content)
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	keyPair, err := c.keys.KeyPairFor(ctx, t.BusinessID)
	if err != nil {
		return nil, err
	}
	httpClient, err := c.clientFor(keyPair)
	if err != nil {
		return nil, domain.NewCryptoError("canal mTLS", err)
	}

	now := c.now()
	key := t.key(method)
	reqRef := c.writeArtifact(now, key, method, "request", payload)

	tx := &entity.SoapTransaction{
		ID:         uuid.New().String(),
		BusinessID: t.BusinessID,
		Method:     method,
		CDC:        t.CDC,
		LotID:      t.LotID,
		RequestRef: reqRef,
		Status:     entity.SoapPending,
		CreatedAt:  now,
	}
	if err := c.audit.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("soap: registrar transacción: %w", err)
	}

	log := c.log.With().Str("method", method).Str("tx_id", tx.ID).Str("business_id", t.BusinessID).Logger()
	if t.CDC != "" {
		log = log.With().Str("cdc", t.CDC).Logger()
	}
	if t.LotID != "" {
		log = log.With().Str("lot_id", t.LotID).Logger()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { wrote.Store(true) },
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(callCtx, trace), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.fail(ctx, tx, now, "", err.Error(), "")
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", soapContentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		timeout := isTimeout(callCtx, err)
		unsent := !wrote.Load()
		c.fail(ctx, tx, now, "", err.Error(), "")
		log.Warn().Err(err).Bool("timeout", timeout).Bool("unsent", unsent).Msg("llamada SOAP fallida")
		return nil, &domain.TransportError{Method: method, Timeout: timeout, Unsent: unsent, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.fail(ctx, tx, now, "", err.Error(), "")
		return nil, &domain.TransportError{Method: method, Timeout: isTimeout(callCtx, err), Cause: err}
	}
	c.writeArtifact(now, key, method, "response", raw)

	body, err := parseEnvelope(raw)
	if err != nil {
		c.fail(ctx, tx, now, "", err.Error(), string(raw))
		log.Warn().Err(err).Int("http_status", resp.StatusCode).Msg("respuesta SOAP ilegible")
		return nil, &domain.TransportError{Method: method, Cause: fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)}
	}

	if fault := body.SelectElement("Fault"); fault != nil {
		code := text(fault, ".//Value")
		msg := text(fault, ".//Text")
		c.fail(ctx, tx, now, code, msg, string(raw))
		log.Warn().Str("fault_code", code).Str("fault", msg).Msg("SOAP Fault")
		return nil, &domain.ProtocolError{Method: method, Code: code, Message: msg}
	}

	content = firstChild(body)
	if content == nil {
		c.fail(ctx, tx, now, "", "Body vacío", string(raw))
		return nil, &domain.ProtocolError{Method: method, Message: "respuesta SOAP sin contenido"}
	}

	code, msg := extract(content)
	c.complete(ctx, tx, now, entity.SoapSuccess, code, msg, string(raw))
	log.Info().Str("code", code).Dur("elapsed", tx.Elapsed).Msg("respuesta SET")
	return content, nil
}

func (c *SOAPClient) fail(ctx context.Context, tx *entity.SoapTransaction, start time.Time, code, msg, raw string) {
	c.complete(ctx, tx, start, entity.SoapFailure, code, msg, raw)
}

// complete actualiza la transacción. Usa un contexto propio para registrar aunque el del
// llamador haya expirado.
func (c *SOAPClient) complete(ctx context.Context, tx *entity.SoapTransaction, start time.Time, status, code, msg, raw string) {
	done := c.now()
	tx.Status = status
	tx.Code = code
	tx.Message = msg
	tx.Response = raw
	tx.Elapsed = done.Sub(start)
	tx.CompletedAt = &done

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.audit.Complete(auditCtx, tx); err != nil {
		c.log.Error().Err(err).Str("tx_id", tx.ID).Msg("no se pudo completar la transacción SOAP")
	}
}

func (c *SOAPClient) writeArtifact(day time.Time, key, method, kind string, data []byte) string {
	if c.artifacts == nil {
		return ""
	}
	path, err := c.artifacts.WriteSOAP(day, key, method, kind, data)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("kind", kind).Msg("no se pudo guardar artefacto SOAP")
		return ""
	}
	return path
}

// clientFor devuelve un http.Client con mTLS para el certificado. Un certificado rotado
// tiene otra huella y obtiene un cliente nuevo.
func (c *SOAPClient) clientFor(kp tls.Certificate) (*http.Client, error) {
	if len(kp.Certificate) == 0 {
		return nil, errors.New("certificado sin cadena X.509")
	}
	sum := sha256.Sum256(kp.Certificate[0])
	fp := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[fp]; ok {
		return hc, nil
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{kp},
			MinVersion:   tls.VersionTLS12,
		},
		TLSHandshakeTimeout: 15 * time.Second,
		IdleConnTimeout:     90 * time.Second,
	}
	hc := &http.Client{Transport: transport, Timeout: c.timeout}
	c.clients[fp] = hc
	return hc, nil
}

// nextID dId: numérico basado en tiempo (ms) más un contador de 2 dígitos, máx. 15 dígitos.
func (c *SOAPClient) nextID() string {
	ms := c.now().UnixMilli() % 10_000_000_000_000
	n := c.seq.Add(1) % 100
	return strconv.FormatInt(ms, 10) + fmt.Sprintf("%02d", n)
}

// ── XML ───────────────────────────────────────────────────────────────────────

func newBodyElement(tag string) *etree.Element {
	el := etree.NewElement(tag)
	el.CreateAttr("xmlns", sifen.Namespace)
	return el
}

func buildEnvelope(content *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("env:Envelope")
	env.CreateAttr("xmlns:env", soapNS)
	env.CreateElement("env:Header")
	env.CreateElement("env:Body").AddChild(content)
	return doc.WriteToBytes()
}

// parseEnvelope devuelve el elemento Body. Acepta respuestas UTF-8 e ISO-8859-1.
func parseEnvelope(raw []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("XML inválido: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, errors.New("no es un SOAP Envelope")
	}
	body := root.SelectElement("Body")
	if body == nil {
		return nil, errors.New("Envelope sin Body")
	}
	return body, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "":
		return input, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("charset no soportado: %s", label)
	}
}

func parseRoot(raw, tag string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return nil, domain.NewValidationError(tag, "XML firmado inválido: "+err.Error())
	}
	root := doc.Root()
	if root == nil || root.Tag != tag {
		return nil, domain.NewValidationError(tag, "raíz inesperada")
	}
	return root.Copy(), nil
}

// innerDocument interpreta el contenido de un campo que trae XML escapado como texto
// (ej. xContenDE); si ya trae elementos los devuelve tal cual.
func innerDocument(el *etree.Element) *etree.Element {
	if len(el.ChildElements()) > 0 {
		return el
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(el.Text()); err != nil || doc.Root() == nil {
		return el
	}
	return doc.Root()
}

func documentResult(el *etree.Element) DocumentResult {
	cdc := text(el, "id")
	if cdc == "" {
		cdc = text(el, "Id")
	}
	return DocumentResult{
		CDC:            cdc,
		Result:         text(el, ".//dEstRes"),
		Code:           text(el, ".//dCodRes"),
		Message:        text(el, ".//dMsgRes"),
		ProtocolNumber: text(el, ".//dProtAut"),
		ProcessedAt:    text(el, ".//dFecProc"),
	}
}

func firstChild(el *etree.Element) *etree.Element {
	children := el.ChildElements()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

func text(el *etree.Element, path string) string {
	if el == nil {
		return ""
	}
	found := el.FindElement(path)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
