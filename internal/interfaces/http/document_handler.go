package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	appsifen "github.com/jhoicas/sifen-api/internal/application/sifen"
	"github.com/jhoicas/sifen-api/internal/application/dto"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// documentService operaciones del orquestador usadas por el handler. Lo implementa *appsifen.Service.
type documentService interface {
	CreateDocument(ctx context.Context, doc *entity.ElectronicDocument) (*entity.ElectronicDocument, error)
	GetDocument(ctx context.Context, businessID, docID string) (*entity.ElectronicDocument, error)
	Prepare(ctx context.Context, businessID, docID string) (*entity.ElectronicDocument, error)
	Send(ctx context.Context, businessID, docID string) (*entity.ElectronicDocument, error)
	ProcessAsync(businessID, docID string)
	Cancel(ctx context.Context, businessID, docID, reason string) (*entity.ElectronicDocument, error)
	QueryCDC(ctx context.Context, businessID, cdc string) (*appsifen.CDCStatus, error)
}

// DocumentHandler maneja las peticiones HTTP de documentos electrónicos (protegido).
type DocumentHandler struct {
	svc documentService
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(svc documentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Create godoc
// @Summary      Registrar documento electrónico en borrador
// @Tags         documents
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateDocumentRequest  true  "Documento"
// @Success      201   {object}  dto.DocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/documents [post]
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	doc, err := in.ToEntity(companyID)
	if err != nil {
		return writeError(c, err)
	}
	out, err := h.svc.CreateDocument(c.Context(), doc)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewDocumentResponse(out))
}

// GetByID godoc
// @Summary      Obtener documento
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	doc, err := h.svc.GetDocument(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Prepare godoc
// @Summary      Asignar CDC, firmar y generar QR
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/prepare [post]
func (h *DocumentHandler) Prepare(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	doc, err := h.svc.Prepare(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Send godoc
// @Summary      Enviar documento firmado (siRecepDE)
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Failure      504  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/send [post]
func (h *DocumentHandler) Send(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	doc, err := h.svc.Send(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Process godoc
// @Summary      Preparar y enviar en segundo plano
// @Description  Responde 202; el estado se consulta con GET /api/documents/{id}.
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      202  {object}  dto.DocumentResponse
// @Router       /api/documents/{id}/process [post]
func (h *DocumentHandler) Process(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	doc, err := h.svc.GetDocument(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	h.svc.ProcessAsync(companyID, doc.ID)
	return c.Status(fiber.StatusAccepted).JSON(dto.NewDocumentResponse(doc))
}

// Cancel godoc
// @Summary      Cancelar documento aprobado (evento de cancelación)
// @Tags         documents
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "ID del documento"
// @Param        body  body  dto.CancelRequest  true  "Motivo"
// @Success      200   {object}  dto.DocumentResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/cancel [post]
func (h *DocumentHandler) Cancel(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	doc, err := h.svc.Cancel(c.Context(), companyID, c.Params("id"), in.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// QueryCDC godoc
// @Summary      Consultar CDC (siConsDE) e historial
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        cdc  path  string  true  "CDC de 44 dígitos"
// @Success      200  {object}  dto.CDCStatusResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/documents/cdc/{cdc} [get]
func (h *DocumentHandler) QueryCDC(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	cdc := c.Params("cdc")
	st, err := h.svc.QueryCDC(c.Context(), companyID, cdc)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.CDCStatusResponse{CDC: cdc, History: dto.NewTrackEntries(st.History)}
	if st.Document != nil {
		d := dto.NewDocumentResponse(st.Document)
		out.Document = &d
	}
	if r := st.Remote; r != nil {
		out.Remote = &dto.RemoteStatus{
			Found: r.Found, Cancelled: r.Cancelled, Code: r.Code, Message: r.Message, ProtocolNumber: r.ProtocolNumber,
		}
	}
	return c.JSON(out)
}
