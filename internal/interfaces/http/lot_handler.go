package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	appsifen "github.com/jhoicas/sifen-api/internal/application/sifen"
	"github.com/jhoicas/sifen-api/internal/application/dto"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// lotService operaciones de lotes, eventos de rango y consulta de RUC.
type lotService interface {
	SubmitLot(ctx context.Context, businessID string, docIDs []string) (*entity.Batch, error)
	PollLot(ctx context.Context, businessID, lotID string) (*entity.Batch, error)
	VoidRange(ctx context.Context, businessID string, in appsifen.VoidRangeInput) (*infra.EventResult, error)
	LookupRUC(ctx context.Context, businessID, ruc string) (*infra.RUCResult, error)
}

// LotHandler maneja lotes (siRecepLoteDE / siResultLoteDE), inutilización y RUC.
type LotHandler struct {
	svc lotService
}

// NewLotHandler construye el handler.
func NewLotHandler(svc lotService) *LotHandler {
	return &LotHandler{svc: svc}
}

// Submit godoc
// @Summary      Enviar lote de documentos firmados
// @Tags         lots
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SubmitLotRequest  true  "IDs de documentos (máx. 50, mismo tipo)"
// @Success      202   {object}  dto.LotResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Router       /api/lots [post]
func (h *LotHandler) Submit(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.SubmitLotRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	b, err := h.svc.SubmitLot(c.Context(), companyID, in.DocumentIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.NewLotResponse(b))
}

// Poll godoc
// @Summary      Consultar resultado del lote (siResultLoteDE)
// @Tags         lots
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del lote"
// @Success      200  {object}  dto.LotResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/lots/{id}/poll [post]
func (h *LotHandler) Poll(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	b, err := h.svc.PollLot(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewLotResponse(b))
}

// VoidRange godoc
// @Summary      Inutilizar rango de numeración
// @Tags         events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.VoidRangeRequest  true  "Rango"
// @Success      200   {object}  dto.EventResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Router       /api/ranges/void [post]
func (h *LotHandler) VoidRange(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.VoidRangeRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	res, err := h.svc.VoidRange(c.Context(), companyID, appsifen.VoidRangeInput{
		DocType: sifen.DocumentType(in.DocType), Establishment: in.Establishment, PointOfSale: in.PointOfSale,
		From: in.From, To: in.To, Reason: in.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.EventResponse{
		EventID: res.EventID, Result: res.Result, Code: res.Code, Message: res.Message, ProtocolNumber: res.ProtocolNumber,
	})
}

// LookupRUC godoc
// @Summary      Consultar RUC (siConsRUC)
// @Tags         ruc
// @Security     Bearer
// @Produce      json
// @Param        ruc  path  string  true  "RUC con o sin DV"
// @Success      200  {object}  dto.RUCResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/ruc/{ruc} [get]
func (h *LotHandler) LookupRUC(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	res, err := h.svc.LookupRUC(c.Context(), companyID, c.Params("ruc"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.RUCResponse{
		RUC: res.RUC, Name: res.Name, Status: res.Status, StatusCode: res.StatusCode,
		EInvoicing: res.EInvoicing, Code: res.Code, Message: res.Message,
	})
}
