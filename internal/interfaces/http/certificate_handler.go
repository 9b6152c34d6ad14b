package http

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/sifen-api/internal/application/dto"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/infrastructure/certstore"
)

// maxP12Size tamaño máximo del PKCS12 subido.
const maxP12Size = 1 << 20

// certificateService lo implementa *certstore.Store.
type certificateService interface {
	Upload(ctx context.Context, in certstore.UploadInput) (*entity.Certificate, error)
	Process(ctx context.Context, businessID, certID string) (*entity.Certificate, error)
	VerifyIntegrity(ctx context.Context, businessID, certID string) (*certstore.IntegrityReport, error)
	SetDefault(ctx context.Context, businessID, certID string) error
}

// CertificateHandler gestión de certificados de firma (solo admin).
type CertificateHandler struct {
	store certificateService
}

// NewCertificateHandler construye el handler.
func NewCertificateHandler(store certificateService) *CertificateHandler {
	return &CertificateHandler{store: store}
}

// Upload godoc
// @Summary      Subir certificado PKCS12
// @Description  multipart/form-data con campos file (.p12), name y password. Queda pendiente hasta procesarlo.
// @Tags         certificates
// @Security     Bearer
// @Accept       mpfd
// @Produce      json
// @Param        file      formData  file    true  "PKCS12"
// @Param        name      formData  string  false "Nombre"
// @Param        password  formData  string  true  "Contraseña del PKCS12"
// @Success      201  {object}  dto.CertificateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/certificates [post]
func (h *CertificateHandler) Upload(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_FILE", Message: "campo file requerido"})
	}
	if fh.Size > maxP12Size {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{Code: "FILE_TOO_LARGE", Message: "el PKCS12 excede 1 MiB"})
	}
	f, err := fh.Open()
	if err != nil {
		return invalidBody(c)
	}
	defer f.Close()
	p12, err := io.ReadAll(io.LimitReader(f, maxP12Size))
	if err != nil {
		return invalidBody(c)
	}
	name := c.FormValue("name")
	if name == "" {
		name = fh.Filename
	}
	cert, err := h.store.Upload(c.Context(), certstore.UploadInput{
		BusinessID: companyID,
		Name:       name,
		P12:        p12,
		Password:   c.FormValue("password"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewCertificateResponse(cert))
}

// Process godoc
// @Summary      Procesar certificado (extraer PEM/clave y clasificar)
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del certificado"
// @Success      200  {object}  dto.CertificateResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/process [post]
func (h *CertificateHandler) Process(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	cert, err := h.store.Process(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewCertificateResponse(cert))
}

// Integrity godoc
// @Summary      Diagnóstico del certificado
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del certificado"
// @Success      200  {object}  dto.IntegrityResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/integrity [get]
func (h *CertificateHandler) Integrity(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	rep, err := h.store.VerifyIntegrity(c.Context(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	problems := rep.Problems
	if problems == nil {
		problems = []string{}
	}
	return c.JSON(dto.IntegrityResponse{
		CertificateID: rep.CertificateID, State: string(rep.State), FilesPresent: rep.FilesPresent,
		KeyMatches: rep.KeyMatches, NotAfter: rep.NotAfter, DaysUntilExpiry: rep.DaysUntilExpiry,
		LastError: rep.LastError, Problems: problems,
	})
}

// SetDefault godoc
// @Summary      Marcar certificado como predeterminado
// @Tags         certificates
// @Security     Bearer
// @Param        id   path  string  true  "ID del certificado"
// @Success      204
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/default [post]
func (h *CertificateHandler) SetDefault(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	if err := h.store.SetDefault(c.Context(), companyID, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
