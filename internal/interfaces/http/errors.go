package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/sifen-api/internal/application/dto"
	"github.com/jhoicas/sifen-api/internal/domain"
)

// writeError traduce la taxonomía de errores del dominio a status HTTP.
//
//	ValidationError        422
//	CryptoError            422 (certificado o firma)
//	TransportError         504 si fue timeout, 502 si no
//	ProtocolError          502 con el código de la SET
//	StateError             409
//	ErrNotFound            404
//	ErrForbidden           403
func writeError(c *fiber.Ctx, err error) error {
	var (
		verr *domain.ValidationError
		cerr *domain.CryptoError
		terr *domain.TransportError
		perr *domain.ProtocolError
		serr *domain.StateError
		ferr *dto.FieldError
	)
	switch {
	case errors.As(err, &ferr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: ferr.Error()})
	case errors.As(err, &verr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: verr.Error()})
	case errors.As(err, &cerr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "CRYPTO", Message: cerr.Error()})
	case errors.As(err, &terr):
		status := fiber.StatusBadGateway
		if terr.Timeout {
			status = fiber.StatusGatewayTimeout
		}
		return c.Status(status).JSON(dto.ErrorResponse{Code: "TRANSPORT", Message: "sin respuesta de la SET; el resultado es desconocido"})
	case errors.As(err, &perr):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SET_" + codeOrUnknown(perr.Code), Message: perr.Message})
	case errors.As(err, &serr):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "STATE", Message: serr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado"})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func codeOrUnknown(code string) string {
	if code == "" {
		return "UNKNOWN"
	}
	return code
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "company_id requerido"})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
