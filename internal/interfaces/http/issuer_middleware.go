package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/sifen-api/internal/application/dto"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// issuerChecker es el contrato mínimo que necesita el middleware para verificar el emisor.
// Lo implementa *postgres.IssuerRepo.
type issuerChecker interface {
	GetByBusinessID(ctx context.Context, businessID string) (*entity.Issuer, error)
}

// RequireIssuer devuelve un middleware Fiber que verifica que la empresa del token JWT tenga
// datos de emisor configurados. Debe usarse DESPUÉS de AuthMiddleware (necesita LocalCompanyID).
//
// Comportamiento:
//   - 403 Forbidden  → la empresa no tiene emisor configurado.
//   - 503 Service Unavailable → fallo de infraestructura al consultar la DB.
//   - Si no hay company_id en el contexto, responde 401.
func RequireIssuer(checker issuerChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		companyID := GetCompanyID(c)
		if companyID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "company_id no encontrado en el token",
			})
		}

		issuer, err := checker.GetByBusinessID(c.Context(), companyID)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "ISSUER_CHECK_FAILED",
				Message: "no se pudo verificar el emisor, intente más tarde",
			})
		}
		if issuer == nil {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "ISSUER_NOT_CONFIGURED",
				Message: "la empresa no tiene datos de emisor SIFEN configurados",
			})
		}
		return c.Next()
	}
}
