package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/sifen-api/pkg/jwt"
)

// sifenService une las operaciones de documentos y lotes; lo implementa *appsifen.Service.
type sifenService interface {
	documentService
	lotService
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	SIFEN        sifenService
	Certificates certificateService
	Issuers      issuerChecker
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	anyRole := RequireRole(jwt.RoleAdmin, jwt.RoleOperator, jwt.RoleAuditor)
	operator := RequireRole(jwt.RoleAdmin, jwt.RoleOperator)
	admin := RequireRole(jwt.RoleAdmin)
	issuer := RequireIssuer(deps.Issuers)

	// Documentos electrónicos
	documents := protected.Group("/documents", issuer)
	documentHandler := NewDocumentHandler(deps.SIFEN)
	documents.Post("/", operator, documentHandler.Create)
	documents.Get("/cdc/:cdc", anyRole, documentHandler.QueryCDC)
	documents.Get("/:id", anyRole, documentHandler.GetByID)
	documents.Post("/:id/prepare", operator, documentHandler.Prepare)
	documents.Post("/:id/send", operator, documentHandler.Send)
	documents.Post("/:id/process", operator, documentHandler.Process)
	documents.Post("/:id/cancel", admin, documentHandler.Cancel)

	// Lotes, eventos de rango y RUC
	lotHandler := NewLotHandler(deps.SIFEN)
	lots := protected.Group("/lots", issuer)
	lots.Post("/", operator, lotHandler.Submit)
	lots.Post("/:id/poll", operator, lotHandler.Poll)
	protected.Post("/ranges/void", issuer, admin, lotHandler.VoidRange)
	protected.Get("/ruc/:ruc", anyRole, lotHandler.LookupRUC)

	// Certificados (solo admin)
	certs := protected.Group("/certificates", admin)
	certHandler := NewCertificateHandler(deps.Certificates)
	certs.Post("/", certHandler.Upload)
	certs.Post("/:id/process", certHandler.Process)
	certs.Post("/:id/default", certHandler.SetDefault)
	certs.Get("/:id/integrity", certHandler.Integrity)
}
