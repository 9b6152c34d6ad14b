package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/sifen-api/internal/bootstrap"
	httpRouter "github.com/jhoicas/sifen-api/internal/interfaces/http"
	"github.com/jhoicas/sifen-api/pkg/config"
	"github.com/jhoicas/sifen-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sifen_env", cfg.SIFEN.AppEnv).
		Msg("iniciando aplicación")

	ctx := context.Background()
	comps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicialización")
	}
	defer comps.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SIFEN.Timeout + 10*time.Second, // Send espera a la SET
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "SIFEN API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "sifen_env": cfg.SIFEN.AppEnv})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		SIFEN:        comps.SIFEN,
		Certificates: comps.Certificates,
		Issuers:      comps.Issuers,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
