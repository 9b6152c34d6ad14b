package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jhoicas/sifen-api/internal/bootstrap"
	"github.com/jhoicas/sifen-api/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicialización")
	}
	defer comps.Close()

	p := worker.New(comps.SIFEN, comps.Certificates, worker.Config{
		Interval:    cfg.Worker.PollInterval,
		Concurrency: cfg.Worker.PollConcurrency,
		MaxElapsed:  cfg.Worker.PollMaxElapsed,
		BatchLimit:  cfg.Worker.BatchLimit,
	}, log.Zerolog())

	log.Info().
		Str("sifen_env", cfg.SIFEN.AppEnv).
		Dur("interval", cfg.Worker.PollInterval).
		Int("concurrency", cfg.Worker.PollConcurrency).
		Msg("worker iniciado")

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker finalizado con error")
	}
	log.Info().Msg("worker detenido")
}
