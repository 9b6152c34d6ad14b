// Package worker consulta periódicamente los lotes abiertos y vence certificados.
package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// LotPoller lo implementa *appsifen.Service.
type LotPoller interface {
	OpenLots(ctx context.Context, limit int) ([]*entity.Batch, error)
	PollLot(ctx context.Context, businessID, lotID string) (*entity.Batch, error)
}

// ExpirySweeper lo implementa *certstore.Store.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Config parámetros del ciclo.
type Config struct {
	Interval    time.Duration
	Concurrency int
	MaxElapsed  time.Duration // reintentos por lote ante TransportError
	BatchLimit  int
}

// Poller ejecuta el ciclo de consulta.
type Poller struct {
	lots  LotPoller
	certs ExpirySweeper
	cfg   Config
	log   zerolog.Logger

	newBackOff func() backoff.BackOff
}

// Result resumen de una pasada.
type Result struct {
	Polled    int
	Concluded int
	Failed    int
	Expired   int
}

// New construye el poller.
func New(lots LotPoller, certs ExpirySweeper, cfg Config, log zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	p := &Poller{lots: lots, certs: certs, cfg: cfg, log: log.With().Str("component", "worker").Logger()}
	p.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxElapsedTime = p.cfg.MaxElapsed
		return b
	}
	return p
}

// WithBackOff reemplaza la política de reintentos (tests).
func (p *Poller) WithBackOff(f func() backoff.BackOff) *Poller {
	p.newBackOff = f
	return p
}

// Run repite RunOnce cada Interval hasta que ctx se cancele.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := p.RunOnce(ctx); err != nil {
			p.log.Error().Err(err).Msg("pasada del worker")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce consulta los lotes abiertos en paralelo (hasta Concurrency a la vez) y luego vence
// los certificados. Un lote con error no detiene a los demás.
func (p *Poller) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	lots, err := p.lots.OpenLots(ctx, p.cfg.BatchLimit)
	if err != nil {
		return res, err
	}

	type outcome struct {
		concluded bool
		failed    bool
	}
	outcomes := make([]outcome, len(lots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, lot := range lots {
		g.Go(func() error {
			b, err := p.poll(gctx, lot)
			if err != nil {
				p.log.Warn().Err(err).Str("lot_id", lot.ID).Str("business_id", lot.BusinessID).Msg("consulta de lote fallida")
				outcomes[i].failed = true
				return nil
			}
			outcomes[i].concluded = b.State == entity.LotConcluded || b.State == entity.LotError
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		res.Polled++
		if o.failed {
			res.Failed++
		}
		if o.concluded {
			res.Concluded++
		}
	}

	if p.certs != nil {
		n, err := p.certs.SweepExpired(ctx)
		if err != nil {
			return res, err
		}
		res.Expired = n
	}
	if res.Polled > 0 || res.Expired > 0 {
		p.log.Info().Int("polled", res.Polled).Int("concluded", res.Concluded).
			Int("failed", res.Failed).Int("expired_certs", res.Expired).Msg("pasada del worker")
	}
	return res, nil
}

// poll reintenta solo ante TransportError; cualquier otro error es definitivo.
func (p *Poller) poll(ctx context.Context, lot *entity.Batch) (*entity.Batch, error) {
	var out *entity.Batch
	op := func() error {
		b, err := p.lots.PollLot(ctx, "", lot.ID)
		if err != nil {
			if domain.IsTransport(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = b
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return out, nil
}
