package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/worker"
)

type fakeLots struct {
	mu     sync.Mutex
	open   []*entity.Batch
	errs   map[string][]error // errores a devolver en orden antes de responder
	calls  map[string]int
	result map[string]entity.LotState
}

func newFakeLots(ids ...string) *fakeLots {
	f := &fakeLots{errs: map[string][]error{}, calls: map[string]int{}, result: map[string]entity.LotState{}}
	for _, id := range ids {
		f.open = append(f.open, &entity.Batch{ID: id, BusinessID: "biz-1", State: entity.LotReceived})
		f.result[id] = entity.LotConcluded
	}
	return f
}

func (f *fakeLots) OpenLots(_ context.Context, limit int) ([]*entity.Batch, error) {
	if len(f.open) > limit {
		return f.open[:limit], nil
	}
	return f.open, nil
}

func (f *fakeLots) PollLot(_ context.Context, businessID, lotID string) (*entity.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[lotID]++
	if businessID != "" {
		return nil, errors.New("el worker no filtra por empresa")
	}
	if errs := f.errs[lotID]; len(errs) > 0 {
		f.errs[lotID] = errs[1:]
		return nil, errs[0]
	}
	return &entity.Batch{ID: lotID, State: f.result[lotID]}, nil
}

type fakeSweeper struct{ n int }

func (s *fakeSweeper) SweepExpired(context.Context) (int, error) { return s.n, nil }

func newPoller(lots *fakeLots, certs worker.ExpirySweeper) *worker.Poller {
	return worker.New(lots, certs, worker.Config{Concurrency: 2, BatchLimit: 10}, zerolog.Nop()).
		WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		})
}

func TestPoller_ConsultaTodosLosLotes(t *testing.T) {
	lots := newFakeLots("l1", "l2", "l3")
	lots.result["l2"] = entity.LotProcessing

	res, err := newPoller(lots, &fakeSweeper{n: 1}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Polled)
	assert.Equal(t, 2, res.Concluded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Expired)
}

func TestPoller_ReintentaSoloTransporte(t *testing.T) {
	lots := newFakeLots("l1", "l2")
	lots.errs["l1"] = []error{
		&domain.TransportError{Method: "siResultLoteDE", Timeout: true, Cause: context.DeadlineExceeded},
		&domain.TransportError{Method: "siResultLoteDE", Cause: errors.New("reset")},
	}
	lots.errs["l2"] = []error{&domain.ProtocolError{Method: "siResultLoteDE", Code: "0160", Message: "XML mal formado"}}

	res, err := newPoller(lots, nil).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, lots.calls["l1"], "dos fallos de transporte y un éxito")
	assert.Equal(t, 1, lots.calls["l2"], "un rechazo de protocolo no se reintenta")
	assert.Equal(t, 1, res.Concluded)
	assert.Equal(t, 1, res.Failed)
}

func TestPoller_AgotaReintentos(t *testing.T) {
	lots := newFakeLots("l1")
	for i := 0; i < 10; i++ {
		lots.errs["l1"] = append(lots.errs["l1"], &domain.TransportError{Method: "siResultLoteDE", Cause: errors.New("sin red")})
	}
	res, err := newPoller(lots, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, lots.calls["l1"])
	assert.Equal(t, 1, res.Failed)
}

func TestPoller_SinLotes(t *testing.T) {
	res, err := newPoller(newFakeLots(), &fakeSweeper{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, worker.Result{}, res)
}
