package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	appsifen "github.com/jhoicas/sifen-api/internal/application/sifen"
)

var _ appsifen.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunSIFEN inicia una transacción, ejecuta fn con repos de documentos, lotes e historial
// atados a la tx y hace Commit o Rollback.
func (r *TxRunner) RunSIFEN(ctx context.Context, fn func(r appsifen.Repos) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repos := appsifen.Repos{
		Documents: NewDocumentRepository(tx),
		Batches:   NewBatchRepository(tx),
		Track:     NewTrackRepository(tx),
	}
	if err := fn(repos); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
