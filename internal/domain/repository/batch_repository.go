package repository

import (
	"context"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// BatchRepository lotes y sus miembros. La membresía se inserta con Create y no cambia.
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.Batch) error
	GetByID(ctx context.Context, id string) (*entity.Batch, error)

	// Update persiste estado, protocolo, último código y el estado de cada miembro.
	Update(ctx context.Context, batch *entity.Batch) error

	// ListOpen lotes en Received o Processing, los más antiguos primero.
	ListOpen(ctx context.Context, limit int) ([]*entity.Batch, error)
}
