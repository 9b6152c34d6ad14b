package repository

import (
	"context"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// SoapTransactionRepository auditoría de intercambios SOAP. No existe borrado.
type SoapTransactionRepository interface {
	// Create inserta la transacción en estado pending antes de la llamada.
	Create(ctx context.Context, tx *entity.SoapTransaction) error
	// Complete registra el resultado (success/failure, código, mensaje, tiempo).
	Complete(ctx context.Context, tx *entity.SoapTransaction) error
}

// TrackRepository historial de estados observados por CDC (solo inserción).
type TrackRepository interface {
	Append(ctx context.Context, entry *entity.CdcTrackEntry) error
	ListByCDC(ctx context.Context, cdc string) ([]*entity.CdcTrackEntry, error)
}
