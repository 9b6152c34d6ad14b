package repository

import (
	"context"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// IssuerRepository datos del emisor por empresa.
type IssuerRepository interface {
	GetByBusinessID(ctx context.Context, businessID string) (*entity.Issuer, error)
}

// TimbradoRepository timbrados autorizados por la SET.
type TimbradoRepository interface {
	// GetActive devuelve el timbrado vigente para el tipo de documento, establecimiento y punto
	// de expedición. Sin timbrado no se puede armar gTimb.
	GetActive(ctx context.Context, businessID string, docType int, establishment, pointOfSale string) (*entity.Timbrado, error)
}
