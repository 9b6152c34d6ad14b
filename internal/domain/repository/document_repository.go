package repository

import (
	"context"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// DocumentRepository puerto de persistencia del DE y sus líneas.
// Las lecturas devuelven (nil, nil) si el documento no existe.
type DocumentRepository interface {
	// Create registra un DE en borrador con sus líneas.
	Create(ctx context.Context, doc *entity.ElectronicDocument) error
	GetByID(ctx context.Context, id string) (*entity.ElectronicDocument, error)
	GetByCDC(ctx context.Context, cdc string) (*entity.ElectronicDocument, error)

	// ReserveCDC persiste CDC y código de seguridad. Devuelve domain.ErrDuplicate si el CDC
	// ya existe (colisión del código aleatorio); el llamador reintenta con otro código.
	ReserveCDC(ctx context.Context, docID, cdc, securityCode string) error

	// Update persiste los campos que adjunta el motor: estado, XML firmado, digest, QR,
	// protocolo, lote y último código/mensaje de la SET.
	Update(ctx context.Context, doc *entity.ElectronicDocument) error
}
