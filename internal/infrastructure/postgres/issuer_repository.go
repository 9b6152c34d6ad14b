package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
)

var (
	_ repository.IssuerRepository   = (*IssuerRepo)(nil)
	_ repository.TimbradoRepository = (*TimbradoRepo)(nil)
)

// IssuerRepo datos del emisor por empresa.
type IssuerRepo struct {
	q Querier
}

// NewIssuerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIssuerRepository(q Querier) *IssuerRepo {
	return &IssuerRepo{q: q}
}

// GetByBusinessID obtiene el emisor de la empresa. (nil, nil) si no existe.
func (r *IssuerRepo) GetByBusinessID(ctx context.Context, businessID string) (*entity.Issuer, error) {
	query := `
		SELECT business_id, ruc, dv, name, fantasy_name, taxpayer_type, activity_code, activity_name,
		       address, house_number, department_id, department, district_id, district, city_id, city,
		       phone, email, created_at, updated_at
		FROM issuers WHERE business_id = $1`
	var is entity.Issuer
	var fantasy, district, phone, email *string
	err := r.q.QueryRow(ctx, query, businessID).Scan(
		&is.BusinessID, &is.RUC, &is.DV, &is.Name, &fantasy, &is.TaxpayerType, &is.ActivityCode,
		&is.ActivityName, &is.Address, &is.HouseNumber, &is.DepartmentID, &is.Department,
		&is.DistrictID, &district, &is.CityID, &is.City, &phone, &email, &is.CreatedAt, &is.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get issuer: %w", err)
	}
	is.FantasyName, is.District = derefStr(fantasy), derefStr(district)
	is.Phone, is.Email = derefStr(phone), derefStr(email)
	return &is, nil
}

// Upsert crea o actualiza el emisor de la empresa.
func (r *IssuerRepo) Upsert(ctx context.Context, is *entity.Issuer) error {
	now := time.Now()
	if is.CreatedAt.IsZero() {
		is.CreatedAt = now
	}
	is.UpdatedAt = now
	_, err := r.q.Exec(ctx, `
		INSERT INTO issuers (business_id, ruc, dv, name, fantasy_name, taxpayer_type, activity_code,
		    activity_name, address, house_number, department_id, department, district_id, district,
		    city_id, city, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (business_id) DO UPDATE SET
		    ruc = EXCLUDED.ruc, dv = EXCLUDED.dv, name = EXCLUDED.name,
		    fantasy_name = EXCLUDED.fantasy_name, taxpayer_type = EXCLUDED.taxpayer_type,
		    activity_code = EXCLUDED.activity_code, activity_name = EXCLUDED.activity_name,
		    address = EXCLUDED.address, house_number = EXCLUDED.house_number,
		    department_id = EXCLUDED.department_id, department = EXCLUDED.department,
		    district_id = EXCLUDED.district_id, district = EXCLUDED.district,
		    city_id = EXCLUDED.city_id, city = EXCLUDED.city,
		    phone = EXCLUDED.phone, email = EXCLUDED.email, updated_at = EXCLUDED.updated_at`,
		is.BusinessID, is.RUC, is.DV, is.Name, nullIfEmpty(is.FantasyName), is.TaxpayerType,
		is.ActivityCode, is.ActivityName, is.Address, is.HouseNumber, is.DepartmentID, is.Department,
		is.DistrictID, nullIfEmpty(is.District), is.CityID, is.City, nullIfEmpty(is.Phone),
		nullIfEmpty(is.Email), is.CreatedAt, is.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert issuer: %w", err)
	}
	return nil
}

// TimbradoRepo timbrados autorizados.
type TimbradoRepo struct {
	q Querier
}

// NewTimbradoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTimbradoRepository(q Querier) *TimbradoRepo {
	return &TimbradoRepo{q: q}
}

// GetActive timbrado vigente más reciente para tipo, establecimiento y punto de expedición.
func (r *TimbradoRepo) GetActive(ctx context.Context, businessID string, docType int, establishment, pointOfSale string) (*entity.Timbrado, error) {
	query := `
		SELECT id, business_id, number, doc_type, establishment, point_of_sale, range_from, range_to,
		       valid_from, is_active, created_at, updated_at
		FROM timbrados
		WHERE business_id = $1 AND doc_type = $2 AND establishment = $3 AND point_of_sale = $4
		  AND is_active AND valid_from <= CURRENT_DATE
		ORDER BY valid_from DESC
		LIMIT 1`
	var t entity.Timbrado
	err := r.q.QueryRow(ctx, query, businessID, docType, establishment, pointOfSale).Scan(
		&t.ID, &t.BusinessID, &t.Number, &t.DocType, &t.Establishment, &t.PointOfSale,
		&t.RangeFrom, &t.RangeTo, &t.ValidFrom, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get timbrado: %w", err)
	}
	return &t, nil
}

// Upsert registra el timbrado; si ya existe (mismo número, tipo, establecimiento y punto)
// actualiza rango, vigencia y estado.
func (r *TimbradoRepo) Upsert(ctx context.Context, t *entity.Timbrado) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	err := r.q.QueryRow(ctx, `
		INSERT INTO timbrados (id, business_id, number, doc_type, establishment, point_of_sale,
		    range_from, range_to, valid_from, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (business_id, number, doc_type, establishment, point_of_sale) DO UPDATE SET
		    range_from = EXCLUDED.range_from, range_to = EXCLUDED.range_to,
		    valid_from = EXCLUDED.valid_from, is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`,
		t.ID, t.BusinessID, t.Number, t.DocType, t.Establishment, t.PointOfSale,
		t.RangeFrom, t.RangeTo, t.ValidFrom, t.IsActive, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("upsert timbrado: %w", err)
	}
	return nil
}
