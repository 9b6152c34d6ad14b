package entity

import "time"

// Issuer empresa emisora (gEmis). Cada empresa tiene un único emisor.
type Issuer struct {
	BusinessID   string
	RUC          string // sin DV
	DV           int
	Name         string // dNomEmi
	FantasyName  string
	TaxpayerType int // iTipCont
	ActivityCode string
	ActivityName string
	Address      string
	HouseNumber  int
	DepartmentID int
	Department   string
	DistrictID   int
	District     string
	CityID       int
	City         string
	Phone        string
	Email        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Timbrado autorización de numeración emitida por la SET (gTimb).
// Una empresa puede tener varios; solo uno vigente por tipo/establecimiento/punto.
type Timbrado struct {
	ID            string
	BusinessID    string
	Number        string    // dNumTim, 8 dígitos
	DocType       int       // iTiDE autorizado
	Establishment string    // dEst
	PointOfSale   string    // dPunExp
	RangeFrom     int64
	RangeTo       int64
	ValidFrom     time.Time // dFeIniT
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Covers indica si el número de secuencia cae dentro del rango autorizado.
func (t Timbrado) Covers(seq int64) bool {
	return seq >= t.RangeFrom && seq <= t.RangeTo
}
