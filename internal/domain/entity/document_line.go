package entity

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/sifen-api/pkg/sifen"
)

var (
	ErrCDCImmutable    = errors.New("el CDC ya fue asignado y es inmutable")
	ErrTotalsImmutable = errors.New("los totales del documento ya fueron calculados")
)

// DocumentLine línea de detalle (gCamItem). Los precios incluyen IVA.
type DocumentLine struct {
	ID              string
	ProductCode     string
	Description     string
	UnitMeasure     int // cUniMed, 77 = unidad
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal // 0..100
	Amount          decimal.Decimal // monto parcial ya calculado por el sistema de gestión
	TaxClass        sifen.TaxClass
}

// FullyDiscounted indica descuento del 100%: todos los montos tributarios van a cero.
func (l DocumentLine) FullyDiscounted() bool {
	return l.DiscountPercent.GreaterThanOrEqual(decimal.NewFromInt(100))
}

// LineTotals montos derivados de una línea.
type LineTotals struct {
	Gross    decimal.Decimal // precio unitario × cantidad
	Discount decimal.Decimal // descuento aplicado
	Total    decimal.Decimal // dTotOpeItem
	Exempt   decimal.Decimal
	Taxed5   decimal.Decimal // total gravado 5% (IVA incluido)
	Taxed10  decimal.Decimal // total gravado 10% (IVA incluido)
	Base     decimal.Decimal // dBasGravIVA
	Tax      decimal.Decimal // dLiqIVAItem
}

// DocumentTotals totales del documento (gTotSub). Se calcula una vez y no se recalcula.
type DocumentTotals struct {
	Lines          []LineTotals
	SubExempt      decimal.Decimal // dSubExe
	Sub5           decimal.Decimal // dSub5
	Sub10          decimal.Decimal // dSub10
	TotalOperation decimal.Decimal // dTotOpe
	TotalDiscount  decimal.Decimal // dTotDesc
	IVA5           decimal.Decimal // dIVA5
	IVA10          decimal.Decimal // dIVA10
	TotalIVA       decimal.Decimal // dTotIVA
	Base5          decimal.Decimal // dBaseGrav5
	Base10         decimal.Decimal // dBaseGrav10
	TotalBase      decimal.Decimal // dTBasGraIVA
	GrandTotal     decimal.Decimal // dTotGralOpe
	ItemCount      int
}
