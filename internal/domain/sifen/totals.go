package sifen

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// Escala de serialización de montos y cantidades (4 decimales).
const AmountScale = 4

var (
	hundred   = decimal.NewFromInt(100)
	divisor5  = decimal.RequireFromString("1.05")
	divisor10 = decimal.RequireFromString("1.1")
)

// ComputeLine calcula los montos tributarios de una línea con precio IVA incluido.
//
// En operaciones de devolución el total se recalcula como precio unitario × cantidad en
// lugar de usar el monto parcial almacenado. Un descuento del 100% deja los tres montos
// (exento, 5% y 10%) en cero.
func ComputeLine(l entity.DocumentLine, isReturn bool) entity.LineTotals {
	gross := l.UnitPrice.Mul(l.Quantity).Round(AmountScale)
	discount := gross.Mul(l.DiscountPercent).Div(hundred).Round(AmountScale)

	var total decimal.Decimal
	switch {
	case isReturn:
		total = gross
	case !l.Amount.IsZero():
		total = l.Amount.Round(AmountScale)
	default:
		total = gross.Sub(discount)
	}

	lt := entity.LineTotals{Gross: gross, Discount: discount}
	if l.FullyDiscounted() {
		lt.Discount = gross
		return lt
	}
	lt.Total = total

	switch l.TaxClass {
	case sifen.TaxIVA10:
		lt.Taxed10 = total
		lt.Base = total.DivRound(divisor10, AmountScale)
		lt.Tax = total.Sub(lt.Base)
	case sifen.TaxIVA5:
		lt.Taxed5 = total
		lt.Base = total.DivRound(divisor5, AmountScale)
		lt.Tax = total.Sub(lt.Base)
	default:
		lt.Exempt = total
	}
	return lt
}

// ComputeTotals calcula el bloque gTotSub a partir de las líneas. El resultado es un valor
// que se adjunta una sola vez al documento.
func ComputeTotals(lines []entity.DocumentLine, isReturn bool) (entity.DocumentTotals, error) {
	if len(lines) == 0 {
		return entity.DocumentTotals{}, domain.NewValidationError("gCamItem", "el documento debe tener al menos una línea")
	}
	t := entity.DocumentTotals{Lines: make([]entity.LineTotals, 0, len(lines)), ItemCount: len(lines)}
	for i, l := range lines {
		if err := validateLine(i, l); err != nil {
			return entity.DocumentTotals{}, err
		}
		lt := ComputeLine(l, isReturn)
		t.Lines = append(t.Lines, lt)

		t.SubExempt = t.SubExempt.Add(lt.Exempt)
		t.Sub5 = t.Sub5.Add(lt.Taxed5)
		t.Sub10 = t.Sub10.Add(lt.Taxed10)
		t.TotalDiscount = t.TotalDiscount.Add(lt.Discount)
		switch l.TaxClass {
		case sifen.TaxIVA5:
			t.IVA5 = t.IVA5.Add(lt.Tax)
			t.Base5 = t.Base5.Add(lt.Base)
		case sifen.TaxIVA10:
			t.IVA10 = t.IVA10.Add(lt.Tax)
			t.Base10 = t.Base10.Add(lt.Base)
		}
	}
	t.TotalOperation = t.SubExempt.Add(t.Sub5).Add(t.Sub10)
	t.TotalIVA = t.IVA5.Add(t.IVA10)
	t.TotalBase = t.Base5.Add(t.Base10)
	t.GrandTotal = t.TotalOperation
	return t, nil
}

func validateLine(i int, l entity.DocumentLine) error {
	field := fmt.Sprintf("gCamItem[%d]", i)
	if !l.TaxClass.Valid() {
		return domain.NewValidationError(field, fmt.Sprintf("afectación de IVA %q desconocida", l.TaxClass))
	}
	if !l.Quantity.IsPositive() {
		return domain.NewValidationError(field, "cantidad debe ser mayor a cero")
	}
	if l.UnitPrice.IsNegative() {
		return domain.NewValidationError(field, "precio unitario negativo")
	}
	if l.DiscountPercent.IsNegative() || l.DiscountPercent.GreaterThan(hundred) {
		return domain.NewValidationError(field, "descuento fuera de rango (0..100)")
	}
	return nil
}
