package sifen_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
	domsifen "github.com/jhoicas/sifen-api/internal/domain/sifen"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

var emission = time.Date(2023, 5, 19, 10, 30, 0, 0, time.Local)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testIssuer() *entity.Issuer {
	return &entity.Issuer{
		BusinessID:   "biz-1",
		RUC:          "80026598",
		DV:           0,
		Name:         "EMPRESA DE PRUEBA S.A.",
		TaxpayerType: sifen.TaxpayerLegal,
		ActivityCode: "46510",
		ActivityName: "Comercio al por mayor de equipos informáticos",
		Address:      "Av. Mariscal López",
		HouseNumber:  1234,
		DepartmentID: 1,
		Department:   "CAPITAL",
		CityID:       1,
		City:         "ASUNCION (DISTRITO)",
		Phone:        "021000000",
		Email:        "facturacion@empresa.com.py",
	}
}

func testTimbrado() *entity.Timbrado {
	return &entity.Timbrado{
		Number:        "12560693",
		DocType:       1,
		Establishment: "001",
		PointOfSale:   "001",
		RangeFrom:     1,
		RangeTo:       9999999,
		ValidFrom:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local),
		IsActive:      true,
	}
}

// buildContext documento con totales y CDC asignados, listo para Build.
func buildContext(t *testing.T, docType sifen.DocumentType, mutate func(*entity.ElectronicDocument)) *infra.BuildContext {
	t.Helper()
	doc := &entity.ElectronicDocument{
		ID:            "doc-1",
		BusinessID:    "biz-1",
		DocType:       docType,
		IssuerRUC:     "80026598",
		TaxpayerType:  sifen.TaxpayerLegal,
		Establishment: "001",
		PointOfSale:   "001",
		Sequence:      1,
		Currency:      sifen.CurrencyPYG,
		EmissionDate:  emission,
		OperationType: 1,
		Receiver: entity.Receiver{
			IsTaxpayer:    true,
			RUC:           "80026598",
			DV:            0,
			Name:          "CLIENTE S.A.",
			CountryCode:   "PRY",
			OperationKind: 1,
		},
		Lines: []entity.DocumentLine{
			{ProductCode: "P-1", Description: "Notebook", Quantity: dec("1"), UnitPrice: dec("110000"), TaxClass: sifen.TaxIVA10},
			{ProductCode: "P-2", Description: "Libro", Quantity: dec("2"), UnitPrice: dec("10500"), TaxClass: sifen.TaxIVA5},
		},
		Status: entity.DocStatusDraft,
	}
	if mutate != nil {
		mutate(doc)
	}

	totals, err := domsifen.ComputeTotals(doc.Lines, doc.IsReturn)
	require.NoError(t, err)
	require.NoError(t, doc.AttachTotals(totals))

	sec := "123456789"
	cdc, _, err := domsifen.GenerateCDC(domsifen.CDCParams{
		DocType:       doc.DocType,
		IssuerRUC:     doc.IssuerRUC,
		IssuerDV:      doc.IssuerDV,
		Establishment: doc.Establishment,
		PointOfSale:   doc.PointOfSale,
		Sequence:      doc.Sequence,
		TaxpayerType:  doc.TaxpayerType,
		EmissionDate:  doc.EmissionDate,
		SecurityCode:  sec,
	})
	require.NoError(t, err)
	require.NoError(t, doc.AssignCDC(cdc, sec))

	return &infra.BuildContext{
		Document:   doc,
		Issuer:     testIssuer(),
		Timbrado:   testTimbrado(),
		SignedAt:   emission.Add(time.Minute),
		SystemName: "sifen-api",
	}
}
