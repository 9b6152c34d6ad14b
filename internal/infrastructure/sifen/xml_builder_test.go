package sifen_test

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

func findText(t *testing.T, doc *etree.Document, path string) string {
	t.Helper()
	el := doc.FindElement(path)
	require.NotNil(t, el, "falta %s", path)
	return el.Text()
}

func TestBuild_FacturaEstructura(t *testing.T) {
	ctx := buildContext(t, sifen.DocInvoice, nil)
	doc, err := infra.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)

	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "rDE", root.Tag)
	assert.Equal(t, "150", findText(t, doc, "/rDE/dVerFor"))

	de := doc.FindElement("/rDE/DE")
	require.NotNil(t, de)
	assert.Equal(t, ctx.Document.CDC, de.SelectAttrValue("Id", ""))
	assert.Equal(t, sifen.Namespace, de.SelectAttrValue("xmlns", ""))
	assert.Equal(t, ctx.Document.CDC[43:], findText(t, doc, "//DE/dDVId"))

	assert.Equal(t, "1", findText(t, doc, "//gTimb/iTiDE"))
	assert.Equal(t, "0000001", findText(t, doc, "//gTimb/dNumDoc"))
	assert.Equal(t, "12560693", findText(t, doc, "//gTimb/dNumTim"))
	assert.Equal(t, "2023-05-19T10:30:00", findText(t, doc, "//gDatGralOpe/dFeEmiDE"))
	assert.Equal(t, "80026598", findText(t, doc, "//gEmis/dRucEm"))
	assert.Equal(t, "80026598", findText(t, doc, "//gDatRec/dRucRec"))
	assert.NotNil(t, doc.FindElement("//gDtipDE/gCamFE"))
	assert.NotNil(t, doc.FindElement("//gDtipDE/gCamCond"))
	assert.Len(t, doc.FindElements("//gDtipDE/gCamItem"), 2)

	// Sin firma ni QR: se agregan después.
	assert.Nil(t, doc.FindElement("//Signature"))
	assert.Nil(t, doc.FindElement("//gCamFuFD"))
}

func TestBuild_MontosConCuatroDecimales(t *testing.T) {
	doc, err := infra.NewXMLBuilderService().Build(buildContext(t, sifen.DocInvoice, nil))
	require.NoError(t, err)

	assert.Equal(t, "131000.0000", findText(t, doc, "//gTotSub/dTotGralOpe"))
	assert.Equal(t, "11000.0000", findText(t, doc, "//gTotSub/dTotIVA"))
	assert.Equal(t, "10000.0000", findText(t, doc, "//gTotSub/dIVA10"))
	assert.Equal(t, "1000.0000", findText(t, doc, "//gTotSub/dIVA5"))
	assert.Equal(t, "1.0000", findText(t, doc, "//gCamItem[1]/dCantProSer"))
	assert.Equal(t, "100000.0000", findText(t, doc, "//gCamItem[1]/gCamIVA/dBasGravIVA"))
	assert.Equal(t, "10", findText(t, doc, "//gCamItem[1]/gCamIVA/dTasaIVA"))
	assert.Equal(t, "5", findText(t, doc, "//gCamItem[2]/gCamIVA/dTasaIVA"))
}

func TestBuild_ReceptorNoContribuyente(t *testing.T) {
	ctx := buildContext(t, sifen.DocInvoice, func(d *entity.ElectronicDocument) {
		d.Receiver = entity.Receiver{IDType: 1, IDNumber: "1234567", Name: "Juan Pérez", OperationKind: 2}
	})
	doc, err := infra.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2", findText(t, doc, "//gDatRec/iNatRec"))
	assert.Equal(t, "1234567", findText(t, doc, "//gDatRec/dNumIDRec"))
	assert.Nil(t, doc.FindElement("//gDatRec/dRucRec"))
}

func TestBuild_ExportacionIncluyeTipoDeCambio(t *testing.T) {
	ctx := buildContext(t, sifen.DocExportInvoice, func(d *entity.ElectronicDocument) {
		d.Currency = sifen.CurrencyUSD
		d.ExchangeRate = dec("7300")
	})
	doc, err := infra.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "USD", findText(t, doc, "//gOpeCom/cMoneOpe"))
	assert.Equal(t, "7300.0000", findText(t, doc, "//gOpeCom/dTiCam"))
	assert.NotNil(t, doc.FindElement("//gTotSub/dTotalGs"))
}

func TestBuild_ExportacionEnGuaraniesFalla(t *testing.T) {
	_, err := infra.NewXMLBuilderService().Build(buildContext(t, sifen.DocExportInvoice, nil))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestBuild_NotaCreditoSinAsociadoFalla(t *testing.T) {
	_, err := infra.NewXMLBuilderService().Build(buildContext(t, sifen.DocCreditNote, nil))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "gCamDEAsoc")
}

func TestBuild_NotaCreditoConCDCAsociado(t *testing.T) {
	ref := buildContext(t, sifen.DocInvoice, nil).Document.CDC
	ctx := buildContext(t, sifen.DocCreditNote, func(d *entity.ElectronicDocument) {
		d.IsReturn = true
		d.NoteReason = 2
		d.Associated = &entity.AssociatedDocument{Electronic: true, CDC: ref}
	})
	doc, err := infra.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2", findText(t, doc, "//gCamNCDE/iMotEmi"))
	assert.Equal(t, ref, findText(t, doc, "//gCamDEAsoc/dCdCDERef"))
	assert.Nil(t, doc.FindElement("//gCamCond"))
}

func TestBuild_AutofacturaUsaVendedor(t *testing.T) {
	ctx := buildContext(t, sifen.DocAutoInvoice, func(d *entity.ElectronicDocument) {
		d.Vendor = &entity.AutoInvoiceVendor{
			Nature: 1, IDType: 1, IDNumber: "4455667", Name: "Productor Rural",
			Address: "Ruta 2 km 40", DepartmentID: 11, Department: "CENTRAL", CityID: 169, City: "ITAUGUA",
		}
		d.Associated = &entity.AssociatedDocument{Timbrado: "12345678", Establishment: "001", PointOfSale: "001", Number: "0000010", PrintedType: 1}
	})
	doc, err := infra.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "4455667", findText(t, doc, "//gCamAE/dNumIDVen"))
	assert.Equal(t, "Ruta 2 km 40", findText(t, doc, "//gCamAE/dDirProv"))
	// En autofactura el receptor es el propio emisor.
	assert.Equal(t, "80026598", findText(t, doc, "//gDatRec/dRucRec"))
	assert.Equal(t, "EMPRESA DE PRUEBA S.A.", findText(t, doc, "//gDatRec/dNomRec"))
}

func TestBuild_NotaRemisionSinValores(t *testing.T) {
	ctx := buildContext(t, sifen.DocRemission, func(d *entity.ElectronicDocument) {
		d.Remission = &entity.RemissionData{Reason: 1, Responsible: 1, KmEstimate: 25, ShipDate: emission}
	})
	doc, err := infra.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "1", findText(t, doc, "//gCamNRE/iMotEmiNR"))
	assert.Equal(t, "25", findText(t, doc, "//gCamNRE/dKmR"))
	assert.Nil(t, doc.FindElement("//gOpeCom"))
	assert.Nil(t, doc.FindElement("//gCamCond"))
	assert.Nil(t, doc.FindElement("//gValorItem"))
	assert.Nil(t, doc.FindElement("//gTotSub"))
	assert.Len(t, doc.FindElements("//gCamItem"), 2)
}

func TestBuild_ContextoIncompleto(t *testing.T) {
	svc := infra.NewXMLBuilderService()

	_, err := svc.Build(nil)
	assert.True(t, domain.IsValidation(err))

	ctx := buildContext(t, sifen.DocInvoice, nil)
	ctx.Document.CDC = ""
	_, err = svc.Build(ctx)
	assert.True(t, domain.IsValidation(err))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.0000", infra.FormatAmount(dec("0")))
	assert.Equal(t, "1234.5000", infra.FormatAmount(dec("1234.5")))
	assert.Equal(t, "0.3333", infra.FormatAmount(dec("0.33333")))
}
