package sifen

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	domsifen "github.com/jhoicas/sifen-api/internal/domain/sifen"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

const nsXsi = "http://www.w3.org/2001/XMLSchema-instance"

// XMLBuilderService arma el árbol rDE/DE (sin firma ni QR) según el Manual Técnico v150.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// blocks bloques opcionales que cada tipo de documento incluye.
type blocks struct {
	commercial  bool // gOpeCom
	condition   bool // gCamCond
	valuedItems bool // gValorItem + gCamIVA en cada ítem
	totals      bool // gTotSub
}

// assemblyStrategy estrategia de armado por tipo de documento. Se elige una vez al entrar a
// Build; los bloques comunes no vuelven a preguntar por el tipo.
type assemblyStrategy interface {
	blocks() blocks
	check(ctx *BuildContext) error
	receiver(ctx *BuildContext, gDatGralOpe *etree.Element)
	typeBlock(ctx *BuildContext, gDtipDE *etree.Element)
}

func strategyFor(t sifen.DocumentType) (assemblyStrategy, error) {
	switch t {
	case sifen.DocInvoice, sifen.DocExportInvoice, sifen.DocImportInvoice:
		return invoiceStrategy{docType: t}, nil
	case sifen.DocAutoInvoice:
		return autoInvoiceStrategy{}, nil
	case sifen.DocCreditNote, sifen.DocDebitNote:
		return noteStrategy{}, nil
	case sifen.DocRemission:
		return remissionStrategy{}, nil
	case sifen.DocWithholding:
		return withholdingStrategy{}, nil
	default:
		return nil, domain.NewValidationError("iTiDE", fmt.Sprintf("tipo de documento %d no soportado", int(t)))
	}
}

// Build arma el documento rDE. El resultado no contiene Signature ni gCamFuFD.
func (s *XMLBuilderService) Build(ctx *BuildContext) (*etree.Document, error) {
	if ctx == nil || ctx.Document == nil || ctx.Issuer == nil || ctx.Timbrado == nil {
		return nil, domain.NewValidationError("DE", "faltan documento, emisor o timbrado en el contexto")
	}
	doc := ctx.Document
	if doc.CDC == "" {
		return nil, domain.NewValidationError("Id", "el documento no tiene CDC asignado")
	}
	if doc.Totals == nil {
		return nil, domain.NewValidationError("gTotSub", "los totales no fueron calculados")
	}
	if len(doc.Totals.Lines) != len(doc.Lines) {
		return nil, domain.NewValidationError("gCamItem", "los totales no corresponden a las líneas")
	}

	strategy, err := strategyFor(doc.DocType)
	if err != nil {
		return nil, err
	}
	if err := strategy.check(ctx); err != nil {
		return nil, err
	}
	b := strategy.blocks()

	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	rDE := out.CreateElement("rDE")
	rDE.CreateAttr("xmlns", sifen.Namespace)
	rDE.CreateAttr("xmlns:xsi", nsXsi)
	rDE.CreateAttr("xsi:schemaLocation", sifen.Namespace+" siRecepDE_v"+sifen.SchemaVersion+".xsd")
	addText(rDE, "dVerFor", sifen.SchemaVersion)

	// DE declara su propio xmlns: la C14N exclusiva del nodo firmado debe ser la misma al
	// firmar y al verificar, con o sin el rDE contenedor.
	de := rDE.CreateElement("DE")
	de.CreateAttr("xmlns", sifen.Namespace)
	de.CreateAttr("Id", doc.CDC)

	signedAt := ctx.SignedAt
	if signedAt.IsZero() {
		signedAt = time.Now()
	}
	addText(de, "dDVId", doc.CDC[len(doc.CDC)-1:])
	addText(de, "dFecFirma", formatDateTime(signedAt))
	addText(de, "dSisFact", "1")

	writeOperation(de, doc)
	writeTimbrado(de, doc, ctx.Timbrado)

	gDatGralOpe := de.CreateElement("gDatGralOpe")
	addText(gDatGralOpe, "dFeEmiDE", formatDateTime(doc.EmissionDate))
	if b.commercial {
		writeCommercial(gDatGralOpe, doc)
	}
	writeIssuer(gDatGralOpe, ctx.Issuer)
	strategy.receiver(ctx, gDatGralOpe)

	gDtipDE := de.CreateElement("gDtipDE")
	strategy.typeBlock(ctx, gDtipDE)
	if b.condition {
		writeCondition(gDtipDE, doc)
	}
	for i := range doc.Lines {
		writeItem(gDtipDE, doc, i, b.valuedItems)
	}

	if b.totals {
		writeTotals(de, doc)
	}
	if doc.Associated != nil {
		writeAssociated(de, doc.Associated)
	}
	return out, nil
}

// =============================================================================
// Estrategias por tipo de documento
// =============================================================================

// invoiceStrategy factura, factura de exportación y de importación (iTiDE 1, 2, 3).
type invoiceStrategy struct{ docType sifen.DocumentType }

func (invoiceStrategy) blocks() blocks {
	return blocks{commercial: true, condition: true, valuedItems: true, totals: true}
}

func (s invoiceStrategy) check(ctx *BuildContext) error {
	if s.docType != sifen.DocInvoice && ctx.Document.Currency == sifen.CurrencyPYG {
		return domain.NewValidationError("cMoneOpe", "exportación/importación requiere moneda extranjera y tipo de cambio")
	}
	return nil
}

func (invoiceStrategy) receiver(ctx *BuildContext, parent *etree.Element) {
	writeReceiver(parent, ctx.Document.Receiver)
}

func (invoiceStrategy) typeBlock(_ *BuildContext, gDtipDE *etree.Element) {
	gCamFE := gDtipDE.CreateElement("gCamFE")
	addText(gCamFE, "iIndPres", "1")
	addText(gCamFE, "dDesIndPres", "Operación presencial")
}

// autoInvoiceStrategy autofactura (iTiDE 4): el emisor es también receptor y gCamAE
// identifica al vendedor.
type autoInvoiceStrategy struct{}

func (autoInvoiceStrategy) blocks() blocks {
	return blocks{commercial: true, condition: true, valuedItems: true, totals: true}
}

func (autoInvoiceStrategy) check(ctx *BuildContext) error {
	if ctx.Document.Vendor == nil {
		return domain.NewValidationError("gCamAE", "la autofactura requiere los datos del vendedor")
	}
	return requireAssociated(ctx.Document)
}

func (autoInvoiceStrategy) receiver(ctx *BuildContext, parent *etree.Element) {
	is := ctx.Issuer
	writeReceiver(parent, entity.Receiver{
		IsTaxpayer:    true,
		RUC:           is.RUC,
		DV:            is.DV,
		Name:          is.Name,
		Address:       is.Address,
		HouseNumber:   is.HouseNumber,
		CountryCode:   "PRY",
		CountryName:   "Paraguay",
		Phone:         is.Phone,
		Email:         is.Email,
		OperationKind: 1,
	})
}

func (autoInvoiceStrategy) typeBlock(ctx *BuildContext, gDtipDE *etree.Element) {
	v := ctx.Document.Vendor
	gCamAE := gDtipDE.CreateElement("gCamAE")
	addText(gCamAE, "iNatVen", strconv.Itoa(v.Nature))
	addText(gCamAE, "dDesNatVen", describe(vendorNatureNames, v.Nature))
	addText(gCamAE, "iTipIDVen", strconv.Itoa(v.IDType))
	addText(gCamAE, "dDTipIDVen", describe(idTypeNames, v.IDType))
	addText(gCamAE, "dNumIDVen", v.IDNumber)
	addText(gCamAE, "dNomVen", v.Name)
	addText(gCamAE, "dDirVen", v.Address)
	addText(gCamAE, "dNumCasVen", strconv.Itoa(v.HouseNumber))
	addText(gCamAE, "cDepVen", strconv.Itoa(v.DepartmentID))
	addText(gCamAE, "dDesDepVen", v.Department)
	addText(gCamAE, "cCiuVen", strconv.Itoa(v.CityID))
	addText(gCamAE, "dDesCiuVen", v.City)
	place := v.Place
	if place == "" {
		place = v.Address
	}
	addText(gCamAE, "dDirProv", place)
	addText(gCamAE, "cDepProv", strconv.Itoa(v.DepartmentID))
	addText(gCamAE, "dDesDepProv", v.Department)
	addText(gCamAE, "cCiuProv", strconv.Itoa(v.CityID))
	addText(gCamAE, "dDesCiuProv", v.City)
}

// noteStrategy nota de crédito y nota de débito (iTiDE 5, 6).
type noteStrategy struct{}

func (noteStrategy) blocks() blocks {
	return blocks{commercial: true, valuedItems: true, totals: true}
}

func (noteStrategy) check(ctx *BuildContext) error {
	return requireAssociated(ctx.Document)
}

func (noteStrategy) receiver(ctx *BuildContext, parent *etree.Element) {
	writeReceiver(parent, ctx.Document.Receiver)
}

func (noteStrategy) typeBlock(ctx *BuildContext, gDtipDE *etree.Element) {
	reason := ctx.Document.NoteReason
	if reason == 0 {
		reason = 2
	}
	gCamNCDE := gDtipDE.CreateElement("gCamNCDE")
	addText(gCamNCDE, "iMotEmi", strconv.Itoa(reason))
	addText(gCamNCDE, "dDesMotEmi", describe(noteReasonNames, reason))
}

// remissionStrategy nota de remisión (iTiDE 7): sin gOpeCom, sin condición ni valores.
type remissionStrategy struct{}

func (remissionStrategy) blocks() blocks { return blocks{} }

func (remissionStrategy) check(ctx *BuildContext) error {
	if ctx.Document.Remission == nil {
		return domain.NewValidationError("gCamNRE", "la nota de remisión requiere motivo y responsable")
	}
	return nil
}

func (remissionStrategy) receiver(ctx *BuildContext, parent *etree.Element) {
	writeReceiver(parent, ctx.Document.Receiver)
}

func (remissionStrategy) typeBlock(ctx *BuildContext, gDtipDE *etree.Element) {
	r := ctx.Document.Remission
	gCamNRE := gDtipDE.CreateElement("gCamNRE")
	addText(gCamNRE, "iMotEmiNR", strconv.Itoa(r.Reason))
	addText(gCamNRE, "dDesMotEmiNR", describe(remissionReasonNames, r.Reason))
	addText(gCamNRE, "iRespEmiNR", strconv.Itoa(r.Responsible))
	addText(gCamNRE, "dDesRespEmiNR", describe(remissionResponsibleNames, r.Responsible))
	if r.KmEstimate > 0 {
		addText(gCamNRE, "dKmR", strconv.Itoa(r.KmEstimate))
	}
	if !r.ShipDate.IsZero() {
		addText(gCamNRE, "dFecEm", r.ShipDate.Format(DateLayout))
	}
}

// withholdingStrategy comprobante de retención (iTiDE 8).
type withholdingStrategy struct{}

func (withholdingStrategy) blocks() blocks {
	return blocks{commercial: true, valuedItems: true, totals: true}
}

func (withholdingStrategy) check(*BuildContext) error { return nil }

func (withholdingStrategy) receiver(ctx *BuildContext, parent *etree.Element) {
	writeReceiver(parent, ctx.Document.Receiver)
}

func (withholdingStrategy) typeBlock(*BuildContext, *etree.Element) {}

func requireAssociated(doc *entity.ElectronicDocument) error {
	a := doc.Associated
	if a == nil {
		return domain.NewValidationError("gCamDEAsoc", "se requiere el CDC o el timbrado del documento original")
	}
	if a.Electronic && len(a.CDC) != domsifen.CDCLength {
		return domain.NewValidationError("dCdCDERef", "CDC del documento asociado inválido")
	}
	if !a.Electronic && a.Timbrado == "" {
		return domain.NewValidationError("dNTimDI", "timbrado del documento asociado requerido")
	}
	return nil
}

// =============================================================================
// Bloques comunes
// =============================================================================

func writeOperation(de *etree.Element, doc *entity.ElectronicDocument) {
	gOpeDE := de.CreateElement("gOpeDE")
	addText(gOpeDE, "iTipEmi", strconv.Itoa(sifen.EmissionTypeNormal))
	addText(gOpeDE, "dDesTipEmi", "Normal")
	addText(gOpeDE, "dCodSeg", doc.SecurityCode)
}

func writeTimbrado(de *etree.Element, doc *entity.ElectronicDocument, t *entity.Timbrado) {
	gTimb := de.CreateElement("gTimb")
	addText(gTimb, "iTiDE", strconv.Itoa(int(doc.DocType)))
	addText(gTimb, "dDesTiDE", doc.DocType.Description())
	addText(gTimb, "dNumTim", t.Number)
	addText(gTimb, "dEst", doc.Establishment)
	addText(gTimb, "dPunExp", doc.PointOfSale)
	addText(gTimb, "dNumDoc", fmt.Sprintf("%07d", doc.Sequence))
	addText(gTimb, "dFeIniT", t.ValidFrom.Format(DateLayout))
}

func writeCommercial(parent *etree.Element, doc *entity.ElectronicDocument) {
	gOpeCom := parent.CreateElement("gOpeCom")
	op := doc.OperationType
	if op == 0 {
		op = 1
	}
	addText(gOpeCom, "iTipTra", strconv.Itoa(op))
	addText(gOpeCom, "dDesTipTra", describe(transactionTypeNames, op))
	addText(gOpeCom, "iTImp", "1")
	addText(gOpeCom, "dDesTImp", "IVA")
	addText(gOpeCom, "cMoneOpe", doc.Currency)
	addText(gOpeCom, "dDesMoneOpe", currencyName(doc.Currency))
	if doc.Currency != sifen.CurrencyPYG {
		addText(gOpeCom, "dCondTiCam", "1")
		addAmount(gOpeCom, "dTiCam", doc.ExchangeRate)
	}
}

func writeIssuer(parent *etree.Element, is *entity.Issuer) {
	gEmis := parent.CreateElement("gEmis")
	addText(gEmis, "dRucEm", is.RUC)
	addText(gEmis, "dDVEmi", strconv.Itoa(is.DV))
	addText(gEmis, "iTipCont", strconv.Itoa(is.TaxpayerType))
	addText(gEmis, "dNomEmi", is.Name)
	if is.FantasyName != "" {
		addText(gEmis, "dNomFanEmi", is.FantasyName)
	}
	addText(gEmis, "dDirEmi", is.Address)
	addText(gEmis, "dNumCas", strconv.Itoa(is.HouseNumber))
	addText(gEmis, "cDepEmi", strconv.Itoa(is.DepartmentID))
	addText(gEmis, "dDesDepEmi", is.Department)
	if is.DistrictID > 0 {
		addText(gEmis, "cDisEmi", strconv.Itoa(is.DistrictID))
		addText(gEmis, "dDesDisEmi", is.District)
	}
	addText(gEmis, "cCiuEmi", strconv.Itoa(is.CityID))
	addText(gEmis, "dDesCiuEmi", is.City)
	addText(gEmis, "dTelEmi", is.Phone)
	addText(gEmis, "dEmailE", is.Email)
	gActEco := gEmis.CreateElement("gActEco")
	addText(gActEco, "cActEco", is.ActivityCode)
	addText(gActEco, "dDesActEco", is.ActivityName)
}

func writeReceiver(parent *etree.Element, r entity.Receiver) {
	gDatRec := parent.CreateElement("gDatRec")
	nature := 2
	if r.IsTaxpayer {
		nature = 1
	}
	kind := r.OperationKind
	if kind == 0 {
		kind = 2
	}
	country := r.CountryCode
	if country == "" {
		country = "PRY"
	}
	countryName := r.CountryName
	if countryName == "" {
		countryName = "Paraguay"
	}
	addText(gDatRec, "iNatRec", strconv.Itoa(nature))
	addText(gDatRec, "iTiOpe", strconv.Itoa(kind))
	addText(gDatRec, "cPaisRec", country)
	addText(gDatRec, "dDesPaisRe", countryName)
	if r.IsTaxpayer {
		addText(gDatRec, "iTiContRec", "2")
		addText(gDatRec, "dRucRec", r.RUC)
		addText(gDatRec, "dDVRec", strconv.Itoa(r.DV))
	} else {
		idType := r.IDType
		if idType == 0 {
			idType = 1
		}
		addText(gDatRec, "iTipIDRec", strconv.Itoa(idType))
		addText(gDatRec, "dDTipIDRec", describe(idTypeNames, idType))
		addText(gDatRec, "dNumIDRec", r.IDNumber)
	}
	addText(gDatRec, "dNomRec", r.Name)
	if r.Address != "" {
		addText(gDatRec, "dDirRec", r.Address)
		addText(gDatRec, "dNumCasRec", strconv.Itoa(r.HouseNumber))
	}
	if r.Phone != "" {
		addText(gDatRec, "dTelRec", r.Phone)
	}
	if r.Email != "" {
		addText(gDatRec, "dEmailRec", r.Email)
	}
}

func writeCondition(gDtipDE *etree.Element, doc *entity.ElectronicDocument) {
	gCamCond := gDtipDE.CreateElement("gCamCond")
	if doc.CreditSale {
		addText(gCamCond, "iCondOpe", "2")
		addText(gCamCond, "dDCondOpe", "Crédito")
		gPagCred := gCamCond.CreateElement("gPagCred")
		addText(gPagCred, "iCondCred", "1")
		addText(gPagCred, "dDCondCred", "Plazo")
		addText(gPagCred, "dPlazoCre", "30 días")
		return
	}
	addText(gCamCond, "iCondOpe", "1")
	addText(gCamCond, "dDCondOpe", "Contado")
	gPaConEIni := gCamCond.CreateElement("gPaConEIni")
	addText(gPaConEIni, "iTiPago", "1")
	addText(gPaConEIni, "dDesTiPag", "Efectivo")
	addAmount(gPaConEIni, "dMonTiPag", doc.Totals.GrandTotal)
	addText(gPaConEIni, "cMoneTiPag", doc.Currency)
	addText(gPaConEIni, "dDMoneTiPag", currencyName(doc.Currency))
	if doc.Currency != sifen.CurrencyPYG {
		addAmount(gPaConEIni, "dTiCamTiPag", doc.ExchangeRate)
	}
}

func writeItem(gDtipDE *etree.Element, doc *entity.ElectronicDocument, i int, valued bool) {
	l := doc.Lines[i]
	lt := doc.Totals.Lines[i]
	unit := l.UnitMeasure
	if unit == 0 {
		unit = 77
	}

	gCamItem := gDtipDE.CreateElement("gCamItem")
	addText(gCamItem, "dCodInt", l.ProductCode)
	addText(gCamItem, "dDesProSer", l.Description)
	addText(gCamItem, "cUniMed", strconv.Itoa(unit))
	addText(gCamItem, "dDesUniMed", unitName(unit))
	addAmount(gCamItem, "dCantProSer", l.Quantity)
	if !valued {
		return
	}

	gValorItem := gCamItem.CreateElement("gValorItem")
	addAmount(gValorItem, "dPUniProSer", l.UnitPrice)
	if doc.Currency != sifen.CurrencyPYG {
		addAmount(gValorItem, "dTiCamIt", doc.ExchangeRate)
	}
	addAmount(gValorItem, "dTotBruOpeItem", lt.Gross)
	gValorRestaItem := gValorItem.CreateElement("gValorRestaItem")
	addAmount(gValorRestaItem, "dDescItem", unitDiscount(l, lt))
	addAmount(gValorRestaItem, "dPorcDesIt", l.DiscountPercent)
	addAmount(gValorRestaItem, "dDescGloItem", decimal.Zero)
	addAmount(gValorRestaItem, "dAntPreUniIt", decimal.Zero)
	addAmount(gValorRestaItem, "dAntGloPreUniIt", decimal.Zero)
	addAmount(gValorRestaItem, "dTotOpeItem", lt.Total)

	gCamIVA := gCamItem.CreateElement("gCamIVA")
	addText(gCamIVA, "iAfecIVA", l.TaxClass.AffectationCode())
	addText(gCamIVA, "dDesAfecIVA", l.TaxClass.AffectationDescription())
	addText(gCamIVA, "dPropIVA", "100")
	addText(gCamIVA, "dTasaIVA", strconv.Itoa(l.TaxClass.Rate()))
	addAmount(gCamIVA, "dBasGravIVA", lt.Base)
	addAmount(gCamIVA, "dLiqIVAItem", lt.Tax)
}

func writeTotals(de *etree.Element, doc *entity.ElectronicDocument) {
	t := doc.Totals
	gTotSub := de.CreateElement("gTotSub")
	addAmount(gTotSub, "dSubExe", t.SubExempt)
	addAmount(gTotSub, "dSubExo", decimal.Zero)
	addAmount(gTotSub, "dSub5", t.Sub5)
	addAmount(gTotSub, "dSub10", t.Sub10)
	addAmount(gTotSub, "dTotOpe", t.TotalOperation)
	addAmount(gTotSub, "dTotDesc", t.TotalDiscount)
	addAmount(gTotSub, "dTotDescGlotem", decimal.Zero)
	addAmount(gTotSub, "dTotAntItem", decimal.Zero)
	addAmount(gTotSub, "dTotAnt", decimal.Zero)
	addAmount(gTotSub, "dPorcDescTotal", decimal.Zero)
	addAmount(gTotSub, "dDescTotal", t.TotalDiscount)
	addAmount(gTotSub, "dAnticipo", decimal.Zero)
	addAmount(gTotSub, "dRedon", decimal.Zero)
	addAmount(gTotSub, "dTotGralOpe", t.GrandTotal)
	addAmount(gTotSub, "dIVA5", t.IVA5)
	addAmount(gTotSub, "dIVA10", t.IVA10)
	addAmount(gTotSub, "dTotIVA", t.TotalIVA)
	addAmount(gTotSub, "dBaseGrav5", t.Base5)
	addAmount(gTotSub, "dBaseGrav10", t.Base10)
	addAmount(gTotSub, "dTBasGraIVA", t.TotalBase)
	if doc.Currency != sifen.CurrencyPYG {
		addAmount(gTotSub, "dTotalGs", t.GrandTotal.Mul(doc.ExchangeRate))
	}
}

func writeAssociated(de *etree.Element, a *entity.AssociatedDocument) {
	gCamDEAsoc := de.CreateElement("gCamDEAsoc")
	if a.Electronic {
		addText(gCamDEAsoc, "iTipDocAso", "1")
		addText(gCamDEAsoc, "dDesTipDocAso", "Electrónico")
		addText(gCamDEAsoc, "dCdCDERef", a.CDC)
		return
	}
	addText(gCamDEAsoc, "iTipDocAso", "2")
	addText(gCamDEAsoc, "dDesTipDocAso", "Impreso")
	addText(gCamDEAsoc, "dNTimDI", a.Timbrado)
	addText(gCamDEAsoc, "dEstDocAso", a.Establishment)
	addText(gCamDEAsoc, "dPExpDocAso", a.PointOfSale)
	addText(gCamDEAsoc, "dNumDocAso", a.Number)
	printed := a.PrintedType
	if printed == 0 {
		printed = 1
	}
	addText(gCamDEAsoc, "iTipoDocAso", strconv.Itoa(printed))
	addText(gCamDEAsoc, "dDTipoDocAso", describe(printedDocTypeNames, printed))
	if !a.IssueDate.IsZero() {
		addText(gCamDEAsoc, "dFecEmiDI", a.IssueDate.Format(DateLayout))
	}
}

// =============================================================================
// Helpers de serialización
// =============================================================================

func addText(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

func addAmount(parent *etree.Element, tag string, d decimal.Decimal) {
	addText(parent, tag, FormatAmount(d))
}

// FormatAmount serializa montos y cantidades con exactamente 4 decimales.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(domsifen.AmountScale)
}

func formatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

func currencyName(code string) string {
	if n, ok := currencyNames[code]; ok {
		return n
	}
	return code
}

func unitName(code int) string {
	switch code {
	case 77:
		return "UNI"
	case 83:
		return "kg"
	case 89:
		return "LT"
	default:
		return "UNI"
	}
}

// unitDiscount descuento por unidad (dDescItem).
func unitDiscount(l entity.DocumentLine, lt entity.LineTotals) decimal.Decimal {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}
	return lt.Discount.DivRound(l.Quantity, domsifen.AmountScale)
}
