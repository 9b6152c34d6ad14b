// Package sifen implementa la infraestructura SIFEN (Paraguay): armado del XML del DE,
// eventos, lotes, token QR y el cliente SOAP 1.2 con la SET.
package sifen

import (
	"time"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// BuildContext datos necesarios para armar el XML del DE.
type BuildContext struct {
	Document   *entity.ElectronicDocument // con CDC y Totals ya asignados
	Issuer     *entity.Issuer             // gEmis
	Timbrado   *entity.Timbrado           // gTimb
	SignedAt   time.Time                  // dFecFirma; cero = time.Now()
	SystemName string                     // dSisFact (informativo)
}

// Formatos de fecha del XML: hora civil local sin sufijo de zona.
const (
	DateTimeLayout = "2006-01-02T15:04:05"
	DateLayout     = "2006-01-02"
)

// Descripciones de catálogo usadas en los campos dDes* del DE.
var (
	currencyNames = map[string]string{
		"PYG": "Guarani",
		"USD": "US Dollar",
		"BRL": "Brazilian Real",
		"ARS": "Argentine Peso",
		"EUR": "Euro",
	}
	transactionTypeNames = map[int]string{
		1:  "Venta de mercadería",
		2:  "Prestación de servicios",
		3:  "Mixto (Venta de mercadería y servicios)",
		4:  "Venta de activo fijo",
		5:  "Venta de divisas",
		6:  "Compra de divisas",
		7:  "Promoción o entrega de muestras",
		8:  "Donación",
		9:  "Anticipo",
		10: "Compra de productos",
		11: "Compra de servicios",
		12: "Venta de crédito fiscal",
		13: "Muestras médicas (Art. 3 RG 24/2014)",
	}
	idTypeNames = map[int]string{
		1: "Cédula paraguaya",
		2: "Pasaporte",
		3: "Cédula extranjera",
		4: "Carnet de residencia",
		5: "Innominado",
		6: "Tarjeta Diplomática de exoneración fiscal",
		9: "Otro",
	}
	noteReasonNames = map[int]string{
		1: "Devolución y Ajuste de precios",
		2: "Devolución",
		3: "Descuento",
		4: "Bonificación",
		5: "Crédito incobrable",
		6: "Recupero de costo",
		7: "Recupero de gasto",
		8: "Ajuste de precio",
	}
	remissionReasonNames = map[int]string{
		1:  "Traslado por venta",
		2:  "Traslado por consignación",
		3:  "Exportación",
		4:  "Traslado por compra",
		5:  "Importación",
		6:  "Traslado por devolución",
		7:  "Traslado entre locales de la empresa",
		8:  "Traslado de bienes por transformación",
		9:  "Traslado de bienes por reparación",
		10: "Traslado por emisor móvil",
		11: "Exhibición o demostración",
		12: "Participación en ferias",
		13: "Traslado de encomienda",
		14: "Decomiso",
		99: "Otro",
	}
	remissionResponsibleNames = map[int]string{
		1: "Emisor de la factura",
		2: "Poseedor de la factura y bienes",
		3: "Empresa transportista contratada",
		4: "Despachante de Aduanas",
		5: "Agente de transporte o intermediario",
	}
	vendorNatureNames = map[int]string{
		1: "No contribuyente",
		2: "Extranjero",
	}
	printedDocTypeNames = map[int]string{
		1: "Factura",
		2: "Nota de crédito",
		3: "Nota de débito",
		4: "Nota de remisión",
		5: "Comprobante de retención",
	}
)

func describe(m map[int]string, code int) string {
	if d, ok := m[code]; ok {
		return d
	}
	return "Otro"
}
