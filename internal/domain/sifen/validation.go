package sifen

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// ValidateDocument valida el DE antes de asignar CDC o firmar. Devuelve todos los errores
// encontrados agrupados con errors.Join; cada uno es un *domain.ValidationError.
func ValidateDocument(doc *entity.ElectronicDocument, checkDigitBase int) error {
	if doc == nil {
		return domain.NewValidationError("DE", "documento nulo")
	}
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, domain.NewValidationError(field, msg))
	}

	if !doc.DocType.Valid() {
		add("iTiDE", fmt.Sprintf("tipo de documento %d inválido", int(doc.DocType)))
	}
	if err := sifen.ValidateRUC(doc.IssuerRUC+"-"+strconv.Itoa(doc.IssuerDV), checkDigitBase); err != nil {
		add("dRucEm", err.Error())
	}
	if doc.Sequence <= 0 {
		add("dNumDoc", "requerido")
	}
	if doc.EmissionDate.IsZero() {
		add("dFeEmiDE", "requerido")
	}
	if doc.Currency == "" {
		add("cMoneOpe", "requerido")
	} else if doc.Currency != sifen.CurrencyPYG && !doc.ExchangeRate.IsPositive() {
		add("dTiCam", "tipo de cambio requerido para moneda extranjera")
	}
	if (doc.DocType == sifen.DocExportInvoice || doc.DocType == sifen.DocImportInvoice) && doc.Currency == sifen.CurrencyPYG {
		add("cMoneOpe", "exportación/importación requiere moneda extranjera")
	}

	switch doc.DocType {
	case sifen.DocAutoInvoice:
		if doc.Vendor == nil {
			add("gCamAE", "la autofactura requiere los datos del vendedor")
		} else if doc.Vendor.IDNumber == "" || doc.Vendor.Name == "" {
			add("gCamAE", "documento y nombre del vendedor requeridos")
		}
	default:
		errs = append(errs, validateReceiver(doc.Receiver, checkDigitBase)...)
	}

	if doc.DocType.RequiresAssociatedDocument() {
		errs = append(errs, validateAssociated(doc.Associated, checkDigitBase)...)
	}
	if doc.DocType == sifen.DocRemission && doc.Remission == nil {
		add("gCamNRE", "la nota de remisión requiere motivo y responsable")
	}
	if len(doc.Lines) == 0 {
		add("gCamItem", "el documento debe tener al menos una línea")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateReceiver(r entity.Receiver, base int) []error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, domain.NewValidationError("dNomRec", "requerido"))
	}
	if r.IsTaxpayer {
		if err := sifen.ValidateRUC(r.RUC+"-"+strconv.Itoa(r.DV), base); err != nil {
			errs = append(errs, domain.NewValidationError("dRucRec", err.Error()))
		}
	} else if r.IDNumber == "" {
		errs = append(errs, domain.NewValidationError("dNumIDRec", "requerido para receptor no contribuyente"))
	}
	return errs
}

func validateAssociated(a *entity.AssociatedDocument, base int) []error {
	if a == nil {
		return []error{domain.NewValidationError("gCamDEAsoc", "se requiere el CDC o el timbrado del documento asociado")}
	}
	if a.Electronic {
		if err := ValidateCDC(a.CDC, base); err != nil {
			return []error{domain.NewValidationError("dCdCDERef", err.Error())}
		}
		return nil
	}
	if a.Timbrado == "" || a.Establishment == "" || a.PointOfSale == "" || a.Number == "" {
		return []error{domain.NewValidationError("gCamDEAsoc", "timbrado, establecimiento, punto y número requeridos")}
	}
	return nil
}
