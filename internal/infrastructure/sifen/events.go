package sifen

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// CancelEvent evento de cancelación de un DE aprobado (rGeVeCan).
type CancelEvent struct {
	EventID string // Id de rEve
	CDC     string
	Reason  string // mOtEve, 5 a 500 caracteres
	At      time.Time
}

// VoidRangeEvent evento de inutilización de un rango de numeración (rGeVeInu).
type VoidRangeEvent struct {
	EventID       string
	Timbrado      string
	Establishment string
	PointOfSale   string
	From          int64
	To            int64
	DocType       sifen.DocumentType
	Reason        string
	At            time.Time
}

// BuildCancelEvent arma gGroupGesEve/rGesEve/rEve con el evento de cancelación, sin firma.
// rEve lleva Id = EventID y es el elemento a firmar.
func BuildCancelEvent(ev CancelEvent) (*etree.Document, error) {
	if err := checkReason(ev.Reason); err != nil {
		return nil, err
	}
	if len(ev.CDC) != 44 {
		return nil, domain.NewValidationError("Id", "CDC inválido para cancelación")
	}
	doc, group := newEventDocument(ev.EventID, ev.At)
	rGeVeCan := group.CreateElement("rGeVeCan")
	addText(rGeVeCan, "Id", ev.CDC)
	addText(rGeVeCan, "mOtEve", ev.Reason)
	return doc, nil
}

// BuildVoidRangeEvent arma el evento de inutilización de numeración, sin firma.
func BuildVoidRangeEvent(ev VoidRangeEvent) (*etree.Document, error) {
	if err := checkReason(ev.Reason); err != nil {
		return nil, err
	}
	if !ev.DocType.Valid() {
		return nil, domain.NewValidationError("iTiDE", "tipo de documento inválido")
	}
	if ev.Timbrado == "" || ev.Establishment == "" || ev.PointOfSale == "" {
		return nil, domain.NewValidationError("rGeVeInu", "timbrado, establecimiento y punto requeridos")
	}
	if ev.From <= 0 || ev.To < ev.From || ev.To > 9_999_999 {
		return nil, domain.NewValidationError("dNumIn", fmt.Sprintf("rango inválido %d..%d", ev.From, ev.To))
	}
	doc, group := newEventDocument(ev.EventID, ev.At)
	rGeVeInu := group.CreateElement("rGeVeInu")
	addText(rGeVeInu, "dNumTim", ev.Timbrado)
	addText(rGeVeInu, "dEst", ev.Establishment)
	addText(rGeVeInu, "dPunExp", ev.PointOfSale)
	addText(rGeVeInu, "dNumIn", fmt.Sprintf("%07d", ev.From))
	addText(rGeVeInu, "dNumFin", fmt.Sprintf("%07d", ev.To))
	addText(rGeVeInu, "iTiDE", fmt.Sprintf("%d", int(ev.DocType)))
	addText(rGeVeInu, "mOtEve", ev.Reason)
	return doc, nil
}

func newEventDocument(id string, at time.Time) (*etree.Document, *etree.Element) {
	if at.IsZero() {
		at = time.Now()
	}
	doc := etree.NewDocument()
	root := doc.CreateElement("gGroupGesEve")
	root.CreateAttr("xmlns", sifen.Namespace)
	rGesEve := root.CreateElement("rGesEve")
	rEve := rGesEve.CreateElement("rEve")
	rEve.CreateAttr("xmlns", sifen.Namespace)
	rEve.CreateAttr("Id", id)
	addText(rEve, "dFecFirma", formatDateTime(at))
	addText(rEve, "dVerFor", sifen.SchemaVersion)
	return doc, rEve.CreateElement("gGroupTiEvt")
}

func checkReason(reason string) error {
	n := utf8.RuneCountInString(reason)
	if n < 5 || n > 500 {
		return domain.NewValidationError("mOtEve", "el motivo debe tener entre 5 y 500 caracteres")
	}
	return nil
}
