package sifen

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/beevik/etree"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// MaxLotSize máximo de DE por lote admitido por siRecepLoteDE.
const MaxLotSize = 50

// lotEntryName nombre del único archivo dentro del ZIP del lote.
const lotEntryName = "lote.xml"

// BuildLotXML arma rLoteDE con los rDE firmados en el orden recibido.
func BuildLotXML(signed []string) ([]byte, error) {
	if len(signed) == 0 || len(signed) > MaxLotSize {
		return nil, domain.NewValidationError("rLoteDE", fmt.Sprintf("el lote debe tener entre 1 y %d documentos", MaxLotSize))
	}
	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	lote := out.CreateElement("rLoteDE")
	lote.CreateAttr("xmlns", sifen.Namespace)

	for i, raw := range signed {
		d := etree.NewDocument()
		if err := d.ReadFromString(raw); err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("rLoteDE[%d]", i), "XML firmado inválido: "+err.Error())
		}
		root := d.Root()
		if root == nil || root.Tag != "rDE" {
			return nil, domain.NewValidationError(fmt.Sprintf("rLoteDE[%d]", i), "se esperaba rDE como raíz")
		}
		lote.AddChild(root.Copy())
	}
	return out.WriteToBytes()
}

// CompressLot empaqueta el XML del lote en un ZIP en memoria (contenido de xDE).
func CompressLot(lotXML []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(lotEntryName)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", lotEntryName, err)
	}
	if _, err := fw.Write(lotXML); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractLot lee el XML del lote desde el ZIP (diagnóstico y tests).
func ExtractLot(zipBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("zip: abrir: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != lotEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("zip: abrir %s: %w", f.Name, err)
		}
		defer rc.Close()
		var out bytes.Buffer
		if _, err := out.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("zip: leer %s: %w", f.Name, err)
		}
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("zip: falta %s", lotEntryName)
}
