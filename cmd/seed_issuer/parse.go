package main

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

type emisorXML struct {
	XMLName      xml.Name `xml:"emisor"`
	Empresa      string   `xml:"empresa,attr"`
	RUC          string   `xml:"ruc,attr"`
	Nombre       string   `xml:"nombre"`
	Fantasia     string   `xml:"fantasia"`
	TipoContrib  int      `xml:"tipoContribuyente"`
	Actividad    valorXML `xml:"actividad"`
	Direccion    string   `xml:"direccion"`
	NumCasa      int      `xml:"numeroCasa"`
	Departamento valorXML `xml:"departamento"`
	Distrito     valorXML `xml:"distrito"`
	Ciudad       valorXML `xml:"ciudad"`
	Telefono     string   `xml:"telefono"`
	Email        string   `xml:"email"`
	Timbrados    []struct {
		Numero  string `xml:"numero,attr"`
		Tipo    int    `xml:"tipo,attr"`
		Est     string `xml:"establecimiento,attr"`
		Pun     string `xml:"punto,attr"`
		Desde   int64  `xml:"desde,attr"`
		Hasta   int64  `xml:"hasta,attr"`
		Inicio  string `xml:"inicio,attr"`
		Inactiv bool   `xml:"inactivo,attr"`
	} `xml:"timbrado"`
}

type valorXML struct {
	Cod    string `xml:"cod,attr"`
	Nombre string `xml:",chardata"`
}

type issuerSeed struct {
	Issuer    *entity.Issuer
	Timbrados []*entity.Timbrado
}

// parseIssuerXML decodifica y valida el XML del emisor. El RUC va con DV ("80026598-0").
func parseIssuerXML(r io.Reader) (*issuerSeed, error) {
	var e emisorXML
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		if strings.EqualFold(charset, "ISO-8859-1") || strings.EqualFold(charset, "ISO8859-1") {
			return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
		}
		return input, nil
	}
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decodificar XML: %w", err)
	}

	if _, err := uuid.Parse(e.Empresa); err != nil {
		return nil, fmt.Errorf("empresa %q no es un UUID", e.Empresa)
	}
	if err := sifen.ValidateRUC(e.RUC, sifen.DefaultCheckDigitBase); err != nil {
		return nil, err
	}
	ruc, dv, _ := sifen.SplitRUC(e.RUC)
	if strings.TrimSpace(e.Nombre) == "" {
		return nil, fmt.Errorf("nombre del emisor requerido")
	}
	if e.TipoContrib != 1 && e.TipoContrib != 2 {
		return nil, fmt.Errorf("tipoContribuyente debe ser 1 o 2")
	}

	is := &entity.Issuer{
		BusinessID:   e.Empresa,
		RUC:          ruc,
		DV:           dv,
		Name:         strings.TrimSpace(e.Nombre),
		FantasyName:  strings.TrimSpace(e.Fantasia),
		TaxpayerType: e.TipoContrib,
		ActivityCode: e.Actividad.Cod,
		ActivityName: strings.TrimSpace(e.Actividad.Nombre),
		Address:      strings.TrimSpace(e.Direccion),
		HouseNumber:  e.NumCasa,
		Department:   strings.TrimSpace(e.Departamento.Nombre),
		District:     strings.TrimSpace(e.Distrito.Nombre),
		City:         strings.TrimSpace(e.Ciudad.Nombre),
		Phone:        e.Telefono,
		Email:        e.Email,
	}
	var err error
	if is.DepartmentID, err = atoiField("departamento", e.Departamento.Cod); err != nil {
		return nil, err
	}
	if e.Distrito.Cod != "" {
		if is.DistrictID, err = atoiField("distrito", e.Distrito.Cod); err != nil {
			return nil, err
		}
	}
	if is.CityID, err = atoiField("ciudad", e.Ciudad.Cod); err != nil {
		return nil, err
	}

	seed := &issuerSeed{Issuer: is}
	for _, t := range e.Timbrados {
		if len(t.Numero) != 8 {
			return nil, fmt.Errorf("timbrado %q: se esperan 8 dígitos", t.Numero)
		}
		if !sifen.DocumentType(t.Tipo).Valid() {
			return nil, fmt.Errorf("timbrado %s: tipo de documento %d inválido", t.Numero, t.Tipo)
		}
		if t.Desde <= 0 || t.Hasta < t.Desde {
			return nil, fmt.Errorf("timbrado %s: rango %d..%d inválido", t.Numero, t.Desde, t.Hasta)
		}
		start, err := time.ParseInLocation(time.DateOnly, t.Inicio, time.Local)
		if err != nil {
			return nil, fmt.Errorf("timbrado %s: inicio: %w", t.Numero, err)
		}
		seed.Timbrados = append(seed.Timbrados, &entity.Timbrado{
			BusinessID:    e.Empresa,
			Number:        t.Numero,
			DocType:       t.Tipo,
			Establishment: t.Est,
			PointOfSale:   t.Pun,
			RangeFrom:     t.Desde,
			RangeTo:       t.Hasta,
			ValidFrom:     start,
			IsActive:      !t.Inactiv,
		})
	}
	return seed, nil
}

func atoiField(field, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: código %q inválido", field, s)
	}
	return n, nil
}
