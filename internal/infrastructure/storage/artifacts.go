// Package storage guarda los artefactos de cada DE por día de emisión:
//
//	<root>/<AAAA-MM-DD>/<cdc>.xml                    XML generado (canónico)
//	<root>/<AAAA-MM-DD>/<cdc>-signed.xml             XML firmado con QR
//	<root>/<AAAA-MM-DD>/<cdc>-<método>-request.xml   solicitud SOAP
//	<root>/<AAAA-MM-DD>/<cdc>-<método>-response.xml  respuesta SOAP
//	<root>/<AAAA-MM-DD>/<cdc>-qr.png                 imagen del QR
package storage

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/ucarion/c14n"
)

const dayLayout = "2006-01-02"

// ArtifactStore escribe artefactos sobre un afero.Fs. Cada escritura es atómica
// (temporal + rename).
type ArtifactStore struct {
	fs   afero.Fs
	root string
}

// NewArtifactStore crea el almacén con raíz root.
func NewArtifactStore(fs afero.Fs, root string) *ArtifactStore {
	return &ArtifactStore{fs: fs, root: root}
}

// WriteXML guarda el XML generado (sin firma) en forma canónica.
func (s *ArtifactStore) WriteXML(day time.Time, cdc string, data []byte) (string, error) {
	canon, err := canonicalize(data)
	if err != nil {
		return "", err
	}
	return s.write(day, cdc+".xml", canon)
}

// WriteSigned guarda el XML firmado tal como se transmite; no se re-serializa.
func (s *ArtifactStore) WriteSigned(day time.Time, cdc string, data []byte) (string, error) {
	return s.write(day, cdc+"-signed.xml", data)
}

// WriteSOAP guarda una solicitud o respuesta SOAP. kind es "request" o "response".
func (s *ArtifactStore) WriteSOAP(day time.Time, key, method, kind string, data []byte) (string, error) {
	if kind != "request" && kind != "response" {
		return "", fmt.Errorf("storage: tipo de artefacto SOAP inválido %q", kind)
	}
	return s.write(day, fmt.Sprintf("%s-%s-%s.xml", key, method, kind), data)
}

// WriteQR guarda la imagen PNG del QR.
func (s *ArtifactStore) WriteQR(day time.Time, cdc string, png []byte) (string, error) {
	return s.write(day, cdc+"-qr.png", png)
}

// Read lee un artefacto por su ruta.
func (s *ArtifactStore) Read(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// Path ruta de un artefacto del día.
func (s *ArtifactStore) Path(day time.Time, name string) string {
	return filepath.Join(s.root, day.Format(dayLayout), name)
}

func (s *ArtifactStore) write(day time.Time, name string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("storage: nombre inválido %q", name)
	}
	dir := filepath.Join(s.root, day.Format(dayLayout))
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("storage: crear %s: %w", dir, err)
	}
	f, err := afero.TempFile(s.fs, dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: temporal: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("storage: escribir %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("storage: cerrar %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("storage: renombrar %s: %w", name, err)
	}
	return path, nil
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("storage: canonicalizar XML: %w", err)
	}
	return out, nil
}
