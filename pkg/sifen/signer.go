// Package sifen: interfaz para firma digital de documentos XML (XMLDSig, SIFEN).

package sifen

import (
	"crypto/tls"

	"github.com/beevik/etree"
)

// SignResult resultado de una firma: documento firmado y DigestValue (Base64) de la referencia.
type SignResult struct {
	Document    *etree.Document
	DigestValue string
}

// Signer firma el elemento con Id = id dentro del documento e inserta ds:Signature como
// hermano siguiente. El documento de entrada no se modifica.
type Signer interface {
	Sign(doc *etree.Document, id string, cert tls.Certificate) (*SignResult, error)
	Verify(doc *etree.Document, id string) error
}
