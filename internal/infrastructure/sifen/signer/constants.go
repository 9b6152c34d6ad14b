// Constantes XMLDSig para la firma del DE y de los eventos SIFEN.

package signer

// Namespaces y algoritmos XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// IDAttribute atributo que referencia la firma: DE@Id = CDC, rEve@Id = id del evento.
const IDAttribute = "Id"
