// Servicio de firma XMLDSig para SIFEN: firma envuelta, C14N exclusiva y RSA-SHA256.
// La Signature se inserta como hermana siguiente del elemento firmado (DE o rEve).

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

var (
	errNoSignature   = errors.New("no se encontró Signature para el elemento")
	errNoCertificate = errors.New("la firma no incluye X509Certificate")
)

// DigitalSignatureService implementa pkg/sifen.Signer sobre goxmldsig.
type DigitalSignatureService struct {
	clock *dsig.Clock // nil = reloj real
}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// WithClock fija el reloj usado para validar la vigencia del certificado al verificar.
func (s *DigitalSignatureService) WithClock(c *dsig.Clock) *DigitalSignatureService {
	return &DigitalSignatureService{clock: c}
}

var _ sifen.Signer = (*DigitalSignatureService)(nil)

// Sign firma el elemento con Id = id sobre una copia del documento. Tras firmar verifica la
// firma contra el certificado embebido; si falla no devuelve ningún documento.
func (s *DigitalSignatureService) Sign(doc *etree.Document, id string, cert tls.Certificate) (*sifen.SignResult, error) {
	if doc == nil || doc.Root() == nil {
		return nil, domain.NewValidationError("XML", "documento vacío")
	}
	if len(cert.Certificate) == 0 {
		return nil, domain.NewCryptoError("firmar", errors.New("certificado sin cadena X.509"))
	}
	if _, ok := cert.PrivateKey.(*rsa.PrivateKey); !ok {
		return nil, domain.NewCryptoError("firmar", errors.New("el certificado debe incluir llave privada RSA"))
	}

	out := doc.Copy()
	target := findByID(out.Root(), id)
	if target == nil {
		return nil, domain.NewValidationError(IDAttribute, fmt.Sprintf("no existe elemento con Id %q", id))
	}
	parent := target.Parent()
	if parent == nil {
		return nil, domain.NewValidationError(IDAttribute, "el elemento firmado no puede ser la raíz")
	}

	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(cert))
	ctx.Prefix = ""
	ctx.IdAttribute = IDAttribute
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, domain.NewCryptoError("firmar", err)
	}

	sig, err := ctx.ConstructSignature(target, true)
	if err != nil {
		return nil, domain.NewCryptoError("firmar", err)
	}
	parent.InsertChildAt(target.Index()+1, sig)

	digest := sig.FindElement(".//DigestValue")
	if digest == nil || strings.TrimSpace(digest.Text()) == "" {
		return nil, domain.NewCryptoError("firmar", errors.New("la firma no contiene DigestValue"))
	}

	if err := s.Verify(out, id); err != nil {
		return nil, domain.NewCryptoError("verificar firma generada", err)
	}
	return &sifen.SignResult{Document: out, DigestValue: strings.TrimSpace(digest.Text())}, nil
}

// Verify valida la firma del elemento con Id = id contra el certificado embebido en KeyInfo.
// Acepta la Signature como hermana siguiente (formato SIFEN) o como hija del elemento.
func (s *DigitalSignatureService) Verify(doc *etree.Document, id string) error {
	if doc == nil || doc.Root() == nil {
		return domain.NewValidationError("XML", "documento vacío")
	}
	target := findByID(doc.Root(), id)
	if target == nil {
		return domain.NewCryptoError("verificar", fmt.Errorf("no existe elemento con Id %q", id))
	}

	signed := target.Copy()
	sig := findChild(target, "Signature")
	if sig == nil {
		sig = findSiblingSignature(target)
		if sig == nil {
			return domain.NewCryptoError("verificar", errNoSignature)
		}
		signed.AddChild(sig.Copy())
	}

	cert, err := embeddedCertificate(sig)
	if err != nil {
		return domain.NewCryptoError("verificar", err)
	}

	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	vctx.IdAttribute = IDAttribute
	if s.clock != nil {
		vctx.Clock = s.clock
	}
	if _, err := vctx.Validate(signed); err != nil {
		return domain.NewCryptoError("verificar", err)
	}
	return nil
}

// DigestValue devuelve el DigestValue de la firma asociada al elemento con Id = id.
func DigestValue(doc *etree.Document, id string) (string, error) {
	target := findByID(doc.Root(), id)
	if target == nil {
		return "", fmt.Errorf("signer: no existe elemento con Id %q", id)
	}
	sig := findChild(target, "Signature")
	if sig == nil {
		sig = findSiblingSignature(target)
	}
	if sig == nil {
		return "", errNoSignature
	}
	d := sig.FindElement(".//DigestValue")
	if d == nil {
		return "", errNoSignature
	}
	return strings.TrimSpace(d.Text()), nil
}

func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	el := sig.FindElement(".//X509Certificate")
	if el == nil {
		return nil, errNoCertificate
	}
	raw := strings.Join(strings.Fields(el.Text()), "")
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("X509Certificate no es base64: %w", err)
	}
	return x509.ParseCertificate(der)
}

func findByID(root *etree.Element, id string) *etree.Element {
	if root == nil || id == "" {
		return nil
	}
	if root.SelectAttrValue(IDAttribute, "") == id {
		return root
	}
	for _, child := range root.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func findChild(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

func findSiblingSignature(target *etree.Element) *etree.Element {
	parent := target.Parent()
	if parent == nil {
		return nil
	}
	seen := false
	for _, c := range parent.ChildElements() {
		if c == target {
			seen = true
			continue
		}
		if seen && c.Tag == "Signature" {
			return c
		}
	}
	return nil
}
