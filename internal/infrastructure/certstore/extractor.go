package certstore

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/sifen-api/internal/domain"
)

// Material certificado y clave extraídos del PKCS12, en PEM.
type Material struct {
	CertPEM []byte
	KeyPEM  []byte
	Leaf    *x509.Certificate
}

// Extractor obtiene certificado y clave privada de un PKCS12. Una contraseña incorrecta
// devuelve CryptoError que envuelve domain.ErrWrongPassphrase.
type Extractor interface {
	Extract(ctx context.Context, p12 []byte, password string) (*Material, error)
}

// NativeExtractor usa golang.org/x/crypto/pkcs12 (PBE SHA1/3DES y RC2; un certificado y una clave).
type NativeExtractor struct{}

func (NativeExtractor) Extract(_ context.Context, p12 []byte, password string) (*Material, error) {
	priv, cert, err := pkcs12.Decode(p12, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, domain.NewCryptoError("extraer pkcs12", domain.ErrWrongPassphrase)
		}
		return nil, domain.NewCryptoError("extraer pkcs12", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, domain.NewCryptoError("serializar clave privada", err)
	}
	return &Material{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		Leaf:    cert,
	}, nil
}

// passEnv variable por la que se entrega la contraseña a openssl; nunca va en argv.
const passEnv = "SIFEN_P12_PASS"

// OpenSSLExtractor ejecuta `openssl pkcs12`. Sirve para PKCS12 con algoritmos que el
// extractor nativo no soporta (PBES2/AES, cadenas con intermedios).
type OpenSSLExtractor struct {
	Path   string // binario; vacío = "openssl" del PATH
	Legacy bool   // agrega -legacy (OpenSSL 3 con RC2)
}

func (e OpenSSLExtractor) Extract(ctx context.Context, p12 []byte, password string) (*Material, error) {
	bin := e.Path
	if bin == "" {
		bin = "openssl"
	}
	tmp, err := os.CreateTemp("", "sifen-*.p12")
	if err != nil {
		return nil, fmt.Errorf("openssl: archivo temporal: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(p12); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("openssl: escribir temporal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("openssl: cerrar temporal: %w", err)
	}

	args := []string{"pkcs12", "-in", tmp.Name(), "-nodes", "-passin", "env:" + passEnv}
	if e.Legacy {
		args = append(args, "-legacy")
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), passEnv+"="+password)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(msg), "invalid password") || strings.Contains(strings.ToLower(msg), "mac verify") {
			return nil, domain.NewCryptoError("extraer pkcs12", domain.ErrWrongPassphrase)
		}
		return nil, domain.NewCryptoError("extraer pkcs12", fmt.Errorf("openssl: %v: %s", err, msg))
	}
	return parsePEMBundle(stdout.Bytes())
}

// parsePEMBundle toma el primer certificado (hoja) y la clave privada de la salida de openssl.
func parsePEMBundle(out []byte) (*Material, error) {
	m := &Material{}
	rest := out
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			if m.Leaf != nil {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, domain.NewCryptoError("leer certificado", err)
			}
			m.Leaf = cert
			m.CertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: block.Bytes})
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if m.KeyPEM == nil {
				m.KeyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: block.Bytes})
			}
		}
	}
	if m.Leaf == nil || m.KeyPEM == nil {
		return nil, domain.NewCryptoError("extraer pkcs12", errors.New("la salida no contiene certificado y clave"))
	}
	return m, nil
}
