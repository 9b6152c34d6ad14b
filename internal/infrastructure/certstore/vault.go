// Package certstore administra los certificados PKCS12 de las empresas: resguardo cifrado,
// extracción de certificado y clave, archivos derivados y carga del par para firma y mTLS.
package certstore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
)

// Vault cifra en reposo el PKCS12 y su contraseña con XChaCha20-Poly1305 y la clave del servidor.
// Formato: nonce (24 bytes) || texto cifrado.
type Vault struct {
	aead cipher.AEAD
}

// NewVault crea el vault. La clave debe tener 32 bytes.
func NewVault(key []byte) (*Vault, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: clave maestra inválida: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal cifra plain.
func (v *Vault) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plain)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generar nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open descifra un valor producido por Seal. Un valor alterado o cifrado con otra clave
// devuelve CryptoError.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	ns := v.aead.NonceSize()
	if len(sealed) < ns+v.aead.Overhead() {
		return nil, domain.NewCryptoError("vault", errors.New("valor cifrado truncado"))
	}
	plain, err := v.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, domain.NewCryptoError("vault", err)
	}
	return plain, nil
}

// DecryptPassword descifra la contraseña del PKCS12 del certificado.
func (v *Vault) DecryptPassword(cert *entity.Certificate) (string, error) {
	if len(cert.EncryptedPassword) == 0 {
		return "", domain.NewCryptoError("vault", errors.New("certificado sin contraseña cifrada"))
	}
	plain, err := v.Open(cert.EncryptedPassword)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
