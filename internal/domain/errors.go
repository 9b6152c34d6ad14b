package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	ErrCDCAlreadyAssigned  = errors.New("el documento ya tiene CDC asignado")
	ErrNoActiveCertificate = errors.New("la empresa no tiene certificado activo")
	ErrWrongPassphrase     = errors.New("contraseña del certificado incorrecta")
)

// =============================================================================
// Taxonomía de errores del motor SIFEN
//
//   ValidationError  entrada mal formada; nunca se transmite nada.
//   CryptoError      firma, verificación o certificado inválido.
//   TransportError   red o timeout; el resultado en la SET es desconocido.
//   ProtocolError    la SET respondió con un código de rechazo.
//   StateError       CDC/lote desconocido o transición no permitida.
// =============================================================================

// ValidationError entrada inválida detectada antes de cualquier llamada de red.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validación: %s: %s", e.Field, e.Message)
	}
	return "validación: " + e.Message
}

func (e *ValidationError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrInvalidInput
}

// NewValidationError crea un ValidationError para el campo indicado.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// CryptoError falla de firma/verificación o certificado inválido, vencido o con contraseña errónea.
type CryptoError struct {
	Op    string
	Cause error
}

func (e *CryptoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cripto: %s: %v", e.Op, e.Cause)
	}
	return "cripto: " + e.Op
}

func (e *CryptoError) Unwrap() error { return e.Cause }

// NewCryptoError envuelve cause como CryptoError de la operación op.
func NewCryptoError(op string, cause error) *CryptoError {
	return &CryptoError{Op: op, Cause: cause}
}

// TransportError error de red o timeout. La capa que lo produce no reintenta.
// Unsent indica que la solicitud no llegó a escribirse en la conexión: la SET no la recibió.
type TransportError struct {
	Method  string
	Timeout bool
	Unsent  bool
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transporte: %s: timeout: %v", e.Method, e.Cause)
	}
	return fmt.Sprintf("transporte: %s: %v", e.Method, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ProtocolError la SET devolvió un código de rechazo o una respuesta fuera de contrato.
type ProtocolError struct {
	Method  string
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("protocolo: %s: [%s] %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("protocolo: %s: %s", e.Method, e.Message)
}

// StateError consulta sobre un CDC/lote desconocido o transición de estado inválida.
type StateError struct {
	Entity  string
	ID      string
	Message string
	Cause   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("estado: %s %s: %s", e.Entity, e.ID, e.Message)
}

func (e *StateError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrConflict
}

// NewStateError crea un StateError.
func NewStateError(entity, id, message string) *StateError {
	return &StateError{Entity: entity, ID: id, Message: message}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsCrypto(err error) bool {
	var target *CryptoError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// NeverSent indica un TransportError ocurrido antes de escribir la solicitud.
func NeverSent(err error) bool {
	var target *TransportError
	return errors.As(err, &target) && target.Unsent
}

func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}
