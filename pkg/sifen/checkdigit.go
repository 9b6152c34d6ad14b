package sifen

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// DefaultCheckDigitBase es el tope por defecto de la serie de pesos del módulo 11 (SET).
const DefaultCheckDigitBase = 11

// CheckDigit calcula el dígito verificador módulo 11 usado por la SET para el RUC y para el CDC.
//
// Las letras aportan su valor ordinal (ej: 'A' -> "65") y los dígitos su valor numérico.
// La cadena resultante se recorre de derecha a izquierda multiplicando cada dígito por un
// peso que arranca en 2 y sube hasta base, luego vuelve a 2. Con r = suma % 11 el dígito
// es 11-r si r > 1, en otro caso 0. Si base < 2 se usa DefaultCheckDigitBase.
func CheckDigit(input string, base int) int {
	if base < 2 {
		base = DefaultCheckDigitBase
	}
	normalized := normalizeForCheckDigit(input)

	k := 2
	total := 0
	for i := len(normalized) - 1; i >= 0; i-- {
		if k > base {
			k = 2
		}
		total += int(normalized[i]-'0') * k
		k++
	}
	r := total % 11
	if r > 1 {
		return 11 - r
	}
	return 0
}

// normalizeForCheckDigit reemplaza cada carácter no numérico por su código ordinal.
func normalizeForCheckDigit(input string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(input) {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		sb.WriteString(strconv.Itoa(int(r)))
	}
	return sb.String()
}

// NormalizeRUC quita espacios y puntos de miles ("80.026.598-0" -> "80026598-0") y pasa
// las letras a mayúsculas. El guion del DV se conserva.
func NormalizeRUC(ruc string) string {
	var sb strings.Builder
	sb.Grow(len(ruc))
	for _, r := range ruc {
		if r == '.' || unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// SplitRUC separa "80026598-0" en ("80026598", 0). Sin guion, el último carácter es el DV.
func SplitRUC(ruc string) (base string, dv int, err error) {
	ruc = strings.TrimSpace(ruc)
	if ruc == "" {
		return "", 0, fmt.Errorf("sifen: RUC vacío")
	}
	if idx := strings.LastIndex(ruc, "-"); idx != -1 {
		base, dvStr := ruc[:idx], ruc[idx+1:]
		dv, err = strconv.Atoi(dvStr)
		if err != nil || len(dvStr) != 1 {
			return "", 0, fmt.Errorf("sifen: dígito verificador inválido en %q", ruc)
		}
		return strings.TrimSpace(base), dv, nil
	}
	if len(ruc) < 2 {
		return "", 0, fmt.Errorf("sifen: RUC %q demasiado corto", ruc)
	}
	dv, err = strconv.Atoi(ruc[len(ruc)-1:])
	if err != nil {
		return "", 0, fmt.Errorf("sifen: dígito verificador inválido en %q", ruc)
	}
	return ruc[:len(ruc)-1], dv, nil
}

// ValidateRUC valida que el RUC (con DV) tenga un dígito verificador correcto.
// ruc puede ser "80026598-0" o "800265980".
func ValidateRUC(ruc string, base int) error {
	num, dv, err := SplitRUC(ruc)
	if err != nil {
		return err
	}
	if len(num) > 8 {
		return fmt.Errorf("sifen: RUC %q excede 8 caracteres", num)
	}
	if expected := CheckDigit(num, base); expected != dv {
		return fmt.Errorf("sifen: dígito verificador del RUC inválido: esperado %d, recibido %d", expected, dv)
	}
	return nil
}

// ComputeRUCCheckDigit calcula el DV del RUC sin guion ni DV con el tope de pesos base.
func ComputeRUCCheckDigit(ruc string, base int) (int, error) {
	ruc = strings.TrimSpace(ruc)
	if ruc == "" {
		return 0, fmt.Errorf("sifen: RUC vacío")
	}
	return CheckDigit(ruc, base), nil
}
