package sifen

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

// URLs de consulta pública del QR por ambiente.
const (
	QRBaseURLProd = "https://ekuatia.set.gov.py/consultas/qr?"
	QRBaseURLTest = "https://ekuatia.set.gov.py/consultas-test/qr?"
)

const hashField = "&cHashQR="

// QRInput campos del token QR. DigestValue es el de la firma del documento transmitido.
type QRInput struct {
	CDC                string
	EmissionDate       time.Time
	ReceiverIsTaxpayer bool
	ReceiverID         string // dRucRec (sin DV) o dNumIDRec
	GrandTotal         decimal.Decimal
	TotalIVA           decimal.Decimal
	ItemCount          int
	DigestValue        string // Base64 tal como figura en la firma
}

// QRToken resultado del formateo.
type QRToken struct {
	URL   string // URL completa impresa en el KuDE y embebida en dCarQR
	Query string // parámetros sin cHashQR
	Hash  string // cHashQR
}

// QRFormatter arma el token de verificación pública. El CSC nunca aparece en la salida.
type QRFormatter struct {
	baseURL string
	idCSC   string
	csc     string
}

// NewQRFormatter crea el formateador. baseURL vacío = URL del ambiente (test o prod).
func NewQRFormatter(appEnv, idCSC, csc, baseURL string) *QRFormatter {
	if baseURL == "" {
		baseURL = QRBaseURLTest
		if appEnv == "prod" {
			baseURL = QRBaseURLProd
		}
	}
	if !strings.HasSuffix(baseURL, "?") {
		baseURL += "?"
	}
	return &QRFormatter{baseURL: baseURL, idCSC: padIDCSC(idCSC), csc: csc}
}

// Format arma el query string en el orden fijo exigido por la SET y agrega
// cHashQR = hex(SHA256(query + CSC)).
func (f *QRFormatter) Format(in QRInput) (*QRToken, error) {
	if in.CDC == "" {
		return nil, domain.NewValidationError("Id", "CDC requerido para el QR")
	}
	if in.DigestValue == "" {
		return nil, domain.NewValidationError("DigestValue", "el QR requiere el digest de la firma")
	}
	if f.csc == "" {
		return nil, domain.NewValidationError("CSC", "código de seguridad del contribuyente no configurado")
	}
	receiverField := "dNumIDRec"
	if in.ReceiverIsTaxpayer {
		receiverField = "dRucRec"
	}

	var sb strings.Builder
	sb.WriteString("nVersion=" + sifen.SchemaVersion)
	sb.WriteString("&Id=" + in.CDC)
	sb.WriteString("&dFeEmiDE=" + hex.EncodeToString([]byte(in.EmissionDate.Format(DateTimeLayout))))
	sb.WriteString("&" + receiverField + "=" + in.ReceiverID)
	sb.WriteString("&dTotGralOpe=" + FormatAmount(in.GrandTotal))
	sb.WriteString("&dTotIVA=" + FormatAmount(in.TotalIVA))
	sb.WriteString("&cItems=" + strconv.Itoa(in.ItemCount))
	sb.WriteString("&DigestValue=" + hex.EncodeToString([]byte(in.DigestValue)))
	sb.WriteString("&IdCSC=" + f.idCSC)

	query := sb.String()
	hash := qrHash(query, f.csc)
	return &QRToken{
		URL:   f.baseURL + query + hashField + hash,
		Query: query,
		Hash:  hash,
	}, nil
}

// VerifyQR recalcula cHashQR a partir de los campos de la URL y lo compara con el embebido.
func VerifyQR(url, csc string) error {
	idx := strings.Index(url, "?")
	if idx == -1 {
		return domain.NewValidationError("dCarQR", "URL sin parámetros")
	}
	params := url[idx+1:]
	h := strings.LastIndex(params, hashField)
	if h == -1 {
		return domain.NewValidationError("cHashQR", "falta el hash")
	}
	query, got := params[:h], params[h+len(hashField):]
	want := qrHash(query, csc)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) != 1 {
		return domain.NewCryptoError("verificar QR", errors.New("cHashQR no coincide"))
	}
	return nil
}

// EmbedQR agrega gCamFuFD/dCarQR a rDE después de la Signature. Reemplaza uno anterior.
func EmbedQR(doc *etree.Document, url string) error {
	root := doc.Root()
	if root == nil || root.Tag != "rDE" {
		return fmt.Errorf("sifen: el documento no tiene raíz rDE")
	}
	sig := root.SelectElement("Signature")
	if sig == nil {
		return domain.NewCryptoError("embeber QR", errors.New("el documento no está firmado"))
	}
	if old := root.SelectElement("gCamFuFD"); old != nil {
		root.RemoveChild(old)
	}
	gCamFuFD := etree.NewElement("gCamFuFD")
	addText(gCamFuFD, "dCarQR", url)
	root.InsertChildAt(sig.Index()+1, gCamFuFD)
	return nil
}

// QRPNG genera la imagen PNG del QR (300px, corrección media).
func QRPNG(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, 300)
}

func qrHash(query, csc string) string {
	sum := sha256.Sum256([]byte(query + csc))
	return hex.EncodeToString(sum[:])
}

func padIDCSC(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.Atoi(id); err == nil {
		return fmt.Sprintf("%04d", n)
	}
	return id
}
