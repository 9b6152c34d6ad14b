package certstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/domain/repository"
	"github.com/jhoicas/sifen-api/pkg/keyedmutex"
)

const (
	certFileName = "cert.pem"
	keyFileName  = "key.pem"

	keyPairCacheSize = 256
)

// Store administra el ciclo de vida de los certificados. Procesar un certificado toma el
// bloqueo de escritura de su id; firmar y abrir el canal mTLS toman el de lectura.
type Store struct {
	repo      repository.CertificateRepository
	vault     *Vault
	extractor Extractor
	fs        afero.Fs
	dir       string
	locks     *keyedmutex.KeyedRWMutex[string]
	cache     gcache.Cache
	now       func() time.Time
	log       zerolog.Logger
}

// Option configura el Store.
type Option func(*Store)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithExtractor reemplaza el extractor nativo (ej. OpenSSLExtractor).
func WithExtractor(e Extractor) Option {
	return func(s *Store) { s.extractor = e }
}

// NewStore crea el almacén. dir es la raíz de los archivos derivados dentro de fs.
func NewStore(repo repository.CertificateRepository, vault *Vault, fs afero.Fs, dir string, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		vault:     vault,
		extractor: NativeExtractor{},
		fs:        fs,
		dir:       dir,
		locks:     &keyedmutex.KeyedRWMutex[string]{},
		cache:     gcache.New(keyPairCacheSize).LRU().Build(),
		now:       time.Now,
		log:       log.With().Str("component", "certstore").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UploadInput datos de un PKCS12 nuevo.
type UploadInput struct {
	BusinessID string
	Name       string
	P12        []byte
	Password   string
}

// Upload cifra el PKCS12 y su contraseña y lo registra como pendiente. El primer certificado
// de la empresa queda como predeterminado.
func (s *Store) Upload(ctx context.Context, in UploadInput) (*entity.Certificate, error) {
	if in.BusinessID == "" {
		return nil, domain.NewValidationError("business_id", "requerido")
	}
	if len(in.P12) == 0 {
		return nil, domain.NewValidationError("p12", "archivo vacío")
	}
	blob, err := s.vault.Seal(in.P12)
	if err != nil {
		return nil, err
	}
	pass, err := s.vault.Seal([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListByBusiness(ctx, in.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("listar certificados: %w", err)
	}

	now := s.now()
	cert := &entity.Certificate{
		ID:                uuid.New().String(),
		BusinessID:        in.BusinessID,
		Name:              in.Name,
		State:             entity.CertPending,
		EncryptedBlob:     blob,
		EncryptedPassword: pass,
		IsDefault:         len(existing) == 0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("registrar certificado: %w", err)
	}
	s.log.Info().Str("business_id", cert.BusinessID).Str("cert_id", cert.ID).Bool("default", cert.IsDefault).Msg("certificado subido")
	return cert, nil
}

// Process descifra y extrae el PKCS12, escribe los archivos derivados y clasifica el
// certificado como activo o vencido. Si falla y existía material de un proceso anterior,
// ese material y el estado se conservan y el error queda en LastError; sin material previo
// el estado pasa a error. Nunca queda activo con contraseña incorrecta.
//
// Cada proceso escribe en un directorio de versión nuevo; el material vigente cambia recién
// cuando se persisten las rutas nuevas del certificado.
func (s *Store) Process(ctx context.Context, businessID, certID string) (*entity.Certificate, error) {
	cert, err := s.get(ctx, businessID, certID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(cert.ID)
	defer s.locks.Unlock(cert.ID)

	log := s.log.With().Str("business_id", cert.BusinessID).Str("cert_id", cert.ID).Logger()

	var dir string
	mat, err := s.extract(ctx, cert)
	if err == nil {
		dir, err = s.writeMaterial(cert, mat)
	}
	if err != nil {
		return cert, s.recordFailure(ctx, cert, err, log)
	}

	var prevDir string
	if cert.HasMaterial() {
		prevDir = filepath.Dir(cert.CertPath)
	}
	now := s.now()
	notBefore, notAfter := mat.Leaf.NotBefore, mat.Leaf.NotAfter
	cert.SubjectCN = mat.Leaf.Subject.CommonName
	cert.IssuerCN = mat.Leaf.Issuer.CommonName
	cert.Serial = mat.Leaf.SerialNumber.Text(16)
	cert.NotBefore = &notBefore
	cert.NotAfter = &notAfter
	cert.CertPath = filepath.Join(dir, certFileName)
	cert.KeyPath = filepath.Join(dir, keyFileName)
	cert.State = classify(notAfter, now)
	cert.LastError = ""
	cert.ProcessedAt = &now
	cert.UpdatedAt = now

	if err := s.repo.Update(ctx, cert); err != nil {
		_ = s.fs.RemoveAll(dir)
		return nil, fmt.Errorf("actualizar certificado: %w", err)
	}
	s.cache.Remove(cert.ID)
	s.pruneVersions(cert, dir, prevDir, log)
	log.Info().Str("state", string(cert.State)).Time("not_after", notAfter).Msg("certificado procesado")
	return cert, nil
}

func (s *Store) extract(ctx context.Context, cert *entity.Certificate) (*Material, error) {
	p12, err := s.vault.Open(cert.EncryptedBlob)
	if err != nil {
		return nil, err
	}
	pass, err := s.vault.DecryptPassword(cert)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(ctx, p12, pass)
}

func (s *Store) recordFailure(ctx context.Context, cert *entity.Certificate, cause error, log zerolog.Logger) error {
	cert.LastError = cause.Error()
	cert.UpdatedAt = s.now()
	if !cert.HasMaterial() {
		cert.State = entity.CertError
	}
	if err := s.repo.Update(ctx, cert); err != nil {
		log.Error().Err(err).Msg("no se pudo registrar el error del certificado")
	}
	log.Warn().Err(cause).Str("state", string(cert.State)).Msg("falló el proceso del certificado")
	if domain.IsCrypto(cause) {
		return cause
	}
	return domain.NewCryptoError("procesar certificado", cause)
}

// writeMaterial escribe certificado y clave en un directorio de versión nuevo y devuelve su
// ruta. Ante cualquier falla el directorio se elimina y el material vigente queda intacto.
func (s *Store) writeMaterial(cert *entity.Certificate, mat *Material) (string, error) {
	version := s.now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
	dir := filepath.Join(s.certDir(cert), version)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("crear directorio: %w", err)
	}
	if err := writeFile(s.fs, filepath.Join(dir, certFileName), mat.CertPEM, 0o644); err != nil {
		_ = s.fs.RemoveAll(dir)
		return "", fmt.Errorf("escribir certificado: %w", err)
	}
	if err := writeFile(s.fs, filepath.Join(dir, keyFileName), mat.KeyPEM, 0o600); err != nil {
		_ = s.fs.RemoveAll(dir)
		return "", fmt.Errorf("escribir clave: %w", err)
	}
	return dir, nil
}

func writeFile(fs afero.Fs, name string, data []byte, perm os.FileMode) error {
	if err := afero.WriteFile(fs, name, data, perm); err != nil {
		return err
	}
	return fs.Chmod(name, perm)
}

// pruneVersions borra los directorios de versión salvo el actual y el anterior. El anterior
// se conserva para las firmas que ya leyeron las rutas viejas.
func (s *Store) pruneVersions(cert *entity.Certificate, current, previous string, log zerolog.Logger) {
	root := s.certDir(cert)
	entries, err := afero.ReadDir(s.fs, root)
	if err != nil {
		log.Warn().Err(err).Msg("no se pudieron listar versiones del certificado")
		return
	}
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		if !e.IsDir() || path == current || path == previous {
			continue
		}
		if err := s.fs.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("no se pudo borrar una versión anterior")
		}
	}
}

// ResolveActive devuelve el certificado predeterminado si está activo, si no cualquier otro
// activo de la empresa. Sin certificado usable devuelve CryptoError.
func (s *Store) ResolveActive(ctx context.Context, businessID string) (*entity.Certificate, error) {
	certs, err := s.repo.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("listar certificados: %w", err)
	}
	now := s.now()
	var fallback *entity.Certificate
	for _, c := range certs {
		if !c.Usable(now) {
			continue
		}
		if c.IsDefault {
			return c, nil
		}
		if fallback == nil {
			fallback = c
		}
	}
	if fallback == nil {
		return nil, domain.NewCryptoError("resolver certificado", domain.ErrNoActiveCertificate)
	}
	return fallback, nil
}

// LoadKeyPair carga el par certificado/clave de los archivos derivados.
func (s *Store) LoadKeyPair(_ context.Context, cert *entity.Certificate) (tls.Certificate, error) {
	if !cert.Usable(s.now()) {
		return tls.Certificate{}, domain.NewCryptoError("cargar certificado", fmt.Errorf("certificado %s en estado %s", cert.ID, cert.State))
	}

	s.locks.RLock(cert.ID)
	defer s.locks.RUnlock(cert.ID)

	if v, err := s.cache.Get(cert.ID); err == nil {
		return v.(tls.Certificate), nil
	}
	kp, err := s.readKeyPair(cert)
	if err != nil {
		return tls.Certificate{}, err
	}
	_ = s.cache.Set(cert.ID, kp)
	return kp, nil
}

// KeyPairFor resuelve el certificado activo de la empresa y carga su par.
func (s *Store) KeyPairFor(ctx context.Context, businessID string) (tls.Certificate, error) {
	cert, err := s.ResolveActive(ctx, businessID)
	if err != nil {
		return tls.Certificate{}, err
	}
	return s.LoadKeyPair(ctx, cert)
}

func (s *Store) readKeyPair(cert *entity.Certificate) (tls.Certificate, error) {
	certPEM, err := afero.ReadFile(s.fs, cert.CertPath)
	if err != nil {
		return tls.Certificate{}, domain.NewCryptoError("leer certificado", err)
	}
	keyPEM, err := afero.ReadFile(s.fs, cert.KeyPath)
	if err != nil {
		return tls.Certificate{}, domain.NewCryptoError("leer clave", err)
	}
	kp, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, domain.NewCryptoError("par certificado/clave", err)
	}
	if kp.Leaf == nil {
		leaf, err := x509.ParseCertificate(kp.Certificate[0])
		if err != nil {
			return tls.Certificate{}, domain.NewCryptoError("leer certificado", err)
		}
		kp.Leaf = leaf
	}
	return kp, nil
}

// IntegrityReport diagnóstico de un certificado.
type IntegrityReport struct {
	CertificateID   string
	State           entity.CertificateState
	FilesPresent    bool
	KeyMatches      bool
	NotAfter        *time.Time
	DaysUntilExpiry int
	LastError       string
	Problems        []string
}

// VerifyIntegrity revisa archivos derivados, correspondencia certificado/clave y vencimiento.
func (s *Store) VerifyIntegrity(ctx context.Context, businessID, certID string) (*IntegrityReport, error) {
	cert, err := s.get(ctx, businessID, certID)
	if err != nil {
		return nil, err
	}
	s.locks.RLock(cert.ID)
	defer s.locks.RUnlock(cert.ID)

	rep := &IntegrityReport{CertificateID: cert.ID, State: cert.State, NotAfter: cert.NotAfter, LastError: cert.LastError}
	if !cert.HasMaterial() {
		rep.Problems = append(rep.Problems, "el certificado no fue procesado")
		return rep, nil
	}
	certOK, _ := afero.Exists(s.fs, cert.CertPath)
	keyOK, _ := afero.Exists(s.fs, cert.KeyPath)
	rep.FilesPresent = certOK && keyOK
	if !rep.FilesPresent {
		rep.Problems = append(rep.Problems, "faltan archivos derivados")
	} else if _, err := s.readKeyPair(cert); err != nil {
		rep.Problems = append(rep.Problems, err.Error())
	} else {
		rep.KeyMatches = true
	}

	rep.DaysUntilExpiry = int(cert.NotAfter.Sub(s.now()).Hours() / 24)
	if rep.DaysUntilExpiry < 0 {
		rep.Problems = append(rep.Problems, "certificado vencido")
	} else if rep.DaysUntilExpiry < 30 {
		rep.Problems = append(rep.Problems, fmt.Sprintf("vence en %d días", rep.DaysUntilExpiry))
	}
	return rep, nil
}

// SetDefault marca el certificado como predeterminado de su empresa.
func (s *Store) SetDefault(ctx context.Context, businessID, certID string) error {
	cert, err := s.get(ctx, businessID, certID)
	if err != nil {
		return err
	}
	if cert.State != entity.CertActive {
		return domain.NewStateError("certificado", certID, "solo un certificado activo puede ser predeterminado")
	}
	return s.repo.SetDefault(ctx, businessID, certID)
}

// SweepExpired pasa a vencido los certificados activos cuya fecha de vencimiento ya pasó.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	certs, err := s.repo.ListActiveExpiredBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listar certificados vencidos: %w", err)
	}
	n := 0
	for _, c := range certs {
		s.locks.Lock(c.ID)
		c.State = entity.CertExpired
		c.UpdatedAt = now
		err := s.repo.Update(ctx, c)
		s.cache.Remove(c.ID)
		s.locks.Unlock(c.ID)
		if err != nil {
			return n, fmt.Errorf("marcar vencido %s: %w", c.ID, err)
		}
		s.log.Warn().Str("business_id", c.BusinessID).Str("cert_id", c.ID).Msg("certificado vencido")
		n++
	}
	return n, nil
}

func (s *Store) get(ctx context.Context, businessID, certID string) (*entity.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, certID)
	if err != nil {
		return nil, fmt.Errorf("obtener certificado: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("certificado %s: %w", certID, domain.ErrNotFound)
	}
	if businessID != "" && cert.BusinessID != businessID {
		return nil, domain.ErrForbidden
	}
	return cert, nil
}

func (s *Store) certDir(cert *entity.Certificate) string {
	return filepath.Join(s.dir, cert.BusinessID, cert.ID)
}

func classify(notAfter, now time.Time) entity.CertificateState {
	if now.Before(notAfter) {
		return entity.CertActive
	}
	return entity.CertExpired
}
