package certstore_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	"github.com/jhoicas/sifen-api/internal/infrastructure/certstore"
)

const testPassword = "clave123"

// ── Fake repositorio ──────────────────────────────────────────────────────────

type memCertRepo struct {
	mu    sync.Mutex
	certs map[string]entity.Certificate
}

func newMemCertRepo() *memCertRepo {
	return &memCertRepo{certs: make(map[string]entity.Certificate)}
}

func (r *memCertRepo) Create(_ context.Context, c *entity.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certs[c.ID] = *c
	return nil
}

func (r *memCertRepo) GetByID(_ context.Context, id string) (*entity.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCertRepo) ListByBusiness(_ context.Context, businessID string) ([]*entity.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Certificate
	for _, c := range r.certs {
		if c.BusinessID == businessID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memCertRepo) Update(_ context.Context, c *entity.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certs[c.ID] = *c
	return nil
}

func (r *memCertRepo) SetDefault(_ context.Context, businessID, certID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.certs {
		if c.BusinessID == businessID {
			c.IsDefault = id == certID
			r.certs[id] = c
		}
	}
	return nil
}

func (r *memCertRepo) ListActiveExpiredBefore(_ context.Context, t time.Time) ([]*entity.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Certificate
	for _, c := range r.certs {
		if c.State == entity.CertActive && c.NotAfter != nil && c.NotAfter.Before(t) {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// failingFs falla la escritura de los archivos cuyo nombre coincide con fail.
type failingFs struct {
	afero.Fs
	fail string
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.fail != "" && filepath.Base(name) == f.fail {
		return nil, errors.New("disco lleno")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

type fixture struct {
	store *certstore.Store
	repo  *memCertRepo
	vault *certstore.Vault
	fs    *failingFs
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vault, err := certstore.NewVault(make([]byte, 32))
	require.NoError(t, err)
	f := &fixture{
		repo:  newMemCertRepo(),
		vault: vault,
		fs:    &failingFs{Fs: afero.NewMemMapFs()},
		now:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store = certstore.NewStore(f.repo, vault, f.fs, "/certs", zerolog.Nop(),
		certstore.WithClock(func() time.Time { return f.now }))
	return f
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func (f *fixture) upload(t *testing.T, file, password string) *entity.Certificate {
	t.Helper()
	cert, err := f.store.Upload(context.Background(), certstore.UploadInput{
		BusinessID: "biz-1",
		Name:       file,
		P12:        readFixture(t, file),
		Password:   password,
	})
	require.NoError(t, err)
	f.now = f.now.Add(time.Second)
	return cert
}

// ── Vault ─────────────────────────────────────────────────────────────────────

func TestVault_RoundTrip(t *testing.T) {
	v, err := certstore.NewVault(make([]byte, 32))
	require.NoError(t, err)

	sealed, err := v.Seal([]byte("secreto"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secreto")

	plain, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secreto", string(plain))

	sealed[len(sealed)-1] ^= 0xFF
	_, err = v.Open(sealed)
	assert.True(t, domain.IsCrypto(err))

	_, err = certstore.NewVault([]byte("corta"))
	assert.Error(t, err)
}

func TestVault_DecryptPassword(t *testing.T) {
	v, err := certstore.NewVault(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := v.Seal([]byte(testPassword))
	require.NoError(t, err)

	pass, err := v.DecryptPassword(&entity.Certificate{EncryptedPassword: sealed})
	require.NoError(t, err)
	assert.Equal(t, testPassword, pass)

	_, err = v.DecryptPassword(&entity.Certificate{})
	assert.True(t, domain.IsCrypto(err))
}

// ── Extractores ───────────────────────────────────────────────────────────────

func TestNativeExtractor(t *testing.T) {
	mat, err := certstore.NativeExtractor{}.Extract(context.Background(), readFixture(t, "vigente.p12"), testPassword)
	require.NoError(t, err)
	assert.Equal(t, "EMPRESA DE PRUEBA S.A.", mat.Leaf.Subject.CommonName)
	assert.Contains(t, string(mat.CertPEM), "BEGIN CERTIFICATE")
	assert.Contains(t, string(mat.KeyPEM), "BEGIN PRIVATE KEY")
}

func TestNativeExtractor_ContrasenaIncorrecta(t *testing.T) {
	_, err := certstore.NativeExtractor{}.Extract(context.Background(), readFixture(t, "vigente.p12"), "mala")
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))
	assert.True(t, errors.Is(err, domain.ErrWrongPassphrase))

	_, err = certstore.NativeExtractor{}.Extract(context.Background(), []byte("no es pkcs12"), testPassword)
	assert.True(t, domain.IsCrypto(err))
}

func TestOpenSSLExtractor(t *testing.T) {
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl no disponible")
	}
	ex := certstore.OpenSSLExtractor{}
	mat, err := ex.Extract(context.Background(), readFixture(t, "vigente.p12"), testPassword)
	require.NoError(t, err)
	assert.Equal(t, "EMPRESA DE PRUEBA S.A.", mat.Leaf.Subject.CommonName)

	_, err = ex.Extract(context.Background(), readFixture(t, "vigente.p12"), "mala")
	assert.True(t, errors.Is(err, domain.ErrWrongPassphrase))
}

// ── Store ─────────────────────────────────────────────────────────────────────

func TestStore_ProcesaCertificadoVigente(t *testing.T) {
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", testPassword)
	assert.Equal(t, entity.CertPending, up.State)
	assert.True(t, up.IsDefault)

	cert, err := f.store.Process(context.Background(), "biz-1", up.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CertActive, cert.State)
	assert.Equal(t, "EMPRESA DE PRUEBA S.A.", cert.SubjectCN)
	require.NotNil(t, cert.NotAfter)
	assert.Equal(t, 2125, cert.NotAfter.Year())

	info, err := f.fs.Stat(cert.KeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	exists, _ := afero.Exists(f.fs, cert.CertPath)
	assert.True(t, exists)

	kp, err := f.store.LoadKeyPair(context.Background(), cert)
	require.NoError(t, err)
	require.NotNil(t, kp.Leaf)
	assert.Equal(t, "EMPRESA DE PRUEBA S.A.", kp.Leaf.Subject.CommonName)
}

func TestStore_CertificadoVencido(t *testing.T) {
	f := newFixture(t)
	up := f.upload(t, "vencido.p12", testPassword)

	cert, err := f.store.Process(context.Background(), "biz-1", up.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CertExpired, cert.State)

	_, err = f.store.LoadKeyPair(context.Background(), cert)
	assert.True(t, domain.IsCrypto(err))
	_, err = f.store.ResolveActive(context.Background(), "biz-1")
	assert.True(t, errors.Is(err, domain.ErrNoActiveCertificate))
}

func TestStore_ContrasenaIncorrectaSinMaterialPrevio(t *testing.T) {
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", "mala")

	_, err := f.store.Process(context.Background(), "biz-1", up.ID)
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))
	assert.True(t, errors.Is(err, domain.ErrWrongPassphrase))

	stored, _ := f.repo.GetByID(context.Background(), up.ID)
	assert.Equal(t, entity.CertError, stored.State)
	assert.NotEmpty(t, stored.LastError)
}

func TestStore_RotacionFallidaConservaMaterial(t *testing.T) {
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", testPassword)
	cert, err := f.store.Process(context.Background(), "biz-1", up.ID)
	require.NoError(t, err)
	before, err := afero.ReadFile(f.fs, cert.KeyPath)
	require.NoError(t, err)

	// Nueva contraseña errónea para el mismo certificado.
	badPass, err := f.vault.Seal([]byte("mala"))
	require.NoError(t, err)
	cert.EncryptedPassword = badPass
	require.NoError(t, f.repo.Update(context.Background(), cert))

	_, err = f.store.Process(context.Background(), "biz-1", up.ID)
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))

	stored, _ := f.repo.GetByID(context.Background(), up.ID)
	assert.Equal(t, entity.CertActive, stored.State)
	assert.Contains(t, stored.LastError, "contraseña")

	after, err := afero.ReadFile(f.fs, stored.KeyPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.store.LoadKeyPair(context.Background(), stored)
	assert.NoError(t, err)
}

func TestStore_RotacionConEscrituraFallidaConservaPar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", testPassword)
	cert, err := f.store.Process(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	certDir := filepath.Dir(filepath.Dir(cert.CertPath))

	// Rotación a otro PKCS12 con la escritura de la clave fallando.
	blob, err := f.vault.Seal(readFixture(t, "vencido.p12"))
	require.NoError(t, err)
	cert.EncryptedBlob = blob
	require.NoError(t, f.repo.Update(ctx, cert))
	f.fs.fail = "key.pem"

	_, err = f.store.Process(ctx, "biz-1", up.ID)
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))

	stored, _ := f.repo.GetByID(ctx, up.ID)
	assert.Equal(t, entity.CertActive, stored.State)
	assert.Equal(t, cert.CertPath, stored.CertPath)
	assert.Equal(t, cert.KeyPath, stored.KeyPath)
	assert.Contains(t, stored.LastError, "disco lleno")

	rep, err := f.store.VerifyIntegrity(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	assert.True(t, rep.KeyMatches, "el par vigente sigue correspondiendo")
	versions, err := afero.ReadDir(f.fs, certDir)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "la versión incompleta se elimina")

	f.fs.fail = ""
	rotated, err := f.store.Process(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CertExpired, rotated.State)
	assert.NotEqual(t, cert.CertPath, rotated.CertPath)
}

func TestStore_RotacionConservaVersionAnterior(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", testPassword)

	var paths []string
	for i := 0; i < 3; i++ {
		cert, err := f.store.Process(ctx, "biz-1", up.ID)
		require.NoError(t, err)
		paths = append(paths, cert.KeyPath)
		f.now = f.now.Add(time.Second)
	}

	versions, err := afero.ReadDir(f.fs, filepath.Dir(filepath.Dir(paths[2])))
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	for _, p := range paths[1:] {
		exists, _ := afero.Exists(f.fs, p)
		assert.True(t, exists, p)
	}
	exists, _ := afero.Exists(f.fs, paths[0])
	assert.False(t, exists)
}

func TestStore_ResolveActivePrefierePredeterminado(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.ResolveActive(ctx, "biz-1")
	require.Error(t, err)
	assert.True(t, domain.IsCrypto(err))

	first := f.upload(t, "vigente.p12", testPassword)
	second := f.upload(t, "vigente.p12", testPassword)
	assert.False(t, second.IsDefault)
	_, err = f.store.Process(ctx, "biz-1", first.ID)
	require.NoError(t, err)
	_, err = f.store.Process(ctx, "biz-1", second.ID)
	require.NoError(t, err)

	got, err := f.store.ResolveActive(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	require.NoError(t, f.store.SetDefault(ctx, "biz-1", second.ID))
	got, err = f.store.ResolveActive(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	kp, err := f.store.KeyPairFor(ctx, "biz-1")
	require.NoError(t, err)
	assert.NotEmpty(t, kp.Certificate)
}

func TestStore_OtraEmpresaNoAccede(t *testing.T) {
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", testPassword)
	_, err := f.store.Process(context.Background(), "biz-2", up.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.store.Process(context.Background(), "biz-1", "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SweepExpired(t *testing.T) {
	f := newFixture(t)
	up := f.upload(t, "vigente.p12", testPassword)
	cert, err := f.store.Process(context.Background(), "biz-1", up.ID)
	require.NoError(t, err)

	n, err := f.store.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = cert.NotAfter.Add(time.Hour)
	n, err = f.store.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := f.repo.GetByID(context.Background(), up.ID)
	assert.Equal(t, entity.CertExpired, stored.State)
}

func TestStore_VerifyIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "vigente.p12", testPassword)

	rep, err := f.store.VerifyIntegrity(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	assert.False(t, rep.FilesPresent)
	assert.NotEmpty(t, rep.Problems)

	cert, err := f.store.Process(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	rep, err = f.store.VerifyIntegrity(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	assert.True(t, rep.FilesPresent)
	assert.True(t, rep.KeyMatches)
	assert.Empty(t, rep.Problems)
	assert.Greater(t, rep.DaysUntilExpiry, 30)

	require.NoError(t, f.fs.Remove(cert.KeyPath))
	rep, err = f.store.VerifyIntegrity(ctx, "biz-1", up.ID)
	require.NoError(t, err)
	assert.False(t, rep.FilesPresent)
	assert.Contains(t, rep.Problems, "faltan archivos derivados")
}
