package sifen_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	appsifen "github.com/jhoicas/sifen-api/internal/application/sifen"
	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/domain/entity"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/internal/infrastructure/sifen/signer"
	"github.com/jhoicas/sifen-api/pkg/sifen"
)

const testBusiness = "biz-1"

// ── Repositorios en memoria ──────────────────────────────────────────────────

type memStore struct {
	mu         sync.Mutex
	docs       map[string]entity.ElectronicDocument
	byCDC      map[string]string
	batches    map[string]entity.Batch
	track      []entity.CdcTrackEntry
	collisions int // ReserveCDC devuelve ErrDuplicate estas veces
	txErr      error
	seq        int
}

func newMemStore() *memStore {
	return &memStore{
		docs:    map[string]entity.ElectronicDocument{},
		byCDC:   map[string]string{},
		batches: map[string]entity.Batch{},
	}
}

func (m *memStore) repos() appsifen.Repos {
	return appsifen.Repos{Documents: memDocs{m}, Batches: memBatches{m}, Track: memTrack{m}}
}

// RunSIFEN sin rollback: suficiente para los escenarios probados.
func (m *memStore) RunSIFEN(_ context.Context, fn func(r appsifen.Repos) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	return fn(m.repos())
}

func (m *memStore) doc(id string) entity.ElectronicDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

func (m *memStore) history(cdc string) []entity.CdcTrackEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.CdcTrackEntry
	for _, e := range m.track {
		if e.CDC == cdc {
			out = append(out, e)
		}
	}
	return out
}

type memDocs struct{ m *memStore }

func (r memDocs) Create(_ context.Context, doc *entity.ElectronicDocument) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.docs[doc.ID]; ok {
		return domain.ErrDuplicate
	}
	r.m.docs[doc.ID] = *doc
	return nil
}

func (r memDocs) GetByID(_ context.Context, id string) (*entity.ElectronicDocument, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r memDocs) GetByCDC(ctx context.Context, cdc string) (*entity.ElectronicDocument, error) {
	r.m.mu.Lock()
	id, ok := r.m.byCDC[cdc]
	r.m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r memDocs) ReserveCDC(_ context.Context, docID, cdc, securityCode string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.collisions > 0 {
		r.m.collisions--
		return domain.ErrDuplicate
	}
	d, ok := r.m.docs[docID]
	if !ok {
		return domain.ErrNotFound
	}
	if d.CDC != "" {
		return domain.ErrCDCAlreadyAssigned
	}
	if _, taken := r.m.byCDC[cdc]; taken {
		return domain.ErrDuplicate
	}
	d.CDC, d.SecurityCode = cdc, securityCode
	r.m.docs[docID] = d
	r.m.byCDC[cdc] = docID
	return nil
}

func (r memDocs) Update(_ context.Context, doc *entity.ElectronicDocument) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.docs[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	r.m.docs[doc.ID] = *doc
	return nil
}

type memBatches struct{ m *memStore }

func copyBatch(b entity.Batch) *entity.Batch {
	b.Members = append([]entity.BatchMember(nil), b.Members...)
	return &b
}

func (r memBatches) Create(_ context.Context, b *entity.Batch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.batches[b.ID] = *copyBatch(*b)
	return nil
}

func (r memBatches) GetByID(_ context.Context, id string) (*entity.Batch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.batches[id]
	if !ok {
		return nil, nil
	}
	return copyBatch(b), nil
}

func (r memBatches) Update(_ context.Context, b *entity.Batch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.batches[b.ID]; !ok {
		return domain.ErrNotFound
	}
	r.m.batches[b.ID] = *copyBatch(*b)
	return nil
}

func (r memBatches) ListOpen(_ context.Context, limit int) ([]*entity.Batch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*entity.Batch
	for _, b := range r.m.batches {
		if b.State == entity.LotReceived || b.State == entity.LotProcessing {
			out = append(out, copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTrack struct{ m *memStore }

func (r memTrack) Append(_ context.Context, e *entity.CdcTrackEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.seq++
	e.ID = fmt.Sprintf("trk-%d", r.m.seq)
	r.m.track = append(r.m.track, *e)
	return nil
}

func (r memTrack) ListByCDC(_ context.Context, cdc string) ([]*entity.CdcTrackEntry, error) {
	var out []*entity.CdcTrackEntry
	for _, e := range r.m.history(cdc) {
		e := e
		out = append(out, &e)
	}
	return out, nil
}

type memIssuers struct{ issuer *entity.Issuer }

func (r memIssuers) GetByBusinessID(_ context.Context, businessID string) (*entity.Issuer, error) {
	if r.issuer == nil || r.issuer.BusinessID != businessID {
		return nil, nil
	}
	return r.issuer, nil
}

type memTimbrados struct{ list []*entity.Timbrado }

func (r memTimbrados) GetActive(_ context.Context, businessID string, docType int, est, pos string) (*entity.Timbrado, error) {
	for _, t := range r.list {
		if t.BusinessID == businessID && t.DocType == docType && t.Establishment == est && t.PointOfSale == pos && t.IsActive {
			return t, nil
		}
	}
	return nil, nil
}

// ── Cliente SOAP falso ───────────────────────────────────────────────────────

type fakeClient struct {
	mu         sync.Mutex
	calls      map[string]int
	docResult  *infra.DocumentResult
	docErr     error
	receipt    *infra.LotReceipt
	lotResults []*infra.LotResult // se consumen en orden
	lotErr     error
	query      *infra.QueryResult
	event      *infra.EventResult
	ruc        *infra.RUCResult
	lastEvent  string
}

func newFakeClient() *fakeClient { return &fakeClient{calls: map[string]int{}} }

func (c *fakeClient) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *fakeClient) hit(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
}

func (c *fakeClient) SendDocument(_ context.Context, t infra.Target, _ string) (*infra.DocumentResult, error) {
	c.hit(infra.MethodRecepDE)
	if c.docErr != nil {
		return nil, c.docErr
	}
	r := *c.docResult
	r.CDC = t.CDC
	return &r, nil
}

func (c *fakeClient) SendLot(_ context.Context, _ infra.Target, zipBytes []byte) (*infra.LotReceipt, error) {
	c.hit(infra.MethodRecepLoteDE)
	if _, err := infra.ExtractLot(zipBytes); err != nil {
		return nil, err
	}
	return c.receipt, nil
}

func (c *fakeClient) QueryLot(_ context.Context, _ infra.Target, _ string) (*infra.LotResult, error) {
	c.hit(infra.MethodResultLote)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lotErr != nil {
		return nil, c.lotErr
	}
	if len(c.lotResults) == 0 {
		return nil, fmt.Errorf("sin respuesta configurada")
	}
	r := c.lotResults[0]
	c.lotResults = c.lotResults[1:]
	return r, nil
}

func (c *fakeClient) QueryDocument(_ context.Context, _ infra.Target, _ string) (*infra.QueryResult, error) {
	c.hit(infra.MethodConsDE)
	return c.query, nil
}

func (c *fakeClient) SendEvent(_ context.Context, _ infra.Target, signedEvent string) (*infra.EventResult, error) {
	c.hit(infra.MethodRecepEvento)
	c.mu.Lock()
	c.lastEvent = signedEvent
	c.mu.Unlock()
	return c.event, nil
}

func (c *fakeClient) QueryRUC(_ context.Context, _ infra.Target, ruc string) (*infra.RUCResult, error) {
	c.hit(infra.MethodConsRUC)
	r := *c.ruc
	r.RUC = ruc
	return &r, nil
}

// ── Certificado y artefactos ─────────────────────────────────────────────────

type fakeKeys struct {
	cert tls.Certificate
	err  error
}

func (k *fakeKeys) KeyPairFor(context.Context, string) (tls.Certificate, error) {
	return k.cert, k.err
}

func newTestCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "EMPRESA DE PRUEBA S.A."},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

type fakeArtifacts struct {
	mu    sync.Mutex
	names []string
}

func (a *fakeArtifacts) add(name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, name)
	return name, nil
}

func (a *fakeArtifacts) WriteXML(_ time.Time, cdc string, _ []byte) (string, error) {
	return a.add(cdc + ".xml")
}

func (a *fakeArtifacts) WriteSigned(_ time.Time, cdc string, _ []byte) (string, error) {
	return a.add(cdc + "-signed.xml")
}

func (a *fakeArtifacts) WriteQR(_ time.Time, cdc string, _ []byte) (string, error) {
	return a.add(cdc + "-qr.png")
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	svc       *appsifen.Service
	store     *memStore
	client    *fakeClient
	artifacts *fakeArtifacts
	keys      *fakeKeys
	now       time.Time
	codes     []string
	logs      *bytes.Buffer
}

func newFixture(t *testing.T, env string, opts ...appsifen.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		client:    newFakeClient(),
		artifacts: &fakeArtifacts{},
		keys:      &fakeKeys{cert: newTestCert(t)},
		now:       time.Date(2023, 5, 19, 11, 0, 0, 0, time.Local),
		logs:      &bytes.Buffer{},
	}
	issuer := &entity.Issuer{
		BusinessID:   testBusiness,
		RUC:          "80026598",
		DV:           0,
		Name:         "EMPRESA DE PRUEBA S.A.",
		TaxpayerType: sifen.TaxpayerLegal,
		ActivityCode: "46510",
		ActivityName: "Comercio al por mayor",
		Address:      "Av. Mariscal López",
		HouseNumber:  1234,
		DepartmentID: 1,
		Department:   "CAPITAL",
		CityID:       1,
		City:         "ASUNCION (DISTRITO)",
	}
	timbrados := memTimbrados{}
	for _, dt := range []sifen.DocumentType{sifen.DocInvoice, sifen.DocCreditNote} {
		timbrados.list = append(timbrados.list, &entity.Timbrado{
			ID: fmt.Sprintf("tim-%d", dt), BusinessID: testBusiness, Number: "12560693", DocType: int(dt),
			Establishment: "001", PointOfSale: "001", RangeFrom: 1, RangeTo: 1000,
			ValidFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local), IsActive: true,
		})
	}

	var client appsifen.ProtocolClient = f.client
	if env == infra.AppEnvDev {
		client = nil
	}
	base := []appsifen.Option{
		appsifen.WithClock(func() time.Time { return f.now }),
		appsifen.WithSecurityCodes(func() (string, error) {
			if len(f.codes) == 0 {
				return "123456789", nil
			}
			c := f.codes[0]
			f.codes = f.codes[1:]
			return c, nil
		}),
	}
	f.svc = appsifen.NewService(appsifen.Deps{
		Documents: memDocs{f.store},
		Batches:   memBatches{f.store},
		Track:     memTrack{f.store},
		Issuers:   memIssuers{issuer},
		Timbrados: timbrados,
		Tx:        f.store,
		Builder:   infra.NewXMLBuilderService(),
		Signer:    signer.NewDigitalSignatureService(),
		QR:        infra.NewQRFormatter(env, "1", "ABCD0000000000000000000000000000", ""),
		Keys:      f.keys,
		Client:    client,
		Artifacts: f.artifacts,
	}, appsifen.Config{AppEnv: env, MaxLotSize: 3, SystemName: "sifen-api"}, zerolog.New(f.logs), append(base, opts...)...)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newDraft(seq int64) *entity.ElectronicDocument {
	return &entity.ElectronicDocument{
		BusinessID:    testBusiness,
		DocType:       sifen.DocInvoice,
		Establishment: "001",
		PointOfSale:   "001",
		Sequence:      seq,
		Currency:      sifen.CurrencyPYG,
		EmissionDate:  time.Date(2023, 5, 19, 10, 30, 0, 0, time.Local),
		OperationType: 1,
		Receiver: entity.Receiver{
			IsTaxpayer: true, RUC: "80026598", DV: 0, Name: "CLIENTE S.A.",
			CountryCode: "PRY", OperationKind: 1,
		},
		Lines: []entity.DocumentLine{
			{ProductCode: "P-1", Description: "Notebook", Quantity: dec("1"), UnitPrice: dec("110000"), TaxClass: sifen.TaxIVA10},
			{ProductCode: "P-2", Description: "Libro", Quantity: dec("2"), UnitPrice: dec("10500"), TaxClass: sifen.TaxIVA5},
		},
	}
}

// signedDoc registra y prepara un DE; cada secuencia usa su propio código de seguridad.
func (f *fixture) signedDoc(t *testing.T, seq int64) *entity.ElectronicDocument {
	t.Helper()
	ctx := context.Background()
	doc, err := f.svc.CreateDocument(ctx, newDraft(seq))
	require.NoError(t, err)
	f.codes = append(f.codes, fmt.Sprintf("%09d", 100000000+seq))
	doc, err = f.svc.Prepare(ctx, testBusiness, doc.ID)
	require.NoError(t, err)
	require.Equal(t, entity.DocStatusSigned, doc.Status)
	return doc
}
