// Package bootstrap arma los componentes compartidos por cmd/api y cmd/worker:
// pool, repositorios, almacén de certificados, artefactos, cliente SOAP y orquestador.
package bootstrap

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"

	appsifen "github.com/jhoicas/sifen-api/internal/application/sifen"
	"github.com/jhoicas/sifen-api/internal/infrastructure/certstore"
	"github.com/jhoicas/sifen-api/internal/infrastructure/postgres"
	infra "github.com/jhoicas/sifen-api/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-api/internal/infrastructure/sifen/signer"
	"github.com/jhoicas/sifen-api/internal/infrastructure/storage"
	"github.com/jhoicas/sifen-api/pkg/config"
	"github.com/jhoicas/sifen-api/pkg/logger"
)

// Components dependencias ya conectadas.
type Components struct {
	Pool         *pgxpool.Pool
	Issuers      *postgres.IssuerRepo
	Certificates *certstore.Store
	Artifacts    *storage.ArtifactStore
	SIFEN        *appsifen.Service
}

// Close libera el pool.
func (c *Components) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// Build conecta a PostgreSQL, aplica migraciones y arma el orquestador.
// En dev no se construye cliente SOAP: el orquestador simula la SET.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Components, error) {
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	key := cfg.SIFEN.MasterKey
	if len(key) == 0 {
		if cfg.SIFEN.AppEnv != config.EnvDev {
			pool.Close()
			return nil, fmt.Errorf("SIFEN_MASTER_KEY es obligatorio fuera de dev")
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			pool.Close()
			return nil, fmt.Errorf("generar clave efímera: %w", err)
		}
		log.Warn().Msg("[DEV] SIFEN_MASTER_KEY vacío: clave efímera, los certificados subidos no sobreviven al reinicio")
	}
	vault, err := certstore.NewVault(key)
	if err != nil {
		pool.Close()
		return nil, err
	}

	fs := afero.NewOsFs()
	var storeOpts []certstore.Option
	if cfg.SIFEN.OpenSSLPath != "" {
		storeOpts = append(storeOpts, certstore.WithExtractor(certstore.OpenSSLExtractor{Path: cfg.SIFEN.OpenSSLPath}))
	}
	certs := certstore.NewStore(postgres.NewCertificateRepository(pool), vault, fs, cfg.SIFEN.CertDir,
		log.Component("certstore"), storeOpts...)
	artifacts := storage.NewArtifactStore(fs, cfg.SIFEN.ArtifactDir)

	var client appsifen.ProtocolClient
	if cfg.SIFEN.AppEnv != config.EnvDev {
		client = infra.NewSOAPClient(infra.ClientConfig{
			AppEnv:  cfg.SIFEN.AppEnv,
			BaseURL: cfg.SIFEN.BaseURL,
			Timeout: cfg.SIFEN.Timeout,
		}, certs, postgres.NewSoapTransactionRepository(pool), artifacts, log.Component("soap"))
	}

	issuers := postgres.NewIssuerRepository(pool)
	svc := appsifen.NewService(appsifen.Deps{
		Documents: postgres.NewDocumentRepository(pool),
		Batches:   postgres.NewBatchRepository(pool),
		Track:     postgres.NewTrackRepository(pool),
		Issuers:   issuers,
		Timbrados: postgres.NewTimbradoRepository(pool),
		Tx:        postgres.NewTxRunner(pool),
		Builder:   infra.NewXMLBuilderService(),
		Signer:    signer.NewDigitalSignatureService(),
		QR:        infra.NewQRFormatter(cfg.SIFEN.AppEnv, cfg.SIFEN.IDCSC, cfg.SIFEN.CSC, cfg.SIFEN.QRBaseURL),
		Keys:      certs,
		Client:    client,
		Artifacts: artifacts,
	}, appsifen.Config{
		AppEnv:              cfg.SIFEN.AppEnv,
		CheckDigitBase:      cfg.SIFEN.CheckDigitBase,
		MaxLotSize:          cfg.SIFEN.MaxLotSize,
		CancelWindowInvoice: cfg.SIFEN.CancelWindowInvoice,
		CancelWindowOther:   cfg.SIFEN.CancelWindowOther,
		SystemName:          cfg.SIFEN.SystemName,
		AsyncTimeout:        2 * cfg.SIFEN.Timeout,
	}, log.Zerolog())

	return &Components{Pool: pool, Issuers: issuers, Certificates: certs, Artifacts: artifacts, SIFEN: svc}, nil
}
