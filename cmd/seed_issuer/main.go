// seed_issuer registra el emisor de una empresa y sus timbrados a partir de un XML
// exportado por el sistema de gestión (UTF-8 o ISO-8859-1).
//
// Uso: go run ./cmd/seed_issuer [ruta/emisor.xml]
// Por defecto busca emisor.xml en el directorio actual.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jhoicas/sifen-api/internal/infrastructure/postgres"
	"github.com/jhoicas/sifen-api/pkg/config"
)

func main() {
	xmlPath := "emisor.xml"
	if len(os.Args) > 1 {
		xmlPath = os.Args[1]
	}
	f, err := os.Open(xmlPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir XML: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	seed, err := parseIssuerXML(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer emisor: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuración: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Conexión: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migraciones: %v\n", err)
		os.Exit(1)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Transacción: %v\n", err)
		os.Exit(1)
	}
	defer tx.Rollback(ctx)

	if err := postgres.NewIssuerRepository(tx).Upsert(ctx, seed.Issuer); err != nil {
		fmt.Fprintf(os.Stderr, "Emisor: %v\n", err)
		os.Exit(1)
	}
	timbrados := postgres.NewTimbradoRepository(tx)
	for _, t := range seed.Timbrados {
		if err := timbrados.Upsert(ctx, t); err != nil {
			fmt.Fprintf(os.Stderr, "Timbrado %s: %v\n", t.Number, err)
			os.Exit(1)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Commit: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Emisor %s-%d (%s): %d timbrados registrados\n",
		seed.Issuer.RUC, seed.Issuer.DV, seed.Issuer.BusinessID, len(seed.Timbrados))
}
