// Package cmd contiene los subcomandos de sifenctl, la herramienta de diagnóstico
// para RUC, CDC y certificados PKCS#12.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jhoicas/sifen-api/pkg/sifen"
)

var version = "1.0.0"

// NewRootCmd arma el árbol de comandos. Cada llamada devuelve flags nuevos.
func NewRootCmd() *cobra.Command {
	var base int
	root := &cobra.Command{
		Use:   "sifenctl",
		Short: "Utilidades de diagnóstico SIFEN (RUC, CDC, certificados)",
		Long: `sifenctl ayuda a verificar datos antes de emitir documentos electrónicos.

Ejemplos:
  # Dígito verificador de un RUC
  sifenctl dv 80026598

  # Generar un CDC
  sifenctl cdc --type 1 --ruc 80026598 --dv 0 --est 001 --pos 001 --seq 1 --date 2023-05-19

  # Validar y descomponer un CDC
  sifenctl cdc parse 01800265980001001000000122023051911234567897

  # Verificar un .p12 (la contraseña se lee de la variable indicada)
  sifenctl cert-check firma.p12 --password-env SIFEN_CERT_PASS`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().IntVar(&base, "base", sifen.DefaultCheckDigitBase, "Base máxima del módulo 11")

	root.AddCommand(newDVCmd(&base), newCDCCmd(&base), newCertCheckCmd())
	return root
}

// Execute ejecuta sifenctl con os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
