package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/sifen-api/internal/domain"
	"github.com/jhoicas/sifen-api/internal/infrastructure/certstore"
)

func newCertCheckCmd() *cobra.Command {
	var (
		passEnv string
		openssl string
		legacy  bool
	)
	c := &cobra.Command{
		Use:   "cert-check <archivo.p12>",
		Short: "Verifica que un PKCS#12 abra con su contraseña y muestra su vigencia",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := args[0]

			fmt.Fprintln(out, "DIAGNÓSTICO DE CERTIFICADO SIFEN")
			fmt.Fprintln(out, "--------------------------------")
			fmt.Fprintf(out, "Archivo: %s\n", path)

			p12, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("no se puede abrir el archivo: %w", err)
			}
			fmt.Fprintf(out, "Tamaño: %d bytes\n", len(p12))

			password, ok := os.LookupEnv(passEnv)
			if !ok {
				return fmt.Errorf("la variable %s no está definida", passEnv)
			}

			var ex certstore.Extractor = certstore.NativeExtractor{}
			if openssl != "" {
				ex = certstore.OpenSSLExtractor{Path: openssl, Legacy: legacy}
			}
			mat, err := ex.Extract(cmd.Context(), p12, password)
			if err != nil {
				if errors.Is(err, domain.ErrWrongPassphrase) {
					return fmt.Errorf("contraseña incorrecta (leída de %s)", passEnv)
				}
				return err
			}

			leaf := mat.Leaf
			fmt.Fprintf(out, "Titular:  %s\n", leaf.Subject.CommonName)
			if leaf.Subject.SerialNumber != "" {
				fmt.Fprintf(out, "Serie titular: %s\n", leaf.Subject.SerialNumber)
			}
			fmt.Fprintf(out, "Emisor:   %s\n", leaf.Issuer.CommonName)
			fmt.Fprintf(out, "Serie:    %s\n", leaf.SerialNumber.Text(16))
			fmt.Fprintf(out, "Vigencia: %s a %s\n", leaf.NotBefore.Format(time.DateOnly), leaf.NotAfter.Format(time.DateOnly))

			now := time.Now()
			switch {
			case now.After(leaf.NotAfter):
				return fmt.Errorf("certificado vencido el %s", leaf.NotAfter.Format(time.DateOnly))
			case now.Before(leaf.NotBefore):
				return fmt.Errorf("certificado aún no vigente")
			}
			fmt.Fprintln(out, "OK: certificado y contraseña correctos")
			return nil
		},
	}
	c.Flags().StringVar(&passEnv, "password-env", "SIFEN_CERT_PASS", "Variable de entorno con la contraseña")
	c.Flags().StringVar(&openssl, "openssl", "", "Usar el binario openssl indicado en lugar del extractor nativo")
	c.Flags().BoolVar(&legacy, "legacy", false, "Agregar -legacy a openssl (RC2 en OpenSSL 3)")
	return c
}
