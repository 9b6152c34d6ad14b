package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhoicas/sifen-api/pkg/sifen"
)

func newDVCmd(base *int) *cobra.Command {
	return &cobra.Command{
		Use:   "dv <ruc>",
		Short: "Calcula el dígito verificador de un RUC, o lo valida si viene con guion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruc := sifen.NormalizeRUC(args[0])
			out := cmd.OutOrStdout()

			if strings.Contains(ruc, "-") {
				if err := sifen.ValidateRUC(ruc, *base); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s válido\n", ruc)
				return nil
			}

			dv, err := sifen.ComputeRUCCheckDigit(ruc, *base)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s-%d\n", ruc, dv)
			return nil
		},
	}
}
