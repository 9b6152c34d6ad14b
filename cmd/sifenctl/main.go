package main

import (
	"os"

	"github.com/jhoicas/sifen-api/cmd/sifenctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
