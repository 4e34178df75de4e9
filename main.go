package main

import (
	"os"

	"github.com/matheuscscp/fleet-issuer/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
