// Package main is the entry point for the mimicetl CLI.
package main

import (
	"os"

	"github.com/na399/MIMIC/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
