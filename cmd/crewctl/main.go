// Package main is the entry point for the crewctl CLI.
package main

import (
	"os"

	"github.com/helmcode/crew-bus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
