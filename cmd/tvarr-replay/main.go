// Package main is the entry point for the tvarr-replay application.
package main

import (
	"os"

	"github.com/jmylchreest/tvarr-replay/cmd/tvarr-replay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
