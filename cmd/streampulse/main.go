// Package main is the entry point for the streampulse CLI.
package main

import (
	"os"

	"github.com/streampulse/streampulse/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
