// Package main is the entry point for the botrt CLI.
package main

import (
	"os"

	"github.com/botrt/botrt/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
