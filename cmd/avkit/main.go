// Package main is the entry point for the avkit command line tool.
package main

import (
	"os"

	"github.com/jmylchreest/avkit/cmd/avkit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
