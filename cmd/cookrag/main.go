// Package main provides the entry point for the cookrag CLI.
package main

import (
	"os"

	"github.com/tastelab/cookrag/cmd/cookrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
