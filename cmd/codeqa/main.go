// Package main provides the entry point for the codeqa CLI.
package main

import (
	"os"

	"github.com/codeqa/codeqa/cmd/codeqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
