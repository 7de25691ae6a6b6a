// Package main provides the entry point for the amanindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanindex/cmd/amanindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
