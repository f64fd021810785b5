// Package main provides the entry point for the tark CLI.
package main

import (
	"fmt"
	"os"

	"tark/cmd/tark/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
