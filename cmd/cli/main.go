// Package main is the entry point for the tenon CLI.
// The CLI is the candidate's terminal tool for working through a simulation.
package main

import (
	"os"

	"tenon/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
