package main

import (
	"os"

	"github.com/wonny/backlab/cmd/backlab/commands"
)

// main is the entry point for the backlab CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
