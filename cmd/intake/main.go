package main

import (
	"os"

	"intake/cmd/intake/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
