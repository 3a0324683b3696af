package main

import (
	"os"

	"github.com/RezaEskandarii/gomq/cmd/gomq/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
