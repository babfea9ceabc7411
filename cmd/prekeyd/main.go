package main

import (
	"os"

	"prekeyd/cmd/prekeyd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
