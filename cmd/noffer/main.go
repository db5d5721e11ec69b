package main

import (
	"os"

	"github.com/eldtechnologies/noffer/cmd/noffer/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
