package main

import (
	"fmt"
	"os"

	"github.com/spherical/pdf-flattener/cmd/pdf-flattener/commands"
)

var (
	version = "0.1.0"
	commit  = "none"
)

func main() {
	commands.SetVersion(version, commit)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
