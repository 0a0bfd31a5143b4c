package main

import (
	"os"

	"github.com/spigell/pocket-ats/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
