package main

import (
	"os"

	"github.com/harun/docsess/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
