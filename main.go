package main

import (
	"os"

	"github.com/financescope/financescope/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
