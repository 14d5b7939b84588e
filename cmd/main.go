package main

import (
	"os"

	"pixeltrivia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
