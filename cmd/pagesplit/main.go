package main

import (
	"os"

	"github.com/pagesplit/pagesplit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
