package main

import (
	"os"

	"github.com/dshills/roadmap/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
