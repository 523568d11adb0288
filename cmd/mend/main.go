package main

import (
	"os"

	"github.com/pcastell/mend/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
