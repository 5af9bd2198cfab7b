package main

import (
	"os"

	"vidscribe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
