package main

import (
	"os"

	"github.com/lumostime/lumos-relay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
