// docforge - client for the docforge document conversion service.
package main

import (
	"os"

	"github.com/docforge/docforge/internal/cli"
	"github.com/docforge/docforge/internal/version"
)

func main() {
	cli.Version = version.Version
	cli.BuildTime = version.BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
