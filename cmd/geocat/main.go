// Command geocat is the geodata catalog and map document tool.
package main

import (
	"os"

	"geocat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
