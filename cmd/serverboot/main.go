// Command serverboot launches a game server core and loads its plugins.
package main

import (
	"fmt"
	"os"

	"github.com/goatkit/serverboot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
