// Command statekeep runs finite-state actors from machine specs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/statekeep/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
