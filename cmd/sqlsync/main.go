// Command sqlsync is the client CLI: open, mutate, query, and sync a local
// sqlsync document against a coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/orbitinghail/sqlsync/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
