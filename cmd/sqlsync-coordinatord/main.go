// Command sqlsync-coordinatord is the coordinator daemon: it accepts one
// internal/syncproto.Link per incoming connection, multiplexes links onto
// an internal/document.Arena keyed by document ID, and exposes a JSON
// status view of what it currently has open.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitinghail/sqlsync/internal/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "sqlsync-coordinatord",
		Short: "sqlsync-coordinatord - multi-document sync coordinator",
	}

	opts := &rootOptions{}
	root.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newStatusCommand(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

// rootOptions holds the daemon's global flags, parallel to internal/cli's
// RootOptions but scoped to this binary.
type rootOptions struct {
	Format string
}
