package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/orbitinghail/sqlsync/internal/syncproto"
)

// NewMutateCommand submits one mutation to the document in opts.Dir,
// applying it immediately and leaving it queued in the timeline for the
// next sync.
func NewMutateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mutate <tag> [json-args]",
		Short: "Apply a mutation to the local sqlsync document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := args[0]
			var argsBytes []byte
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return NewExitError(ExitCommandError, "json-args must be valid JSON")
				}
				argsBytes = []byte(args[1])
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			link := syncproto.NewLink(nil)
			doc, engine, err := openClientDocument(opts.Dir, link)
			if err != nil {
				return WrapExitError(ExitCommandError, "open document failed", err)
			}
			defer engine.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- doc.Run(ctx) }()

			l, merr := doc.Mutate(ctx, tag, argsBytes)
			cancel()
			<-done

			if merr != nil {
				return WrapExitError(ExitFailure, "mutation failed", merr)
			}
			return formatter.Success(map[string]any{"lsn": l, "tag": tag})
		},
	}
	return cmd
}
