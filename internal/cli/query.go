package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/orbitinghail/sqlsync/internal/syncproto"
)

// NewQueryCommand runs a read-only SQL statement against the document in
// opts.Dir.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only query against the local sqlsync document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlText := args[0]
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

			rows, qerr := doc.Query(ctx, sqlText)
			if qerr != nil {
				cancel()
				<-done
				return WrapExitError(ExitFailure, "query failed", qerr)
			}
			defer rows.Close()

			cols, cerr := rows.Columns()
			if cerr != nil {
				cancel()
				<-done
				return WrapExitError(ExitFailure, "query failed", cerr)
			}

			var result []map[string]any
			for rows.Next() {
				vals := make([]any, len(cols))
				ptrs := make([]any, len(cols))
				for i := range vals {
					ptrs[i] = &vals[i]
				}
				if serr := rows.Scan(ptrs...); serr != nil {
					cancel()
					<-done
					return WrapExitError(ExitFailure, "query failed", serr)
				}
				row := make(map[string]any, len(cols))
				for i, c := range cols {
					row[c] = vals[i]
				}
				result = append(result, row)
			}

			cancel()
			<-done
			return formatter.Success(result)
		},
	}
	return cmd
}
