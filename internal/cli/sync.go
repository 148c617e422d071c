package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/syncproto"
)

// NewSyncCommand connects the document in opts.Dir to a coordinator,
// pushes any locally queued mutations, pulls the latest storage, and waits
// briefly for the round trip to settle before disconnecting.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var coordinatorAddr string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the local sqlsync document with a coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if coordinatorAddr == "" {
				return NewExitError(ExitCommandError, "--coordinator is required")
			}
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			meta, err := loadWorkdirMeta(opts.Dir)
			if err != nil {
				return WrapExitError(ExitCommandError, "open document failed", err)
			}
			docID, err := journal.ParseID(meta.DocumentID)
			if err != nil {
				return WrapExitError(ExitCommandError, "open document failed", err)
			}
			timelineID, err := journal.ParseID(meta.TimelineID)
			if err != nil {
				return WrapExitError(ExitCommandError, "open document failed", err)
			}

			link := syncproto.NewLink(dialAndHandshake(docID, timelineID, coordinatorAddr))
			doc, engine, err := openClientDocument(opts.Dir, link)
			if err != nil {
				return WrapExitError(ExitCommandError, "open document failed", err)
			}
			defer engine.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- doc.Run(ctx) }()
			go func() { _ = link.Run(ctx) }()

			for link.State() != syncproto.Connected {
				select {
				case <-ctx.Done():
					return WrapExitError(ExitFailure, "sync failed", fmt.Errorf("never connected to %s", coordinatorAddr))
				case <-time.After(20 * time.Millisecond):
				}
			}

			if err := doc.Sync(ctx); err != nil {
				cancel()
				<-done
				return WrapExitError(ExitFailure, "sync failed", err)
			}

			<-ctx.Done()
			<-done

			return formatter.Success(map[string]any{"coordinator": coordinatorAddr, "status": "synced"})
		},
	}

	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", "", "coordinator address (host:port)")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to stay connected waiting for the round trip to settle")
	return cmd
}

// dialAndHandshake builds a syncproto.Dialer that opens a TCP connection to
// addr and immediately writes the Open frame identifying docID/timelineID,
// before the connection is handed off to the Link's own framer — the
// coordinator daemon reads exactly this one frame itself to route the
// connection to the right document (cmd/sqlsync-coordinatord).
func dialAndHandshake(docID, timelineID journal.ID, addr string) syncproto.Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		framer := syncproto.NewFramer(conn)
		if err := framer.WriteMessage(syncproto.Open{DocumentID: docID, TimelineID: timelineID}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("handshake with %s: %w", addr, err)
		}
		return conn, nil
	}
}
