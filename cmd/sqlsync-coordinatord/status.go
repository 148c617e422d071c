package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/orbitinghail/sqlsync/internal/cli"
)

// newStatusCommand hits a running daemon's /healthz endpoint and prints the
// result through the same --format json|text convention as the client CLI.
func newStatusCommand(opts *rootOptions) *cobra.Command {
	var httpAddr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report a running coordinator's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &cli.OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			client := &http.Client{Timeout: timeout}
			resp, err := client.Get(fmt.Sprintf("http://%s/healthz", httpAddr))
			if err != nil {
				return cli.WrapExitError(cli.ExitFailure, "status check failed", err)
			}
			defer resp.Body.Close()

			var status healthStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return cli.WrapExitError(cli.ExitFailure, "status check failed", err)
			}
			return formatter.Success(status)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "127.0.0.1:7702", "coordinator status endpoint address")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "request timeout")
	return cmd
}
