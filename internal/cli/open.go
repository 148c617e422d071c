package cli

import (
	"github.com/spf13/cobra"
)

// NewOpenCommand creates a fresh sqlsync document working directory.
func NewOpenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <dir>",
		Short: "Create a new sqlsync document working directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			meta, err := initWorkdir(dir)
			if err != nil {
				return WrapExitError(ExitCommandError, "open failed", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(map[string]string{
				"dir":         dir,
				"document_id": meta.DocumentID,
				"timeline_id": meta.TimelineID,
			})
		},
	}
	return cmd
}
