package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/parsergen/internal/sandbox"
)

// newWorkerCommand is the child side of the process sandbox. It reads
// JSON-RPC requests on stdin and must not write anything else to stdout.
func newWorkerCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:    "sandbox-worker",
		Short:  "Run parser routines for the process sandbox",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sandbox.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), global.logger)
		},
	}
}
