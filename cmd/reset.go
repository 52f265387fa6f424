package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a session from every tier",
	Long: `Clear the session's ledger, cached state and version from memory, the
local store and the server, and drop its cached commit-graph layout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			if err := rt.manager.Reset(ctx, id); err != nil {
				return fmt.Errorf("reset of %s was incomplete: %w", id, err)
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Session %s reset", id))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
