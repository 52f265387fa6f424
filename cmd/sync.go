package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace a practice session's ledger with the server's state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			snap, err := rt.manager.SyncFromServer(ctx, id)
			if errors.Is(err, internal.ErrNoSessionID) {
				return fmt.Errorf("sync needs a practice session: pass --session")
			}
			if err != nil {
				return fmt.Errorf("failed to sync %s: %w", id, err)
			}
			printSnapshotSummary(cmd.OutOrStdout(), snap)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
