package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var openScript string

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a session and report where its ledger came from",
	Long: `Open a session. The ledger is taken from, in order of preference:
  • a replay of --script, when the script has a target state and nothing is stored yet
  • the local store
  • the server, for practice sessions with an id

Without any of these the session starts empty.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := loadScriptFlag(openScript)
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			snap, err := rt.manager.Open(ctx, id, internal.OpenOptions{Script: script})
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", id, err)
			}
			printSnapshotSummary(cmd.OutOrStdout(), snap)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().StringVar(&openScript, "script", "", "Command script (YAML) with an optional target state")
}
