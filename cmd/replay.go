package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var replayScript string

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Reset a session and rebuild it from a command script",
	Long: `Reset the session, then replay every step of --script through the
execution service. If the service fails for any step, the whole ledger
is synthesized from the steps' expected outputs and the script's target
state instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayScript == "" {
			return fmt.Errorf("--script is required")
		}
		script, err := loadScriptFlag(replayScript)
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			var snap internal.Snapshot
			msg := fmt.Sprintf("Replaying %d step(s) into %s", script.Len(), id)
			err := internal.ShowProgress(ctx, msg, func() error {
				var rerr error
				snap, rerr = rt.manager.Rebuild(ctx, id, *script)
				return rerr
			})
			if err != nil {
				return fmt.Errorf("replay failed: %w", err)
			}

			if snap.Source == internal.SourceMockReplay {
				internal.PrintWarning(cmd.ErrOrStderr(), "Execution service unavailable, ledger was synthesized from expected outputs")
			}
			printSnapshotSummary(cmd.OutOrStdout(), snap)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayScript, "script", "", "Command script (YAML) to replay")
}
