package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var (
	switchTo     string
	switchToGoal bool
	switchScript string
)

// switchCmd represents the switch command
var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Leave the current session and open another",
	Long: `Leave the session named by --session/--goal and open the one named by
--to or --to-goal. The session being left is cleared from every tier,
the server included, when no script is given and it holds no progress.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if switchToGoal && switchTo != "" {
			return fmt.Errorf("--to and --to-goal are mutually exclusive")
		}
		script, err := loadScriptFlag(switchScript)
		if err != nil {
			return err
		}
		to := internal.PracticeSession(switchTo)
		if switchToGoal {
			to = internal.GoalSession()
		}

		return withSession(cmd, func(ctx context.Context, rt *runtime, from internal.SessionIdentity) error {
			// A fresh process knows the outgoing session only through the store
			if _, err := rt.manager.Open(ctx, from, internal.OpenOptions{}); err != nil {
				internal.LogWarn("Failed to load %s before switching: %v", from, err)
			}
			snap, err := rt.manager.Switch(ctx, from, to, internal.OpenOptions{Script: script})
			if err != nil {
				return fmt.Errorf("failed to switch to %s: %w", to, err)
			}
			printSnapshotSummary(cmd.OutOrStdout(), snap)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
	switchCmd.Flags().StringVar(&switchTo, "to", "", "Practice session id to open")
	switchCmd.Flags().BoolVar(&switchToGoal, "to-goal", false, "Open the goal-builder session")
	switchCmd.Flags().StringVar(&switchScript, "script", "", "Command script (YAML) for the session being opened")
}
