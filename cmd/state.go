package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var (
	stateGoal   bool
	stateScript string
)

// stateCmd represents the state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print a session's current repository state as JSON",
	Long: `Print the repository state of the last ledger entry that has one.

With --goal-state, print the state the session's progress should be
compared against: the script's target state when it has commits,
otherwise the session's own last state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := loadScriptFlag(stateScript)
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			snap, err := rt.manager.Open(ctx, id, internal.OpenOptions{})
			if err != nil {
				return err
			}

			state := snap.CurrentState
			if stateGoal {
				var target *internal.RepositoryState
				if script != nil {
					target = script.TargetState
				}
				state = internal.GoalStateFromLedger(snap.Ledger, target)
			}
			return writeState(cmd, state)
		})
	},
}

func writeState(cmd *cobra.Command, state *internal.RepositoryState) error {
	var buf bytes.Buffer
	if state == nil {
		buf.WriteString("null")
	} else if err := json.Indent(&buf, state.Raw(), "", "  "); err != nil {
		return fmt.Errorf("failed to format state: %w", err)
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().BoolVar(&stateGoal, "goal-state", false, "Print the goal state instead of the current state")
	stateCmd.Flags().StringVar(&stateScript, "script", "", "Command script (YAML) supplying the target state")
}
