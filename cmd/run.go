package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var runFailOnError bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <command...>",
	Short: "Run one command in a session",
	Long: `Run one command against the session's current state and append the
response to its ledger. Unopened sessions are opened first.

A command the service rejects, or one that cannot reach the service, is
still recorded as a failed entry carrying the unchanged state.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			resp, err := rt.manager.Run(ctx, id, command)
			if errors.Is(err, internal.ErrStaleResult) {
				return fmt.Errorf("session %s was reset while %q was running", id, command)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resp.Output != "" {
				fmt.Fprintln(out, resp.Output)
			}
			if !resp.Success {
				internal.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("%q did not succeed", command))
				if runFailOnError {
					return fmt.Errorf("command failed: %s", command)
				}
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runFailOnError, "fail", false, "Exit non-zero when the command does not succeed")
	// Everything after the first argument belongs to the simulated command
	runCmd.Flags().SetInterspersed(false)
}
