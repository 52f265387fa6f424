package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// tierReport is what inspect found for one session in one tier
type tierReport struct {
	Tier    string                    `json:"tier"`
	Key     string                    `json:"key"`
	Entries int                       `json:"entries"`
	Version *int64                    `json:"version,omitempty"`
	Corrupt bool                      `json:"corrupt,omitempty"`
	Error   string                    `json:"error,omitempty"`
	State   *internal.RepositoryState `json:"state,omitempty"`
	Sample  internal.Ledger           `json:"sample,omitempty"`
}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect what each tier holds for a session",
	Long: `Inspect the raw records kept for a session without opening it.

This command reports:
  • Every durable key holding the session (unversioned and versioned)
  • Entry counts and a sample of ledger entries per key
  • The server's versioned state, for practice sessions with an id

Examples:
  practice-sync inspect --session p1                 # Inspect a practice session
  practice-sync inspect --goal --sample 5            # Show five entries per key
  practice-sync inspect --session p1 --format json   # Machine-readable output`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFormat != "text" && inspectFormat != "json" {
			return fmt.Errorf("unsupported format: %s (supported: text, json)", inspectFormat)
		}
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			reports, err := inspectSession(ctx, rt, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if inspectFormat == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			printTierReports(out, id, reports)
			return nil
		})
	},
}

func inspectSession(ctx context.Context, rt *runtime, id internal.SessionIdentity) ([]tierReport, error) {
	store := rt.manager.Store()
	rows, err := store.StoredLedgers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read durable tier: %w", err)
	}

	var reports []tierReport
	for _, row := range rows {
		if row.StorageID != id.StorageID() {
			continue
		}
		report := tierReport{Tier: "durable", Key: row.Key, Entries: row.Entries, Version: row.Version, Corrupt: row.Corrupt}
		if !row.Corrupt && inspectSampleRows > 0 {
			if data, ok, err := store.RawDurable(ctx, row.Key); err == nil && ok {
				var l internal.Ledger
				if json.Unmarshal(data, &l) == nil {
					report.State = internal.CurrentState(l)
					if len(l) > inspectSampleRows {
						l = l[:inspectSampleRows]
					}
					report.Sample = l
				}
			}
		}
		reports = append(reports, report)
	}

	if rt.remote != nil && id.Remote() {
		report := tierReport{Tier: "remote", Key: id.ID}
		vs, err := rt.remote.FetchVersioned(ctx, id.ID)
		if err != nil {
			report.Error = err.Error()
		} else {
			v := vs.Version
			report.Version = &v
			report.State = vs.State
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func printTierReports(out io.Writer, id internal.SessionIdentity, reports []tierReport) {
	fmt.Fprintf(out, "📋 Session: %s\n", id)
	if len(reports) == 0 {
		fmt.Fprintln(out, "⚠️  No records found in any tier")
		return
	}
	fmt.Fprintf(out, "📊 Found %d record(s)\n\n", len(reports))

	for _, r := range reports {
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📦 %s: %s\n", r.Tier, r.Key)
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		if r.Error != "" {
			fmt.Fprintf(out, "⚠️  %s\n", r.Error)
			continue
		}
		if r.Corrupt {
			fmt.Fprintln(out, "⚠️  Value is not a readable ledger")
			continue
		}
		if r.Tier == "durable" {
			fmt.Fprintf(out, "📊 Entries: %d\n", r.Entries)
		}
		if r.Version != nil {
			fmt.Fprintf(out, "🔢 Version: %d\n", *r.Version)
		}
		fmt.Fprintf(out, "📐 State: %s\n", truncate(r.State.String(), 200))

		if len(r.Sample) > 0 {
			fmt.Fprintf(out, "📄 Sample (first %d entries):\n", len(r.Sample))
			for i, entry := range r.Sample {
				fmt.Fprintf(out, "  %d. %s (success: %t)\n", i+1, entry.Command, entry.Success)
				if entry.Output != "" {
					fmt.Fprintf(out, "     %s\n", truncate(firstLine(entry.Output), 200))
				}
			}
		}
		fmt.Fprintln(out)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of ledger entries to show per key")
}
