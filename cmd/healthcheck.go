package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the local store and the practice API are reachable",
	Long: `Check the health of practice-sync by verifying:
  • Configuration loading
  • Local state database access
  • Layout cache directory access
  • Practice API reachability

The API being unreachable is reported as a warning: sessions keep working
locally and replays fall back to synthesized ledgers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		fmt.Fprintln(out, sectionStyle.Render("🔍 Practice Sync Health Check"))
		fmt.Fprintln(out)

		// Step 1: configuration and database
		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration and opening the local store..."))
		rt, err := newRuntime(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to initialize:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		defer rt.Close()
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   API: %s\n", rt.cfg.APIURL)
			fmt.Fprintf(out, "   Database: %s\n", rt.cfg.DatabasePath)
			fmt.Fprintf(out, "   Namespace: %s\n", rt.cfg.Namespace)
		}
		fmt.Fprintln(out)

		// Step 2: durable tier
		fmt.Fprintln(out, infoStyle.Render("Step 2: Checking the local state database..."))
		storeOK := checkStore(ctx, out, rt)
		fmt.Fprintln(out)

		// Step 3: layout cache
		fmt.Fprintln(out, infoStyle.Render("Step 3: Checking the layout cache..."))
		if err := rt.layout.EnsureDir(); err != nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Layout cache unavailable:"), err)
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Layout cache ready"))
			if healthcheckVerbose {
				fmt.Fprintf(out, "   Directory: %s\n", rt.layout.Dir())
			}
		}
		fmt.Fprintln(out)

		// Step 4: remote
		fmt.Fprintln(out, infoStyle.Render("Step 4: Contacting the practice API..."))
		apiOK := false
		if rt.remote == nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  No remote tier configured"))
		} else if _, err := rt.remote.FetchState(ctx); err != nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Practice API unreachable:"), err)
		} else {
			apiOK = true
			fmt.Fprintln(out, successStyle.Render("✅ Practice API reachable"))
		}
		fmt.Fprintln(out)

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)

		switch {
		case storeOK && apiOK:
			fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
			return nil
		case storeOK:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Local store available, API unreachable"))
			fmt.Fprintln(out, "   • Sessions work offline")
			fmt.Fprintln(out, "   • Replays will be synthesized from expected outputs")
			return nil
		default:
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • The local state database cannot be used")
			return fmt.Errorf("health check failed: local store unavailable")
		}
	},
}

func checkStore(ctx context.Context, out io.Writer, rt *runtime) bool {
	if err := rt.db.PingContext(ctx); err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Database unreachable:"), err)
		return false
	}
	keys, err := rt.durable.Keys(ctx, rt.cfg.Namespace+":")
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Failed to read session keys:"), err)
		return false
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d stored ledger(s)", len(keys))))
	if healthcheckVerbose {
		for i, key := range keys {
			if i < 5 {
				fmt.Fprintf(out, "   [%d] %s\n", i+1, key)
			}
		}
		if len(keys) > 5 {
			fmt.Fprintf(out, "   ... and %d more\n", len(keys)-5)
		}
	}
	return true
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed diagnostic information")
}
