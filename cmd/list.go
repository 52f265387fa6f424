package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/practice-sync/internal"
	"github.com/spf13/cobra"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions stored locally",
	Long:  `List every session ledger held in the local state database.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		rows, err := rt.manager.Store().StoredLedgers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		displayStoredLedgers(cmd.OutOrStdout(), rows)
		return nil
	},
}

func displayStoredLedgers(out io.Writer, rows []internal.StoredLedger) {
	if len(rows) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No sessions found"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d stored ledger(s)", len(rows))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("Session")+"\t"+titleStyle.Render("Version")+"\t"+titleStyle.Render("Commands")+"\t"+titleStyle.Render("State")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 60))

	for _, row := range rows {
		version := dateStyle.Render("—")
		if row.Version != nil {
			version = strconv.FormatInt(*row.Version, 10)
		}

		state := dateStyle.Render("empty")
		switch {
		case row.Corrupt:
			state = errorStyle.Render("unreadable")
		case row.HasState:
			state = countStyle.Render("present")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(row.StorageID), version, countStyle.Render(strconv.Itoa(row.Entries)), state)
	}

	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render("practice-sync show --session <id>")+
		idStyle.Render(" to see a ledger"))
}

func init() {
	rootCmd.AddCommand(listCmd)
}
