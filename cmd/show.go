package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/practice-sync/internal"
	"github.com/iksnae/practice-sync/internal/layout"
	"github.com/spf13/cobra"
)

var (
	limit     int
	showGraph bool
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true).
			Padding(0, 1)

	failedCommandStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true).
				Padding(0, 1)

	outputStyle = lipgloss.NewStyle().
			Padding(0, 2).
			MarginBottom(1)

	indexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	graphStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135"))
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the command ledger of a session",
	Long: `Display every command response recorded for a session, oldest first.

With --graph, also draw the commits of the current state. Graph positions
are cached per session and cleared when the session is reset.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			snap, err := rt.manager.Open(ctx, id, internal.OpenOptions{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			displaySessionHeader(out, snap)

			entries := snap.Ledger
			total := len(entries)
			if limit > 0 && limit < total {
				entries = entries[total-limit:]
			}
			offset := total - len(entries)
			for i, entry := range entries {
				displayEntry(out, offset+i+1, entry, total)
			}

			if limit > 0 && limit < total {
				fmt.Fprintln(out, lipgloss.NewStyle().
					Foreground(lipgloss.Color("243")).
					Italic(true).
					Render(fmt.Sprintf("... (%d earlier command(s))", total-limit)))
			}

			if showGraph {
				l, err := rt.layout.LoadOrCompute(id, snap.CurrentState)
				if err != nil {
					internal.LogWarn("Commit graph unavailable: %v", err)
					return nil
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderGraph(l))
			}
			return nil
		})
	},
}

func displaySessionHeader(w io.Writer, snap internal.Snapshot) {
	fmt.Fprintln(w, sessionHeaderStyle.Render(fmt.Sprintf("Session %s", snap.Identity)))

	metaParts := []string{
		fmt.Sprintf("Commands: %d", len(snap.Ledger)),
		fmt.Sprintf("Source: %s", snap.Source),
	}
	if snap.HasVersion {
		metaParts = append(metaParts, fmt.Sprintf("Version: %d", snap.Version))
	}
	if snap.TargetState != nil {
		metaParts = append(metaParts, "Target: set")
	}
	fmt.Fprintln(w, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(w)
}

func displayEntry(w io.Writer, index int, entry internal.CommandResponse, total int) {
	style := commandStyle
	label := "$ " + entry.Command
	if !entry.Success {
		style = failedCommandStyle
		label = "✗ " + entry.Command
	}
	fmt.Fprintln(w, style.Render(label)+" "+indexStyle.Render(fmt.Sprintf("[%d/%d]", index, total)))

	content := strings.TrimSpace(entry.Output)
	if content == "" {
		fmt.Fprintln(w, outputStyle.Foreground(lipgloss.Color("240")).Render("(no output)"))
	} else {
		fmt.Fprintln(w, outputStyle.Render(wrapText(content, 80)))
	}
}

// renderGraph draws one row per commit with its lane marked
func renderGraph(l *layout.Layout) string {
	if len(l.Nodes) == 0 {
		return indexStyle.Render("(no commits)")
	}
	cols := l.Columns()
	rows := make([]string, 0, len(l.Nodes))
	for i := len(l.Nodes) - 1; i >= 0; i-- {
		n := l.Nodes[i]
		lanes := make([]string, cols)
		for c := range lanes {
			lanes[c] = "│"
		}
		lanes[n.Column] = "●"
		rows = append(rows, graphStyle.Render(strings.Join(lanes, " "))+" "+n.ID)
	}
	return strings.Join(rows, "\n")
}

// printSnapshotSummary is the short report shared by open, replay, switch
// and sync
func printSnapshotSummary(w io.Writer, snap internal.Snapshot) {
	msg := fmt.Sprintf("Session %s ready: %d command(s), source %s", snap.Identity, len(snap.Ledger), snap.Source)
	if snap.HasVersion {
		msg += fmt.Sprintf(", version %d", snap.Version)
	}
	internal.PrintSuccess(w, msg)
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
					currentLine = word
				} else {
					wrapped = append(wrapped, word)
					currentLine = ""
				}
			} else {
				if currentLine == "" {
					currentLine = word
				} else {
					currentLine += " " + word
				}
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last n commands")
	showCmd.Flags().BoolVar(&showGraph, "graph", false, "Draw the commit graph of the current state")
}
