package export

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownExporter exports transcripts in Markdown format
type MarkdownExporter struct{}

// Export exports a transcript to Markdown format
func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Session %s\n\n", t.Session)

	_, _ = fmt.Fprintf(w, "**Kind:** %s  \n", t.Kind)
	if t.Version != nil {
		_, _ = fmt.Fprintf(w, "**Version:** %d  \n", *t.Version)
	}
	if t.Source != "" {
		_, _ = fmt.Fprintf(w, "**Source:** %s  \n", t.Source)
	}
	_, _ = fmt.Fprintf(w, "**Commands:** %d\n\n", len(t.Entries))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Commands\n\n")

	for i, entry := range t.Entries {
		status := "ok"
		if !entry.Success {
			status = "failed"
		}
		_, _ = fmt.Fprintf(w, "**%d.** `%s` (%s)\n\n", i+1, escapeBackticks(entry.Command), status)
		if entry.Output != "" {
			_, _ = fmt.Fprintf(w, "```\n%s\n```\n\n", strings.TrimRight(entry.Output, "\n"))
		}

		if i < len(t.Entries)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	if t.Current != nil {
		_, _ = fmt.Fprintf(w, "## Current state\n\n```json\n%s\n```\n", t.Current.String())
	}

	return nil
}

// escapeBackticks keeps a command from closing its inline code span
func escapeBackticks(text string) string {
	return strings.ReplaceAll(text, "`", "'")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
