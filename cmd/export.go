package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/practice-sync/internal"
	"github.com/iksnae/practice-sync/internal/export"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	asScript  bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session transcript to file",
	Long: `Export the session's ledger to one of jsonl, md, yaml or json.

With --as-script the ledger's domain commands are written as a command
script instead, with the session's current state as its target. This is
how a goal session is turned into an exercise definition.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var exporter export.Exporter
		if !asScript {
			var err error
			exporter, err = export.NewExporter(format)
			if err != nil {
				return err
			}
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		return withSession(cmd, func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error {
			snap, err := rt.manager.Open(ctx, id, internal.OpenOptions{})
			if err != nil {
				return err
			}

			name := "session_" + strings.ReplaceAll(id.Key(), "/", "_")
			var path string
			if asScript {
				path = filepath.Join(outputDir, name+".script.yaml")
				err = writeFile(path, func(f *os.File) error {
					script := internal.ScriptFromLedger(snap.Ledger, rt.replay.IsDomainCommand)
					script.TargetState = snap.CurrentState
					return internal.WriteScript(f, script)
				})
			} else {
				path = filepath.Join(outputDir, fmt.Sprintf("%s.%s", name, exporter.Extension()))
				err = writeFile(path, func(f *os.File) error {
					return exporter.Export(export.NewTranscript(snap), f)
				})
			}
			if err != nil {
				return err
			}

			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Export complete: %d command(s) written to %s", len(snap.Ledger), path))
			return nil
		})
	},
}

func writeFile(path string, fn func(f *os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if err := fn(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to export to %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		internal.LogWarn("Failed to close file %s: %v", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&asScript, "as-script", false, "Write the domain commands as a command script")
}
