package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "artifacts <task-id>",
		Short: "List the Markdown files written for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.client().Artifacts(cmd.Context(), args[0])
			if err != nil {
				return ctx.wrapClientError(err)
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			stdout := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No artifacts recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{string(e.Kind), e.Name, formatBytes(e.SizeBytes)})
			}
			fmt.Fprint(stdout, renderTable(
				[]column{{header: "Kind"}, {header: "File", maxWidth: 60}, {header: "Size", align: alignRight}},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "fetch <filename>",
		Aliases: []string{"download"},
		Short:   "Download a Markdown artifact",
		Long:    "Download a Markdown artifact by file name. Use -o - to write to stdout.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			target := strings.TrimSpace(output)
			if target == "-" {
				_, err := ctx.client().Download(cmd.Context(), name, cmd.OutOrStdout())
				return ctx.wrapClientError(err)
			}
			if target == "" {
				target = name
			} else if info, err := os.Stat(target); err == nil && info.IsDir() {
				target = filepath.Join(target, name)
			}

			tmp, err := os.CreateTemp(filepath.Dir(target), ".vidscribe-fetch-*")
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			n, err := ctx.client().Download(cmd.Context(), name, tmp)
			closeErr := tmp.Close()
			if err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(tmp.Name())
				return ctx.wrapClientError(err)
			}
			if err := os.Rename(tmp.Name(), target); err != nil {
				_ = os.Remove(tmp.Name())
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, formatBytes(n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file or directory (default: current directory)")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
