package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidscribe/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var local bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks (directories, tools, prompts, generation backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []preflight.Result
			if local {
				results = preflight.RunLocal(ctx.configValue())
			} else {
				remote, err := ctx.client().Check(cmd.Context())
				if err != nil {
					return ctx.wrapClientError(err)
				}
				results = remote
			}
			if asJSON {
				return writeJSON(cmd, results)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, r := range results {
				fmt.Fprintln(stdout, renderStatusLine(r.Name, checkKind(r.Passed, r.Optional), r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run local checks without contacting the daemon")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
