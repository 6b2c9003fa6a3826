// Command vidscribed runs the vidscribe daemon in the foreground. It is the
// entry point for systemd units and containers; "vidscribe start" launches the
// same runtime detached.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vidscribe/internal/config"
	"vidscribe/internal/daemonrun"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		bind        string
		development bool
	)
	cmd := &cobra.Command{
		Use:           "vidscribed",
		Short:         "vidscribe daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, bind)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}

func loadConfig(path, bind string) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if bind = strings.TrimSpace(bind); bind != "" {
		cfg.Paths.APIBind = bind
	}
	return cfg, nil
}
