package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/config"
)

type commandContext struct {
	configFlag *string
	urlFlag    *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, urlFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		urlFlag:    urlFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) daemonURL() string {
	if c.urlFlag != nil {
		if url := strings.TrimSpace(*c.urlFlag); url != "" {
			return url
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.DaemonURL()
	}
	fallback := config.Default()
	return fallback.DaemonURL()
}

func (c *commandContext) token() string {
	if c.tokenFlag != nil {
		if token := strings.TrimSpace(*c.tokenFlag); token != "" {
			return token
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.APIToken
	}
	return ""
}

func (c *commandContext) client() *api.Client {
	return api.NewClient(c.daemonURL(), api.WithToken(c.token()))
}

// wrapClientError adds a hint when the daemon cannot be reached.
func (c *commandContext) wrapClientError(err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start the daemon with `vidscribe start`", c.daemonURL())
	case errors.As(err, &opErr):
		return fmt.Errorf("connect to daemon at %s: %w", c.daemonURL(), err)
	case api.IsUnauthorized(err):
		return fmt.Errorf("daemon rejected the API token; set --token or paths.api_token: %w", err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("daemon at %s did not respond in time: %w", c.daemonURL(), err)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
