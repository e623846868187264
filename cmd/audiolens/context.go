package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/client"
	"github.com/Bugaddr/audiolens/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
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

// apiClient points at the --server flag when given, otherwise at the
// configured daemon bind address.
func (c *commandContext) apiClient() (*client.Client, error) {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return client.New(*c.serverFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.NewFromConfig(cfg), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
