package main

import (
	"strings"
	"sync"

	"wildcut/internal/api"
	"wildcut/internal/config"
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
		c.config = cfg
	})
	return c.config, c.configErr
}

// serverURL resolves the daemon API base URL: the --server flag when given,
// otherwise the configured bind address.
func (c *commandContext) serverURL() string {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return strings.TrimSpace(*c.serverFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return "http://127.0.0.1:7823"
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "http://127.0.0.1:7823"
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

func (c *commandContext) client() *api.Client {
	return api.NewClient(c.serverURL())
}
