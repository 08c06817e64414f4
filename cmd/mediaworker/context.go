package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/queue"
	"mediaworker/internal/redisqueue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withStore opens the SQLite queue for maintenance commands.
func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Source.Backend != config.BackendSQLite {
		return fmt.Errorf("this command needs the sqlite job source (configured backend: %s)", cfg.Source.Backend)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// openSource opens the configured job source. sqlite is non-nil when the
// source is the SQLite queue.
func openSource(ctx context.Context, cfg *config.Config) (source jobs.Source, sqlite *queue.Store, err error) {
	switch cfg.Source.Backend {
	case config.BackendRedis:
		q, err := redisqueue.Open(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis job source: %w", err)
		}
		return q, nil, nil
	case config.BackendSQLite:
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open queue: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, errors.New("unsupported job source " + cfg.Source.Backend)
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

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
