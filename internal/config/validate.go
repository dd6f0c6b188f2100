package config

import (
	"errors"
	"fmt"
)

// Validate checks that required fields are set and values are sane. It
// expects defaults to be applied first.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Indexer.URL == "" {
		return errors.New("indexer.url is required")
	}

	if _, err := c.Classifier.Thresholds(); err != nil {
		return err
	}

	if c.Recalc.Concurrency < 1 {
		return errors.New("recalc.concurrency must be >= 1")
	}
	if c.Recalc.MaxAttempts < 1 {
		return errors.New("recalc.max_attempts must be >= 1")
	}

	if c.Reconcile.IdleEvery < 1 {
		return errors.New("reconcile.idle_every must be >= 1")
	}
	if c.Reconcile.Concurrency < 1 {
		return errors.New("reconcile.concurrency must be >= 1")
	}
	if c.Reconcile.RatePerSec <= 0 {
		return errors.New("reconcile.rate_per_sec must be > 0")
	}
	if c.Reconcile.PageSize < 1 {
		return errors.New("reconcile.page_size must be >= 1")
	}
	if c.Reconcile.Window.Std() < c.Reconcile.IdleWindow.Std() {
		return fmt.Errorf("reconcile.window %s is smaller than reconcile.idle_window %s",
			c.Reconcile.Window.Std(), c.Reconcile.IdleWindow.Std())
	}

	if c.Feed.NATS.URL != "" && c.Feed.NATS.Subject == "" {
		return errors.New("feed.nats.subject is required when feed.nats.url is set")
	}

	return nil
}
