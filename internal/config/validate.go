package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "warning", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Twitch.ClientID == "" {
		return errors.New("twitch.client_id is required")
	}
	if c.Twitch.AccessToken == "" && c.Twitch.TokenPath == "" {
		return errors.New("twitch.access_token or twitch.token_path is required")
	}
	if c.Twitch.MaxAttempts < 1 {
		return errors.New("twitch.max_attempts must be >= 1")
	}
	if c.Twitch.RateLimitMinWait > c.Twitch.RateLimitMaxWait {
		return fmt.Errorf("twitch.rate_limit_min_wait (%v) cannot exceed rate_limit_max_wait (%v)",
			c.Twitch.RateLimitMinWait, c.Twitch.RateLimitMaxWait)
	}

	if c.Sessions.MaxCost < 1 {
		return errors.New("sessions.max_cost must be >= 1")
	}
	if c.Sessions.MaxSubscriptions < 1 {
		return errors.New("sessions.max_subscriptions must be >= 1")
	}

	if c.Reconciler.Interval <= 0 {
		return errors.New("reconciler.interval must be > 0")
	}
	if c.Reconciler.RetryInterval <= 0 {
		return errors.New("reconciler.retry_interval must be > 0")
	}
	if c.Reconciler.MessageBuffer < 1 {
		return errors.New("reconciler.message_buffer must be >= 1")
	}

	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Notifications.QueueSize < 1 {
		return errors.New("notifications.queue_size must be >= 1")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level %q is not one of %v", c.Log.Level, validLogLevels)
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		return fmt.Errorf("log.format %q is not one of %v", c.Log.Format, validLogFormats)
	}

	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.BatchSize < 1 {
		return fmt.Errorf("%s.batch_size must be >= 1", prefix)
	}
	if db.BufferSize < 1 {
		return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
	}
	return nil
}
