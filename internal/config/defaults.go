package config

import (
	"log/slog"
	"strings"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultAPIURL           = "https://api.twitch.tv/helix"
	DefaultEventSubURL      = "wss://eventsub.wss.twitch.tv/ws"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxAttempts      = 3
	DefaultRateLimitMinWait = 1 * time.Second
	DefaultRateLimitMaxWait = 60 * time.Second
	DefaultMaxCost          = 5
	DefaultMaxSubscriptions = 300
	DefaultWelcomeTimeout   = 10 * time.Second
	DefaultKeepaliveGrace   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxMessageSize   = 1 << 20
	DefaultReconcileEvery   = 1 * time.Minute
	DefaultRetryInterval    = 3 * time.Second
	DefaultMessageBuffer    = 1000
	DefaultPollInterval     = 1 * time.Minute
	DefaultProfileTTL       = 1 * time.Hour
	DefaultPollConcurrency  = 4
	DefaultQueueSize        = 128
	DefaultDedupWindow      = 5 * time.Minute
	DefaultExpiry           = 10 * time.Minute
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 1000
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *Config) applyDefaults() {
	// Twitch defaults
	if c.Twitch.APIURL == "" {
		c.Twitch.APIURL = DefaultAPIURL
	}
	if c.Twitch.EventSubURL == "" {
		c.Twitch.EventSubURL = DefaultEventSubURL
	}
	if c.Twitch.Timeout == 0 {
		c.Twitch.Timeout = DefaultAPITimeout
	}
	if c.Twitch.MaxAttempts == 0 {
		c.Twitch.MaxAttempts = DefaultMaxAttempts
	}
	if c.Twitch.RateLimitMinWait == 0 {
		c.Twitch.RateLimitMinWait = DefaultRateLimitMinWait
	}
	if c.Twitch.RateLimitMaxWait == 0 {
		c.Twitch.RateLimitMaxWait = DefaultRateLimitMaxWait
	}

	// Sessions defaults
	if c.Sessions.MaxCost == 0 {
		c.Sessions.MaxCost = DefaultMaxCost
	}
	if c.Sessions.MaxSubscriptions == 0 {
		c.Sessions.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if c.Sessions.WelcomeTimeout == 0 {
		c.Sessions.WelcomeTimeout = DefaultWelcomeTimeout
	}
	if c.Sessions.KeepaliveGrace == 0 {
		c.Sessions.KeepaliveGrace = DefaultKeepaliveGrace
	}
	if c.Sessions.HandshakeTimeout == 0 {
		c.Sessions.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Sessions.MaxMessageSize == 0 {
		c.Sessions.MaxMessageSize = DefaultMaxMessageSize
	}

	// Reconciler defaults
	if c.Reconciler.Interval == 0 {
		c.Reconciler.Interval = DefaultReconcileEvery
	}
	if c.Reconciler.RetryInterval == 0 {
		c.Reconciler.RetryInterval = DefaultRetryInterval
	}
	if c.Reconciler.MessageBuffer == 0 {
		c.Reconciler.MessageBuffer = DefaultMessageBuffer
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.ProfileTTL == 0 {
		c.Poller.ProfileTTL = DefaultProfileTTL
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	// Notifications defaults
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = DefaultQueueSize
	}
	if c.Notifications.DedupWindow == 0 {
		c.Notifications.DedupWindow = DefaultDedupWindow
	}
	if c.Notifications.Expiry == 0 {
		c.Notifications.Expiry = DefaultExpiry
	}

	applyDBDefaults(&c.Database)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DatabaseConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.BatchSize == 0 {
		db.BatchSize = DefaultBatchSize
	}
	if db.FlushInterval == 0 {
		db.FlushInterval = DefaultFlushInterval
	}
	if db.BufferSize == 0 {
		db.BufferSize = DefaultBufferSize
	}
}

// SlogLevel maps log.level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
