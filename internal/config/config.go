package config

import "time"

// Config is the root configuration for a streamwatch process.
type Config struct {
	Twitch        TwitchConfig        `yaml:"twitch"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Reconciler    ReconcilerConfig    `yaml:"reconciler"`
	Poller        PollerConfig        `yaml:"poller"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Database      DatabaseConfig      `yaml:"database"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

// TwitchConfig holds Helix and EventSub settings.
type TwitchConfig struct {
	ClientID    string `yaml:"client_id"`
	AccessToken string `yaml:"access_token"` // Takes precedence over token_path
	TokenPath   string `yaml:"token_path"`
	UserID      string `yaml:"user_id"` // Resolved from the token when empty

	APIURL      string `yaml:"api_url"`
	EventSubURL string `yaml:"eventsub_url"`

	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RateLimitMinWait time.Duration `yaml:"rate_limit_min_wait"`
	RateLimitMaxWait time.Duration `yaml:"rate_limit_max_wait"`
}

// SessionsConfig holds per-connection EventSub settings.
type SessionsConfig struct {
	MaxCost          int           `yaml:"max_cost"`
	MaxSubscriptions int           `yaml:"max_subscriptions"`
	WelcomeTimeout   time.Duration `yaml:"welcome_timeout"`
	KeepaliveGrace   time.Duration `yaml:"keepalive_grace"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxMessageSize   int           `yaml:"max_message_size"`
}

// ReconcilerConfig holds pool reconciliation settings.
type ReconcilerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MessageBuffer int           `yaml:"message_buffer"`
}

// PollerConfig holds followed-stream poller settings.
type PollerConfig struct {
	Disabled    bool          `yaml:"disabled"`
	Interval    time.Duration `yaml:"interval"`
	ProfileTTL  time.Duration `yaml:"profile_ttl"`
	Concurrency int           `yaml:"concurrency"`
}

// NotificationsConfig holds notification pipeline settings.
type NotificationsConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	DedupWindow time.Duration `yaml:"dedup_window"`
	Expiry      time.Duration `yaml:"expiry"`
}

// DatabaseConfig holds the optional online-event log. The sink is enabled
// when Host is set.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// Enabled reports whether the online-event log is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// MetricsConfig holds Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
