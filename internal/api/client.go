package api

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// TokenSource authorizes outgoing requests.
type TokenSource interface {
	// Apply sets the authorization headers on req. It returns false when no
	// access token is available.
	Apply(req *http.Request) bool
}

// Client provides access to the Twitch Helix REST API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger

	maxAttempts int
	minRateWait time.Duration
	maxRateWait time.Duration
	now         func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      slog.Default(),
		maxAttempts: 3,
		minRateWait: time.Second,
		maxRateWait: time.Minute,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the total number of attempts for rate-limited requests.
func WithRetries(maxAttempts int) ClientOption {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// WithRateLimitWait bounds the wait before retrying a rate-limited request.
// min is also used when the reset header is missing or unparsable.
func WithRateLimitWait(min, max time.Duration) ClientOption {
	return func(c *Client) {
		c.minRateWait = min
		c.maxRateWait = max
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock sets the time source used to interpret Ratelimit-Reset.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}
