package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/streamwatch/internal/api"
	"github.com/rickgao/streamwatch/internal/eventsub"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no keepalive)")
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpenUnready
	StateOpenReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpenUnready:
		return "open_unready"
	case StateOpenReady:
		return "open_ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriptionAPI is the subset of the Helix client used to manage
// subscriptions bound to a session.
type SubscriptionAPI interface {
	CreateStreamOnlineSubscription(ctx context.Context, broadcasterID, sessionID string) (*api.SubscriptionsResponse, error)
	DeleteSubscription(ctx context.Context, id string) (bool, error)
}

// DesiredSource provides the set of targets that should be subscribed.
type DesiredSource interface {
	DesiredTargets(ctx context.Context) ([]string, error)
}

// DesiredSourceFunc adapts a function to DesiredSource.
type DesiredSourceFunc func(ctx context.Context) ([]string, error)

func (f DesiredSourceFunc) DesiredTargets(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Subscription is a server-side subscription bound to a session.
type Subscription struct {
	ID        string // Assigned by the server
	Target    string // Broadcaster user ID
	Type      string
	Status    string
	Cost      int
	CreatedAt time.Time
}

// Message is an envelope received by one of the pool's sessions.
type Message struct {
	SessionID  int // Pool-local session number, not the server session id
	Envelope   eventsub.Envelope
	ReceivedAt time.Time
}

// SessionConfig configures a Session.
type SessionConfig struct {
	URL              string        // EventSub WebSocket URL
	MaxCost          int           // Per-session cost budget, fixed after the first subscribe
	MaxSubscriptions int           // Per-session subscription cap (0 = none)
	WelcomeTimeout   time.Duration // Max wait for session_welcome after connect
	KeepaliveGrace   time.Duration // Added to the announced keepalive before declaring a session stale
	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration // Write deadline for the close frame
	InitialBufSize   int           // Frame reader initial buffer
	MaxMessageSize   int           // Frame reader message limit
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		URL:              "wss://eventsub.wss.twitch.tv/ws",
		MaxCost:          5,
		MaxSubscriptions: 300,
		WelcomeTimeout:   10 * time.Second,
		KeepaliveGrace:   5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		CloseTimeout:     time.Second,
		InitialBufSize:   4096,
		MaxMessageSize:   1 << 20,
	}
}

// ManagerConfig configures the Pool Reconciler.
type ManagerConfig struct {
	Session           SessionConfig
	Interval          time.Duration // Time between cycles
	RetryInterval     time.Duration // Time to the next cycle after a session was created
	MessageBufferSize int           // Buffer size for output message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Session:           DefaultSessionConfig(),
		Interval:          time.Minute,
		RetryInterval:     3 * time.Second,
		MessageBufferSize: 1000,
	}
}
