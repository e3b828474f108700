package router

import (
	"context"

	"github.com/rickgao/streamwatch/internal/model"
)

// OnlineHandler receives stream.online observations. Implementations must
// not block; the router calls them from its routing goroutine.
type OnlineHandler interface {
	HandleOnline(ctx context.Context, event model.StreamOnline)
}

// OnlineHandlerFunc adapts a function to OnlineHandler.
type OnlineHandlerFunc func(ctx context.Context, event model.StreamOnline)

// HandleOnline calls f.
func (f OnlineHandlerFunc) HandleOnline(ctx context.Context, event model.StreamOnline) {
	f(ctx, event)
}

// RouterConfig holds configuration for the envelope router.
type RouterConfig struct {
	// DedupSize is the number of recent message ids remembered to drop
	// redelivered notifications.
	DedupSize int // Default: 1024
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		DedupSize: 1024,
	}
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	StreamOnline     int64
	Duplicates       int64
	Keepalives       int64
	Welcomes         int64
	Reconnects       int64
	Revocations      int64
	Unhandled        int64
}
