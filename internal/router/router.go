package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/streamwatch/internal/connection"
	"github.com/rickgao/streamwatch/internal/eventsub"
	"github.com/rickgao/streamwatch/internal/metrics"
	"github.com/rickgao/streamwatch/internal/model"
)

// Router consumes envelopes from the session pool and dispatches
// stream.online events to handlers.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg      RouterConfig
	logger   *slog.Logger
	handlers []OnlineHandler

	// Input from the session pool
	input <-chan connection.Message

	// Recently seen message ids, oldest first
	seen     map[string]struct{}
	seenRing []string
	seenNext int

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats RouterStats
}

// NewRouter creates a new envelope router.
func NewRouter(cfg RouterConfig, input <-chan connection.Message, logger *slog.Logger, handlers ...OnlineHandler) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = DefaultRouterConfig().DedupSize
	}

	return &router{
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
		input:    input,
		seen:     make(map[string]struct{}, cfg.DedupSize),
		seenRing: make([]string, cfg.DedupSize),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("envelope router started", "handlers", len(r.handlers))
	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping envelope router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("envelope router stopped")
	case <-ctx.Done():
		r.logger.Warn("envelope router stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(msg)
		}
	}
}

// route handles a single envelope.
func (r *router) route(msg connection.Message) {
	env := msg.Envelope
	msgType := env.Metadata.MessageType
	metrics.RecordMessage(msgType)

	r.mu.Lock()
	r.stats.MessagesReceived++
	r.mu.Unlock()

	switch msgType {
	case eventsub.TypeNotification:
		if !env.IsStreamOnline() {
			r.count(func(s *RouterStats) { s.Unhandled++ })
			r.logger.Debug("skipping notification",
				"subscription_type", env.Metadata.SubscriptionType,
			)
			return
		}
		if r.duplicate(env.Metadata.MessageID) {
			r.count(func(s *RouterStats) { s.Duplicates++ })
			r.logger.Debug("dropping redelivered notification", "message_id", env.Metadata.MessageID)
			return
		}
		r.count(func(s *RouterStats) { s.StreamOnline++ })
		r.dispatch(streamOnlineFromEvent(*env.Payload.Event, msg))

	case eventsub.TypeSessionKeepalive:
		r.count(func(s *RouterStats) { s.Keepalives++ })

	case eventsub.TypeSessionWelcome:
		r.count(func(s *RouterStats) { s.Welcomes++ })
		r.logger.Debug("session welcomed",
			"session", msg.SessionID,
			"session_id", env.SessionID(),
			"keepalive", env.Keepalive(),
		)

	case eventsub.TypeSessionReconnect:
		r.count(func(s *RouterStats) { s.Reconnects++ })
		r.logger.Info("session asked to reconnect", "session", msg.SessionID)

	case eventsub.TypeRevocation:
		r.count(func(s *RouterStats) { s.Revocations++ })
		sub := env.Payload.Subscription
		r.logger.Warn("subscription revoked",
			"session", msg.SessionID,
			"subscription", sub.ID,
			"status", sub.Status,
			"broadcaster", sub.Condition.BroadcasterUserID,
		)

	default:
		r.count(func(s *RouterStats) { s.Unhandled++ })
		r.logger.Debug("skipping message type", "type", msgType)
	}
}

func (r *router) dispatch(event model.StreamOnline) {
	metrics.RecordStreamOnline(event.Source)
	r.logger.Info("stream online",
		"broadcaster", event.Broadcaster.Login,
		"event_id", event.EventID,
		"source", event.Source,
	)

	for _, h := range r.handlers {
		h.HandleOnline(r.ctx, event)
	}
}

// duplicate records id and reports whether it was seen recently. Only the
// routing goroutine calls it.
func (r *router) duplicate(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := r.seen[id]; ok {
		return true
	}

	if old := r.seenRing[r.seenNext]; old != "" {
		delete(r.seen, old)
	}
	r.seenRing[r.seenNext] = id
	r.seenNext = (r.seenNext + 1) % len(r.seenRing)
	r.seen[id] = struct{}{}
	return false
}

func (r *router) count(update func(*RouterStats)) {
	r.mu.Lock()
	update(&r.stats)
	r.mu.Unlock()
}

// streamOnlineFromEvent converts a stream.online event.
func streamOnlineFromEvent(ev eventsub.Event, msg connection.Message) model.StreamOnline {
	return model.StreamOnline{
		EventID: ev.ID,
		Broadcaster: model.Broadcaster{
			ID:          ev.BroadcasterUserID,
			Login:       ev.BroadcasterUserLogin,
			DisplayName: ev.BroadcasterUserName,
		},
		Source:     model.SourceEventSub,
		StartedAt:  ev.StartedAt,
		ReceivedAt: msg.ReceivedAt.UnixMicro(),
	}
}
