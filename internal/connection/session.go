package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/streamwatch/internal/api"
	"github.com/rickgao/streamwatch/internal/eventsub"
	"github.com/rickgao/streamwatch/internal/frame"
	"github.com/rickgao/streamwatch/internal/metrics"
)

const closeReason = "client closed"

// MessageHandler receives every envelope decoded by a Session.
type MessageHandler interface {
	HandleMessage(ctx context.Context, s *Session, env eventsub.Envelope)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, s *Session, env eventsub.Envelope)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, s *Session, env eventsub.Envelope) {
	f(ctx, s, env)
}

// Session is one EventSub WebSocket connection and the subscriptions bound
// to it.
//
// All subscription changes go through Subscribe and Unsubscribe, which are
// serialized per session. Subscriptions only exist while the session is
// open; when it closes they are dropped without an unsubscribe round-trip.
type Session struct {
	id     int
	cfg    SessionConfig
	api    SubscriptionAPI
	dialer Dialer
	logger *slog.Logger

	// Serializes Subscribe/Unsubscribe
	opMu sync.Mutex

	// State
	mu           sync.RWMutex
	state        State
	sessionID    string
	keepalive    time.Duration
	reconnectURL string
	lastMessage  time.Time
	subs         []Subscription
	totalCost    int
	maxCost      int
	socket       Socket
	cancel       context.CancelFunc
	done         chan struct{}

	handlersMu  sync.RWMutex
	handlers    map[uint64]MessageHandler
	nextHandler uint64
}

// NewSession creates an idle Session. id is a pool-local number used in logs.
func NewSession(id int, cfg SessionConfig, api SubscriptionAPI, dialer Dialer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		id:       id,
		cfg:      cfg,
		api:      api,
		dialer:   dialer,
		logger:   logger.With("session", id),
		done:     make(chan struct{}),
		handlers: make(map[uint64]MessageHandler),
	}
}

// ID returns the pool-local session number.
func (s *Session) ID() int {
	return s.id
}

// Start connects and launches the read pipeline. It is a no-op unless the
// session is idle. The pipeline lives until Stop is called or ctx is done.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop cancels the read pipeline, closes the socket with a normal closure
// and waits for the pipeline to finish. Message handlers are detached.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		s.detachHandlers()
		return nil
	case StateConnecting, StateOpenUnready, StateOpenReady:
		s.state = StateClosing
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("stop timeout, pipeline still running")
		err = ctx.Err()
	}

	s.detachHandlers()
	return err
}

// Done is closed once the session is closed and its pipeline has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// run is the read pipeline: dial, then frame reader, decode and dispatch.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.closed()

	sock, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Info("connect failed", "url", s.cfg.URL, "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Stopped while dialing
		s.mu.Unlock()
		sock.Close(websocket.CloseNormalClosure, closeReason)
		return
	}
	s.socket = sock
	s.state = StateOpenUnready
	s.lastMessage = time.Now()
	s.mu.Unlock()

	// Cancellation closes the socket, which unblocks the reader.
	stopClose := context.AfterFunc(ctx, func() {
		sock.Close(websocket.CloseNormalClosure, closeReason)
	})
	defer stopClose()

	watchdogDone := make(chan struct{})
	go s.watchdog(ctx, sock, watchdogDone)
	defer func() { <-watchdogDone }()

	s.logger.Debug("session connected", "url", s.cfg.URL)

	reader := frame.NewReader(sock,
		frame.WithInitialSize(s.cfg.InitialBufSize),
		frame.WithMaxMessageSize(s.cfg.MaxMessageSize),
	)

	for {
		data, err := reader.Next(ctx)
		if err != nil {
			s.logReadEnd(ctx, err)
			sock.Close(websocket.CloseNormalClosure, closeReason)
			return
		}

		s.mu.Lock()
		s.lastMessage = time.Now()
		s.mu.Unlock()

		env, err := eventsub.Decode(data)
		if err != nil {
			s.logger.Warn("protocol violation, message dropped", "error", err)
			continue
		}

		s.dispatch(ctx, env)
	}
}

func (s *Session) logReadEnd(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		s.logger.Debug("read pipeline canceled")
	case errors.Is(err, io.EOF):
		s.logger.Info("connection closed by server")
	case errors.Is(err, frame.ErrNullByte), errors.Is(err, frame.ErrMessageTooLarge):
		s.logger.Warn("protocol violation, closing connection", "error", err)
	default:
		s.logger.Info("connection lost", "error", err)
	}
}

// watchdog closes the socket when no message arrives within the keepalive
// window (welcome timeout before the welcome).
func (s *Session) watchdog(ctx context.Context, sock Socket, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.watchdogInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			last := s.lastMessage
			window := s.cfg.WelcomeTimeout
			if s.keepalive > 0 {
				window = s.keepalive + s.cfg.KeepaliveGrace
			}
			s.mu.RUnlock()

			if window <= 0 || time.Since(last) <= window {
				continue
			}

			s.logger.Info("no keepalive received, connection stale",
				"last_message", last,
				"window", window,
				"error", ErrStaleConnection,
			)
			sock.Close(websocket.CloseGoingAway, "stale")
			return
		}
	}
}

func (s *Session) watchdogInterval() time.Duration {
	interval := time.Second
	if g := s.cfg.KeepaliveGrace; g > 0 && g < interval {
		interval = g
	}
	if w := s.cfg.WelcomeTimeout; w > 0 && w < interval {
		interval = w
	}
	return interval
}

// dispatch applies session-level messages and fans the envelope out.
func (s *Session) dispatch(ctx context.Context, env eventsub.Envelope) {
	switch env.Metadata.MessageType {
	case eventsub.TypeSessionWelcome:
		s.mu.Lock()
		if s.state == StateOpenUnready {
			s.state = StateOpenReady
			s.sessionID = env.SessionID()
			s.keepalive = env.Keepalive()
			s.mu.Unlock()
			s.logger.Info("session ready", "session_id", env.SessionID(), "keepalive", env.Keepalive())
		} else {
			s.mu.Unlock()
			s.logger.Warn("protocol violation, duplicate session_welcome ignored", "session_id", env.SessionID())
		}

	case eventsub.TypeSessionReconnect:
		s.mu.Lock()
		s.reconnectURL = env.Payload.Session.ReconnectURL
		s.mu.Unlock()
		s.logger.Info("server requested reconnect", "reconnect_url", env.Payload.Session.ReconnectURL)

	case eventsub.TypeRevocation:
		sub := env.Payload.Subscription
		if s.removeSubscriptions(sub.ID) > 0 {
			s.logger.Info("subscription revoked",
				"subscription_id", sub.ID,
				"target", sub.Condition.BroadcasterUserID,
				"status", sub.Status,
			)
		}
	}

	s.handlersMu.RLock()
	handlers := make([]MessageHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		h.HandleMessage(ctx, s, env)
	}
}

// closed moves the session to Closed and drops its subscriptions.
func (s *Session) closed() {
	s.mu.Lock()
	dropped := len(s.subs)
	s.state = StateClosed
	s.socket = nil
	s.subs = nil
	s.totalCost = 0
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("session closed", "dropped_subscriptions", dropped)
}

// OnMessage registers h and returns a function that removes it.
func (s *Session) OnMessage(h MessageHandler) (remove func()) {
	s.handlersMu.Lock()
	id := s.nextHandler
	s.nextHandler++
	s.handlers[id] = h
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.handlers, id)
		s.handlersMu.Unlock()
	}
}

func (s *Session) detachHandlers() {
	s.handlersMu.Lock()
	clear(s.handlers)
	s.handlersMu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnecting reports whether the session is connecting or open.
func (s *Session) IsConnecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnecting()
}

func (s *Session) isConnecting() bool {
	return s.state == StateConnecting || s.state == StateOpenUnready || s.state == StateOpenReady
}

// IsReady reports whether the session has a session id and spare budget.
func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isReady()
}

func (s *Session) isReady() bool {
	if s.state != StateOpenReady || s.sessionID == "" {
		return false
	}
	return s.maxCost == 0 || s.totalCost < s.maxCost
}

// IsClosed reports whether the session is closing or closed.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateClosing || s.state == StateClosed
}

// CanAcceptSubscription reports whether a subscribe attempt may be routed to
// this session. A closing or closed session never accepts. Otherwise, before
// the first successful subscribe the budget is unknown and an attempt is
// always permitted.
func (s *Session) CanAcceptSubscription() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateClosing || s.state == StateClosed {
		return false
	}
	if s.maxCost == 0 {
		return true
	}
	if s.maxCost <= s.totalCost {
		return false
	}
	if s.cfg.MaxSubscriptions > 0 && len(s.subs) >= s.cfg.MaxSubscriptions {
		return false
	}
	return s.isReady()
}

// Subscribe registers a stream.online subscription for target bound to this
// session. It returns false without a network call unless the session is
// open with a known session id. API errors are logged, not returned.
func (s *Session) Subscribe(ctx context.Context, target string) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	connecting := s.isConnecting()
	sessionID := s.sessionID
	s.mu.RUnlock()

	if !connecting || sessionID == "" {
		s.logger.Debug("subscribe rejected", "target", target, "error", ErrNotConnected)
		return false
	}

	resp, err := s.api.CreateStreamOnlineSubscription(ctx, target, sessionID)
	if err != nil {
		s.logOpError("subscribe", target, err)
		metrics.RecordSubscriptionOp("subscribe", false)
		return false
	}
	if len(resp.Data) == 0 {
		s.logger.Debug("subscribe returned no subscriptions", "target", target)
		metrics.RecordSubscriptionOp("subscribe", false)
		return false
	}

	s.mu.Lock()
	if !s.isConnecting() || s.sessionID != sessionID {
		// Closed while the request was in flight; the server dropped it too.
		s.mu.Unlock()
		s.logger.Debug("session closed during subscribe", "target", target)
		metrics.RecordSubscriptionOp("subscribe", false)
		return false
	}
	for _, sub := range resp.Data {
		t := sub.Condition.BroadcasterUserID
		if t == "" {
			t = target
		}
		s.subs = append(s.subs, Subscription{
			ID:        sub.ID,
			Target:    t,
			Type:      sub.Type,
			Status:    sub.Status,
			Cost:      sub.Cost,
			CreatedAt: sub.CreatedAt,
		})
	}
	s.recomputeCost()
	s.maxCost = s.cfg.MaxCost
	totalCost := s.totalCost
	s.mu.Unlock()

	s.logger.Debug("subscribed", "target", target, "total_cost", totalCost)
	metrics.RecordSubscriptionOp("subscribe", true)
	return true
}

// Unsubscribe deletes the subscriptions for target held by this session. It
// returns false without a network call unless the session is open and holds
// target.
func (s *Session) Unsubscribe(ctx context.Context, target string) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	connecting := s.isConnecting()
	var ids []string
	for _, sub := range s.subs {
		if sub.Target == target {
			ids = append(ids, sub.ID)
		}
	}
	s.mu.RUnlock()

	if !connecting || len(ids) == 0 {
		return false
	}

	ok := true
	var deleted []string
	for _, id := range ids {
		removed, err := s.api.DeleteSubscription(ctx, id)
		if err != nil {
			s.logOpError("unsubscribe", target, err)
			ok = false
			continue
		}
		if !removed {
			s.logger.Debug("unsubscribe rejected", "target", target, "subscription_id", id)
			ok = false
			continue
		}
		deleted = append(deleted, id)
	}

	s.removeSubscriptions(deleted...)
	metrics.RecordSubscriptionOp("unsubscribe", ok)
	if ok {
		s.logger.Debug("unsubscribed", "target", target)
	}
	return ok
}

func (s *Session) logOpError(op, target string, err error) {
	if errors.Is(err, api.ErrRetriesExhausted) {
		s.logger.Warn(op+" failed, retries exhausted", "target", target, "error", err)
		return
	}
	s.logger.Debug(op+" failed", "target", target, "error", err)
}

// removeSubscriptions drops subscriptions by id and returns how many were
// removed.
func (s *Session) removeSubscriptions(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.subs[:0]
	removed := 0
	for _, sub := range s.subs {
		drop := false
		for _, id := range ids {
			if sub.ID == id {
				drop = true
				break
			}
		}
		if drop {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	clear(s.subs[len(kept):])
	s.subs = kept
	s.recomputeCost()
	return removed
}

// recomputeCost keeps totalCost equal to the sum of subscription costs.
// Caller holds mu.
func (s *Session) recomputeCost() {
	total := 0
	for _, sub := range s.subs {
		total += sub.Cost
	}
	s.totalCost = total
}

// Subscriptions returns a copy of the subscriptions bound to this session.
func (s *Session) Subscriptions() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// Targets returns the distinct targets subscribed on this session.
func (s *Session) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.subs))
	out := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		if _, ok := seen[sub.Target]; ok {
			continue
		}
		seen[sub.Target] = struct{}{}
		out = append(out, sub.Target)
	}
	return out
}

// Owns reports whether target is subscribed on this session.
func (s *Session) Owns(target string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.Target == target {
			return true
		}
	}
	return false
}

func (s *Session) TotalCost() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalCost
}

func (s *Session) MaxCost() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxCost
}

// SessionID returns the server-assigned session id, empty before the welcome.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Keepalive returns the keepalive interval announced by the server.
func (s *Session) Keepalive() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepalive
}

// ReconnectURL returns the URL from the last session_reconnect, if any.
func (s *Session) ReconnectURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectURL
}

// Info is a point-in-time view of a session.
type Info struct {
	ID            int    `json:"id"`
	SessionID     string `json:"session_id"`
	State         string `json:"state"`
	Subscriptions int    `json:"subscriptions"`
	TotalCost     int    `json:"total_cost"`
	MaxCost       int    `json:"max_cost"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:            s.id,
		SessionID:     s.sessionID,
		State:         s.state.String(),
		Subscriptions: len(s.subs),
		TotalCost:     s.totalCost,
		MaxCost:       s.maxCost,
	}
}
