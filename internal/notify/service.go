package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/streamwatch/internal/metrics"
	"github.com/rickgao/streamwatch/internal/model"
)

// ProfileLookup resolves cached broadcaster profiles.
type ProfileLookup interface {
	Profile(id string) (model.Broadcaster, bool)
}

// Config holds notification service settings.
type Config struct {
	// DedupWindow suppresses repeat alerts for a broadcaster, so the
	// EventSub and poll paths alert once per stream.
	DedupWindow time.Duration // Default: 5m

	// Expiry is how long a delivered alert stays active.
	Expiry time.Duration // Default: 10m
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		DedupWindow: 5 * time.Minute,
		Expiry:      10 * time.Minute,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Queued       int64
	Delivered    int64
	Failed       int64
	Deduplicated int64
	Dropped      int64
	Expired      int64
	Active       int
}

// Option configures a Service.
type Option func(*Service)

// WithProfiles enriches alerts with cached profiles.
func WithProfiles(p ProfileLookup) Option {
	return func(s *Service) {
		s.profiles = p
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service turns stream.online observations into notifications and
// delivers them from the provider queue.
type Service struct {
	cfg       Config
	provider  *Provider
	deliverer Deliverer
	profiles  ProfileLookup
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time       // broadcaster id -> last accepted alert
	active   map[uuid.UUID]Notification // delivered, not yet expired
	stats    Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a notification service.
func NewService(cfg Config, provider *Provider, deliverer Deliverer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deliverer == nil {
		deliverer = LogDeliverer{Logger: logger}
	}

	s := &Service{
		cfg:       cfg,
		provider:  provider,
		deliverer: deliverer,
		logger:    logger,
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
		active:    make(map[uuid.UUID]Notification),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleOnline queues an alert for ev unless the broadcaster was alerted
// within the dedup window. It never blocks.
func (s *Service) HandleOnline(_ context.Context, ev model.StreamOnline) {
	now := s.now()

	s.mu.Lock()
	if last, ok := s.lastSeen[ev.Broadcaster.ID]; ok && now.Sub(last) < s.cfg.DedupWindow {
		s.stats.Deduplicated++
		s.mu.Unlock()
		metrics.RecordNotification("deduplicated")
		s.logger.Debug("duplicate stream online suppressed",
			"broadcaster", ev.Broadcaster.ID,
			"source", ev.Source,
		)
		return
	}
	s.lastSeen[ev.Broadcaster.ID] = now
	s.mu.Unlock()

	if s.profiles != nil {
		if profile, ok := s.profiles.Profile(ev.Broadcaster.ID); ok {
			ev.Enrich(profile)
		}
	}

	n := FromStreamOnline(ev, now, s.cfg.Expiry)
	if !s.provider.Add(n) {
		s.count(func(st *Stats) { st.Dropped++ })
		metrics.RecordNotification("dropped")
		s.logger.Warn("notification queue full, dropping", "broadcaster", ev.Broadcaster.Login)
		return
	}
	s.count(func(st *Stats) { st.Queued++ })
}

// Start begins delivering queued notifications.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("notification service started",
		"dedup_window", s.cfg.DedupWindow,
		"expiry", s.cfg.Expiry,
	)
	return nil
}

// Stop shuts down delivery. Queued notifications are discarded.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("notification service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup returns an active notification by id. Expired ones are not found.
func (s *Service) Lookup(id uuid.UUID) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.active[id]
	if ok && n.Expired(s.now()) {
		return Notification{}, false
	}
	return n, ok
}

// Stats returns current statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Active = len(s.active)
	return stats
}

func (s *Service) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case n := <-s.provider.C():
			s.deliver(n)
			s.clean()
		}
	}
}

func (s *Service) deliver(n Notification) {
	if n.Expired(s.now()) {
		s.count(func(st *Stats) { st.Expired++ })
		metrics.RecordNotification("expired")
		return
	}

	if err := s.deliverer.Deliver(s.ctx, n); err != nil {
		s.count(func(st *Stats) { st.Failed++ })
		metrics.RecordNotification("failed")
		s.logger.Warn("failed to deliver notification", "notification", n.ID, "error", err)
		return
	}

	s.mu.Lock()
	s.stats.Delivered++
	if !n.ExpiresAt.IsZero() {
		s.active[n.ID] = n
	}
	s.mu.Unlock()
	metrics.RecordNotification("delivered")
}

// clean drops expired active notifications and dedup entries.
func (s *Service) clean() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range s.active {
		if n.Expired(now) {
			delete(s.active, id)
		}
	}
	for id, last := range s.lastSeen {
		if now.Sub(last) >= s.cfg.DedupWindow {
			delete(s.lastSeen, id)
		}
	}
}

func (s *Service) count(update func(*Stats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}
