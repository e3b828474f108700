package connection

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/streamwatch/internal/eventsub"
	"github.com/rickgao/streamwatch/internal/metrics"
)

// Manager owns the pool of EventSub sessions and reconciles the desired
// target set against the subscriptions they hold.
type Manager interface {
	// Start runs the reconciliation loop until Stop or ctx is done.
	Start(ctx context.Context) error

	// Stop ends the loop and stops all sessions.
	Stop(ctx context.Context) error

	// Reconcile runs a single reconciliation cycle.
	Reconcile(ctx context.Context) CycleResult

	// Messages returns the channel of envelopes received by any session.
	Messages() <-chan Message

	// Stats returns current pool statistics.
	Stats() ManagerStats

	// Sessions returns a snapshot of every session in the pool.
	Sessions() []Info
}

// ManagerStats provides statistics about the pool.
type ManagerStats struct {
	Sessions      int
	ReadySessions int
	Subscriptions int
	TotalCost     int
	Cycles        int64
	LastCycle     CycleResult
}

// CycleResult summarizes one reconciliation cycle.
type CycleResult struct {
	StartedAt      time.Time
	Duration       time.Duration
	Desired        int
	Current        int
	Added          int
	Removed        int
	FailedAdds     int
	FailedRemovals int
	SessionCreated bool
	Collected      int
	Err            error // Desired-set fetch error; the diff was skipped
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	api    SubscriptionAPI
	dialer Dialer
	source DesiredSource
	logger *slog.Logger

	// Output channel; closed by Stop
	msgMu    sync.RWMutex
	messages chan Message
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// One cycle at a time
	cycleMu sync.Mutex

	// Pool; only cycles and Stop mutate it
	poolMu   sync.RWMutex
	sessions []*Session
	detach   map[*Session]func()
	nextID   int

	statsMu   sync.Mutex
	cycles    int64
	lastCycle CycleResult
}

// NewManager creates a new Pool Reconciler.
func NewManager(cfg ManagerConfig, api SubscriptionAPI, dialer Dialer, source DesiredSource, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = DefaultManagerConfig().MessageBufferSize
	}

	return &manager{
		cfg:      cfg,
		api:      api,
		dialer:   dialer,
		source:   source,
		logger:   logger,
		messages: make(chan Message, cfg.MessageBufferSize),
		detach:   make(map[*Session]func()),
	}
}

// Start begins the reconciliation loop.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("pool reconciler started",
		"interval", m.cfg.Interval,
		"retry_interval", m.cfg.RetryInterval,
		"max_cost", m.cfg.Session.MaxCost,
	)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping pool reconciler")

	if m.cancel != nil {
		m.cancel()
	}

	// Wait for the loop with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	// Wait out a cycle that is still running.
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.poolMu.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.poolMu.Unlock()

	g := new(errgroup.Group)
	for _, s := range sessions {
		m.detachSession(s)
		g.Go(func() error {
			return s.Stop(ctx)
		})
	}
	err := g.Wait()

	m.msgMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.messages)
	}
	m.msgMu.Unlock()

	m.logger.Info("pool reconciler stopped", "sessions", len(sessions))
	return err
}

// Messages returns the output channel.
func (m *manager) Messages() <-chan Message {
	return m.messages
}

// loop runs cycles until the manager is stopped.
func (m *manager) loop() {
	defer m.wg.Done()

	for {
		result := m.Reconcile(m.ctx)

		wait := m.cfg.Interval
		if result.SessionCreated {
			wait = m.cfg.RetryInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Reconcile runs one cycle: snapshot, fetch desired, diff, remove, add,
// create at most one session, collect closed sessions.
func (m *manager) Reconcile(ctx context.Context) CycleResult {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	result := CycleResult{StartedAt: time.Now()}
	sessions := m.snapshot()

	current := make(map[string]struct{})
	for _, s := range sessions {
		if !s.IsConnecting() {
			continue
		}
		for _, t := range s.Targets() {
			current[t] = struct{}{}
		}
	}
	result.Current = len(current)

	desiredList, err := m.source.DesiredTargets(ctx)
	if err != nil {
		result.Err = err
		if ctx.Err() == nil {
			m.logger.Warn("failed to fetch desired targets, skipping diff", "error", err)
		}
	} else {
		desired := make(map[string]struct{}, len(desiredList))
		for _, t := range desiredList {
			desired[t] = struct{}{}
		}
		result.Desired = len(desired)

		toRemove := difference(current, desired)
		toAdd := difference(desired, current)

		m.removeTargets(ctx, sessions, toRemove, &result)
		needNew := m.addTargets(ctx, sessions, toAdd, &result)

		if needNew && ctx.Err() == nil && !anyAvailable(sessions) {
			m.createSession(ctx)
			result.SessionCreated = true
		}
	}

	result.Collected = m.collect(ctx)
	result.Duration = time.Since(result.StartedAt)
	m.finishCycle(result)
	return result
}

// difference returns a − b in sorted order.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for t := range a {
		if _, ok := b[t]; !ok {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func (m *manager) removeTargets(ctx context.Context, sessions []*Session, targets []string, result *CycleResult) {
	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}

		removed := false
		for _, s := range sessions {
			if !s.IsConnecting() || !s.Owns(target) {
				continue
			}
			if s.Unsubscribe(ctx, target) {
				removed = true
				break
			}
		}

		if removed {
			result.Removed++
		} else {
			result.FailedRemovals++
		}
	}
}

// addTargets subscribes targets on sessions with spare budget and reports
// whether any target found no session.
func (m *manager) addTargets(ctx context.Context, sessions []*Session, targets []string, result *CycleResult) bool {
	needNew := false
	for _, target := range targets {
		if ctx.Err() != nil {
			return false
		}

		added := false
		for _, s := range sessions {
			if !s.CanAcceptSubscription() {
				continue
			}
			if s.Subscribe(ctx, target) {
				added = true
				break
			}
		}

		if added {
			result.Added++
		} else {
			result.FailedAdds++
			needNew = true
		}
	}
	return needNew
}

func anyAvailable(sessions []*Session) bool {
	for _, s := range sessions {
		if s.CanAcceptSubscription() {
			return true
		}
	}
	return false
}

// createSession opens one new session and adds it to the pool.
func (m *manager) createSession(ctx context.Context) {
	m.poolMu.Lock()
	m.nextID++
	id := m.nextID
	m.poolMu.Unlock()

	s := NewSession(id, m.cfg.Session, m.api, m.dialer, m.logger)
	remove := s.OnMessage(MessageHandlerFunc(m.forward))

	m.poolMu.Lock()
	m.sessions = append(m.sessions, s)
	m.detach[s] = remove
	m.poolMu.Unlock()

	// Sessions outlive a single cycle; bind them to the manager when running.
	runCtx := ctx
	if m.ctx != nil {
		runCtx = m.ctx
	}
	s.Start(runCtx)

	m.logger.Info("session created", "session", id, "pool_size", len(m.snapshot()))
}

// collect removes closed sessions from the pool.
func (m *manager) collect(ctx context.Context) int {
	m.poolMu.Lock()
	var closed []*Session
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.IsClosed() {
			closed = append(closed, s)
			continue
		}
		kept = append(kept, s)
	}
	clear(m.sessions[len(kept):])
	m.sessions = kept
	m.poolMu.Unlock()

	for _, s := range closed {
		m.detachSession(s)
		if err := s.Stop(ctx); err != nil {
			m.logger.Warn("failed to stop closed session", "session", s.ID(), "error", err)
		}
		m.logger.Debug("session collected", "session", s.ID())
	}
	return len(closed)
}

func (m *manager) detachSession(s *Session) {
	m.poolMu.Lock()
	remove, ok := m.detach[s]
	delete(m.detach, s)
	m.poolMu.Unlock()

	if ok {
		remove()
	}
}

// forward sends a session's envelope to the output channel (non-blocking).
func (m *manager) forward(_ context.Context, s *Session, env eventsub.Envelope) {
	msg := Message{
		SessionID:  s.ID(),
		Envelope:   env,
		ReceivedAt: time.Now(),
	}

	m.msgMu.RLock()
	defer m.msgMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.messages <- msg:
	default:
		metrics.RecordDropped("connection")
		m.logger.Warn("message buffer full, dropping",
			"session", s.ID(),
			"type", env.Metadata.MessageType,
		)
	}
}

func (m *manager) snapshot() []*Session {
	m.poolMu.RLock()
	defer m.poolMu.RUnlock()
	return slices.Clone(m.sessions)
}

func (m *manager) finishCycle(result CycleResult) {
	m.statsMu.Lock()
	m.cycles++
	m.lastCycle = result
	m.statsMu.Unlock()

	outcome := "ok"
	if result.Err != nil {
		outcome = "fetch_error"
	}
	metrics.RecordReconcileCycle(outcome, result.Duration, result.SessionCreated)

	snap := metrics.PoolSnapshot{ByState: make(map[string]int)}
	for _, s := range m.snapshot() {
		info := s.Info()
		snap.ByState[info.State]++
		snap.Subscriptions += info.Subscriptions
		snap.TotalCost += info.TotalCost
	}
	metrics.SetPool(snap)

	if result.Added+result.Removed+result.FailedAdds+result.FailedRemovals > 0 || result.SessionCreated || result.Collected > 0 {
		m.logger.Info("reconcile cycle",
			"desired", result.Desired,
			"current", result.Current,
			"added", result.Added,
			"removed", result.Removed,
			"failed_adds", result.FailedAdds,
			"failed_removals", result.FailedRemovals,
			"session_created", result.SessionCreated,
			"collected", result.Collected,
			"duration", result.Duration,
		)
	}
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	var stats ManagerStats
	for _, s := range m.snapshot() {
		stats.Sessions++
		if s.IsReady() {
			stats.ReadySessions++
		}
		info := s.Info()
		stats.Subscriptions += info.Subscriptions
		stats.TotalCost += info.TotalCost
	}

	m.statsMu.Lock()
	stats.Cycles = m.cycles
	stats.LastCycle = m.lastCycle
	m.statsMu.Unlock()

	return stats
}

// Sessions returns a snapshot of every session in the pool.
func (m *manager) Sessions() []Info {
	sessions := m.snapshot()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}
