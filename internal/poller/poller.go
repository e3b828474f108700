package poller

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/streamwatch/internal/api"
	"github.com/rickgao/streamwatch/internal/metrics"
	"github.com/rickgao/streamwatch/internal/model"
)

// profileChunkSize is the Helix limit on ids per /users request.
const profileChunkSize = 100

// StreamSource fetches followed streams and user profiles.
type StreamSource interface {
	GetAllFollowedStreams(ctx context.Context, userID string) ([]api.Stream, error)
	GetUsers(ctx context.Context, ids []string) ([]api.User, error)
}

// UserResolver returns the id of the user whose follows are polled.
type UserResolver interface {
	UserID(ctx context.Context) (string, error)
}

// Handler receives streams that went live since the previous poll.
type Handler interface {
	HandleOnline(ctx context.Context, event model.StreamOnline)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event model.StreamOnline)

func (f HandlerFunc) HandleOnline(ctx context.Context, event model.StreamOnline) {
	f(ctx, event)
}

// Config holds poller configuration.
type Config struct {
	Interval        time.Duration // Poll interval (default: 1m)
	ProfileTTL      time.Duration // Sliding profile cache expiry (default: 1h)
	Concurrency     int           // Max concurrent profile requests (default: 4)
	Timeout         time.Duration // Per-poll timeout (default: 30s)
	ThumbnailWidth  int           // Default: 480
	ThumbnailHeight int           // Default: 270
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Minute,
		ProfileTTL:      time.Hour,
		Concurrency:     4,
		Timeout:         30 * time.Second,
		ThumbnailWidth:  480,
		ThumbnailHeight: 270,
	}
}

// PollResult summarizes one poll.
type PollResult struct {
	Live            int // Followed streams currently live
	New             int // Streams not seen in the previous poll
	Emitted         int // New streams handed to handlers
	MissingProfiles int // New streams skipped for lack of a profile
	ProfileFetches  int // /users requests issued
	Duration        time.Duration
}

// Stats contains runtime statistics.
type Stats struct {
	Polls       int64
	Errors      int64
	Emitted     int64
	CachedUsers int
	LastPoll    PollResult
}

// Poller periodically fetches the followed live streams and reports the
// ones that went live since the previous poll.
type Poller struct {
	cfg      Config
	source   StreamSource
	user     UserResolver
	handlers []Handler
	logger   *slog.Logger
	profiles *profileCache

	// Stream ids live at the previous successful poll; only the poll
	// goroutine touches it.
	previous map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New creates a new Poller.
func New(cfg Config, source StreamSource, user UserResolver, logger *slog.Logger, handlers ...Handler) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = defaults.ProfileTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ThumbnailWidth <= 0 || cfg.ThumbnailHeight <= 0 {
		cfg.ThumbnailWidth = defaults.ThumbnailWidth
		cfg.ThumbnailHeight = defaults.ThumbnailHeight
	}

	return &Poller{
		cfg:      cfg,
		source:   source,
		user:     user,
		handlers: handlers,
		logger:   logger,
		profiles: newProfileCache(cfg.ProfileTTL, nil),
		previous: make(map[string]struct{}),
	}
}

// AddHandler registers h. It must be called before Start.
func (p *Poller) AddHandler(h Handler) {
	p.handlers = append(p.handlers, h)
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("stream poller started",
		"interval", p.cfg.Interval,
		"profile_ttl", p.cfg.ProfileTTL,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("stream poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.CachedUsers = p.profiles.Len()
	return stats
}

// Profile returns a cached broadcaster profile.
func (p *Poller) Profile(id string) (model.Broadcaster, bool) {
	return p.profiles.Get(id)
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollLogged()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollLogged()
		}
	}
}

func (p *Poller) pollLogged() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	if _, err := p.PollOnce(ctx); err != nil && p.ctx.Err() == nil {
		p.logger.Warn("poll failed", "error", err)
	}
}

// PollOnce fetches the followed live streams, resolves profiles for the
// newly live ones and hands them to the handlers. Calls must not overlap.
func (p *Poller) PollOnce(ctx context.Context) (PollResult, error) {
	start := time.Now()
	result := PollResult{}

	userID, err := p.user.UserID(ctx)
	if err != nil {
		p.recordError()
		return result, err
	}

	streams, err := p.source.GetAllFollowedStreams(ctx, userID)
	if err != nil {
		p.recordError()
		return result, err
	}
	result.Live = len(streams)

	var fresh []api.Stream
	current := make(map[string]struct{}, len(streams))
	for _, s := range streams {
		current[s.ID] = struct{}{}
		if _, ok := p.previous[s.ID]; !ok {
			fresh = append(fresh, s)
		}
	}
	p.previous = current
	result.New = len(fresh)

	p.profiles.Prune()
	result.ProfileFetches = p.fetchProfiles(ctx, fresh)

	receivedAt := time.Now().UnixMicro()
	for _, s := range fresh {
		profile, ok := p.profiles.Get(s.UserID)
		if !ok {
			result.MissingProfiles++
			p.logger.Debug("no profile for new stream", "user_id", s.UserID, "stream", s.ID)
			continue
		}

		event := model.StreamOnline{
			EventID:      s.ID,
			Broadcaster:  profile,
			Source:       model.SourcePoll,
			Title:        s.Title,
			GameName:     s.GameName,
			ThumbnailURL: s.Thumbnail(p.cfg.ThumbnailWidth, p.cfg.ThumbnailHeight),
			StartedAt:    s.StartedAt,
			ReceivedAt:   receivedAt,
		}

		metrics.RecordStreamOnline(model.SourcePoll)
		for _, h := range p.handlers {
			h.HandleOnline(ctx, event)
		}
		result.Emitted++
	}

	result.Duration = time.Since(start)

	p.mu.Lock()
	p.stats.Polls++
	p.stats.Emitted += int64(result.Emitted)
	p.stats.LastPoll = result
	p.mu.Unlock()

	if result.New > 0 {
		p.logger.Info("poll complete",
			"live", result.Live,
			"new", result.New,
			"emitted", result.Emitted,
			"missing_profiles", result.MissingProfiles,
			"duration", result.Duration,
		)
	}

	return result, nil
}

// fetchProfiles loads uncached profiles for streams in chunks, with at most
// cfg.Concurrency requests in flight. It returns the number of requests.
// A failed chunk is logged and leaves its streams without a profile.
func (p *Poller) fetchProfiles(ctx context.Context, streams []api.Stream) int {
	var ids []string
	for _, s := range streams {
		if !p.profiles.Has(s.UserID) && !slices.Contains(ids, s.UserID) {
			ids = append(ids, s.UserID)
		}
	}
	if len(ids) == 0 {
		return 0
	}

	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var wg sync.WaitGroup
	requests := 0

	for chunk := range slices.Chunk(ids, profileChunkSize) {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		requests++

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			users, err := p.source.GetUsers(ctx, chunk)
			if err != nil {
				p.logger.Warn("failed to fetch profiles", "count", len(chunk), "error", err)
				return
			}
			for _, u := range users {
				p.profiles.Set(model.Broadcaster{
					ID:              u.ID,
					Login:           u.Login,
					DisplayName:     u.DisplayName,
					ProfileImageURL: u.ProfileImageURL,
				})
			}
		}()
	}

	wg.Wait()
	return requests
}

func (p *Poller) recordError() {
	p.mu.Lock()
	p.stats.Errors++
	p.mu.Unlock()
}
