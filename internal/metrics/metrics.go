package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamwatch"

var (
	registerOnce sync.Once

	sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "sessions",
			Help:      "EventSub sessions in the pool by state.",
		},
		[]string{"state"},
	)
	subscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "subscriptions",
			Help:      "Subscriptions held across all sessions.",
		},
	)
	subscriptionCost = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "subscription_cost",
			Help:      "Total subscription cost across all sessions.",
		},
	)
	subscriptionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "subscription_ops_total",
			Help:      "Subscribe and unsubscribe operations by outcome.",
		},
		[]string{"op", "success"},
	)
	reconcileCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "cycles_total",
			Help:      "Reconciliation cycles by result.",
		},
		[]string{"result"},
	)
	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "cycle_duration_seconds",
			Help:      "Reconciliation cycle duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "sessions_created_total",
			Help:      "Sessions opened by the reconciler.",
		},
	)
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Helix API requests by endpoint and status.",
		},
		[]string{"method", "endpoint", "status"},
	)
	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Helix API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	rateLimitWaits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate-limit window to reset.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	retriesExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "retries_exhausted_total",
			Help:      "Requests that stayed rate limited after all attempts.",
		},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventsub",
			Name:      "messages_total",
			Help:      "EventSub messages received by type.",
		},
		[]string{"type"},
	)
	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Items dropped because a buffer was full.",
		},
		[]string{"component"},
	)
	streamsOnline = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_online_total",
			Help:      "Stream online events by source.",
		},
		[]string{"source"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by outcome.",
		},
		[]string{"outcome"},
	)
	rowsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "rows_written_total",
			Help:      "Stream online rows inserted into the event log.",
		},
	)
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessions, subscriptions, subscriptionCost, subscriptionOps,
			reconcileCycles, reconcileDuration, sessionsCreated,
			apiRequests, apiDuration, rateLimitWaits, retriesExhausted,
			messages, dropped, streamsOnline, notifications, rowsWritten,
		)
	})
}

// PoolSnapshot is the pool state published after each reconciliation cycle.
type PoolSnapshot struct {
	ByState       map[string]int
	Subscriptions int
	TotalCost     int
}

func SetPool(s PoolSnapshot) {
	Register()
	sessions.Reset()
	for state, n := range s.ByState {
		sessions.WithLabelValues(state).Set(float64(n))
	}
	subscriptions.Set(float64(s.Subscriptions))
	subscriptionCost.Set(float64(s.TotalCost))
}

func RecordSubscriptionOp(op string, success bool) {
	Register()
	subscriptionOps.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

func RecordReconcileCycle(result string, duration time.Duration, created bool) {
	Register()
	reconcileCycles.WithLabelValues(result).Inc()
	reconcileDuration.Observe(duration.Seconds())
	if created {
		sessionsCreated.Inc()
	}
}

// RecordAPIRequest counts one HTTP attempt. status is 0 for transport errors.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	Register()
	apiRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	apiDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordRateLimitWait(wait time.Duration) {
	Register()
	rateLimitWaits.Observe(wait.Seconds())
}

func RecordRetriesExhausted() {
	Register()
	retriesExhausted.Inc()
}

func RecordMessage(messageType string) {
	Register()
	messages.WithLabelValues(messageType).Inc()
}

func RecordDropped(component string) {
	Register()
	dropped.WithLabelValues(component).Inc()
}

func RecordStreamOnline(source string) {
	Register()
	streamsOnline.WithLabelValues(source).Inc()
}

func RecordNotification(outcome string) {
	Register()
	notifications.WithLabelValues(outcome).Inc()
}

func RecordRowsWritten(n int) {
	Register()
	rowsWritten.Add(float64(n))
}
