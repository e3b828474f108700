package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/streamwatch/internal/connection"
	"github.com/rickgao/streamwatch/internal/notify"
	"github.com/rickgao/streamwatch/internal/poller"
	"github.com/rickgao/streamwatch/internal/router"
	"github.com/rickgao/streamwatch/internal/version"
	"github.com/rickgao/streamwatch/internal/writer"
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthDeps are the components reported on /health. Nil fields are
// omitted.
type healthDeps struct {
	manager  connection.Manager
	router   router.Router
	poller   *poller.Poller
	notifier *notify.Service
	writer   *writer.OnlineEventWriter
	db       pinger
}

type healthResponse struct {
	Status     string         `json:"status"`
	Version    version.Info   `json:"version"`
	Components map[string]any `json:"components"`
}

// newHealthHandler creates the HTTP handler for metrics, health checks and
// the session and notification debug endpoints.
func newHealthHandler(deps healthDeps, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		if deps.manager != nil {
			stats := deps.manager.Stats()
			health.Components["sessions"] = map[string]any{
				"sessions":      stats.Sessions,
				"ready":         stats.ReadySessions,
				"subscriptions": stats.Subscriptions,
				"total_cost":    stats.TotalCost,
				"cycles":        stats.Cycles,
			}
			if stats.Subscriptions > 0 && stats.ReadySessions == 0 {
				health.Status = "degraded"
			}
		}
		if deps.router != nil {
			health.Components["router"] = deps.router.Stats()
		}
		if deps.poller != nil {
			health.Components["poller"] = deps.poller.Stats()
		}
		if deps.notifier != nil {
			health.Components["notifications"] = deps.notifier.Stats()
		}
		if deps.writer != nil {
			health.Components["writer"] = deps.writer.Stats()
		}
		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/sessions", func(w http.ResponseWriter, r *http.Request) {
		var sessions []connection.Info
		if deps.manager != nil {
			sessions = deps.manager.Sessions()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":    len(sessions),
			"sessions": sessions,
		})
	})

	mux.HandleFunc("GET /debug/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid notification id", http.StatusBadRequest)
			return
		}
		if deps.notifier == nil {
			http.NotFound(w, r)
			return
		}
		n, ok := deps.notifier.Lookup(id)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(n)
	})

	return mux
}

// startHealthServer serves handler on port until Shutdown.
func startHealthServer(port int, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "port", port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	return srv
}
