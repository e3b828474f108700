package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/streamwatch/internal/database"
	"github.com/rickgao/streamwatch/internal/metrics"
	"github.com/rickgao/streamwatch/internal/notify"
	"github.com/rickgao/streamwatch/internal/poller"
	"github.com/rickgao/streamwatch/internal/router"
	"github.com/rickgao/streamwatch/internal/writer"
)

const shutdownTimeout = 30 * time.Second

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the notifier: EventSub pool, poller, notifications and health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(flags)
			if err != nil {
				return err
			}
			return a.run(cmd.Context())
		},
	}
}

func (a *app) run(parent context.Context) error {
	a.logStart("run")
	logger := a.logger

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.Register()

	// Optional online-event log
	var (
		db          pinger
		eventWriter *writer.OnlineEventWriter
	)
	if a.cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", a.cfg.Database.Host,
			"port", a.cfg.Database.Port,
			"database", a.cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		db = pool

		eventWriter = writer.NewOnlineEventWriter(writer.WriterConfig{
			BatchSize:     a.cfg.Database.BatchSize,
			FlushInterval: a.cfg.Database.FlushInterval,
			BufferSize:    a.cfg.Database.BufferSize,
		}, pool, logger)
		logger.Info("database connected")
	}

	var handlers []router.OnlineHandler

	// Poller first so the notifier can read its profile cache
	var streamPoller *poller.Poller
	var notifyOpts []notify.Option
	if !a.cfg.Poller.Disabled {
		streamPoller = poller.New(a.pollerConfig(), a.client, a.source, logger)
		notifyOpts = append(notifyOpts, notify.WithProfiles(streamPoller))
	}

	notifier := notify.NewService(notify.Config{
		DedupWindow: a.cfg.Notifications.DedupWindow,
		Expiry:      a.cfg.Notifications.Expiry,
	}, notify.NewProvider(a.cfg.Notifications.QueueSize), notify.LogDeliverer{Logger: logger}, logger, notifyOpts...)
	handlers = append(handlers, notifier)
	if eventWriter != nil {
		handlers = append(handlers, eventWriter)
	}

	if streamPoller != nil {
		for _, h := range handlers {
			streamPoller.AddHandler(h)
		}
	}

	manager := a.newManager()
	rt := router.NewRouter(router.DefaultRouterConfig(), manager.Messages(), logger, handlers...)

	healthServer := startHealthServer(a.cfg.Metrics.Port, newHealthHandler(healthDeps{
		manager:  manager,
		router:   rt,
		poller:   streamPoller,
		notifier: notifier,
		writer:   eventWriter,
		db:       db,
	}, a.cfg.Metrics.Path), logger)

	// Start consumers before producers
	var started []stopper
	if eventWriter != nil {
		eventWriter.Start(ctx)
		started = append(started, eventWriter)
	}
	notifier.Start(ctx)
	started = append(started, notifier)
	rt.Start(ctx)
	started = append(started, rt)
	if streamPoller != nil {
		streamPoller.Start(ctx)
		started = append(started, streamPoller)
	}
	manager.Start(ctx)
	started = append(started, manager)

	logger.Info("streamwatch running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", a.cfg.Metrics.Port),
		"poller", streamPoller != nil,
		"database", eventWriter != nil,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	// Producers stop first; the manager closes the router's input.
	reversed := make([]stopper, 0, len(started)+1)
	for i := len(started) - 1; i >= 0; i-- {
		reversed = append(reversed, started[i])
	}
	err := stopAll(logger, shutdownTimeout, reversed...)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("streamwatch stopped", "clean", err == nil)
	return nil
}
