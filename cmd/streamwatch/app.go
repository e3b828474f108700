package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/streamwatch/internal/api"
	"github.com/rickgao/streamwatch/internal/auth"
	"github.com/rickgao/streamwatch/internal/config"
	"github.com/rickgao/streamwatch/internal/connection"
	"github.com/rickgao/streamwatch/internal/poller"
	"github.com/rickgao/streamwatch/internal/version"
)

// app holds the components shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *api.Client
	source *api.FollowedChannelSource
}

func wireApp(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log, os.Stdout)

	creds, err := auth.LoadCredentials(cfg.Twitch.ClientID, cfg.Twitch.AccessToken, cfg.Twitch.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	client := api.NewClient(cfg.Twitch.APIURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Twitch.Timeout),
		api.WithRetries(cfg.Twitch.MaxAttempts),
		api.WithRateLimitWait(cfg.Twitch.RateLimitMinWait, cfg.Twitch.RateLimitMaxWait),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		source: api.NewFollowedChannelSource(client, cfg.Twitch.UserID),
	}, nil
}

func (a *app) managerConfig() connection.ManagerConfig {
	mcfg := connection.DefaultManagerConfig()
	mcfg.Interval = a.cfg.Reconciler.Interval
	mcfg.RetryInterval = a.cfg.Reconciler.RetryInterval
	mcfg.MessageBufferSize = a.cfg.Reconciler.MessageBuffer

	s := a.cfg.Sessions
	mcfg.Session.URL = a.cfg.Twitch.EventSubURL
	mcfg.Session.MaxCost = s.MaxCost
	mcfg.Session.MaxSubscriptions = s.MaxSubscriptions
	mcfg.Session.WelcomeTimeout = s.WelcomeTimeout
	mcfg.Session.KeepaliveGrace = s.KeepaliveGrace
	mcfg.Session.HandshakeTimeout = s.HandshakeTimeout
	mcfg.Session.MaxMessageSize = s.MaxMessageSize
	return mcfg
}

func (a *app) newManager() connection.Manager {
	mcfg := a.managerConfig()
	dialer := connection.NewWSDialer(mcfg.Session, a.logger)
	return connection.NewManager(mcfg, a.client, dialer, a.source, a.logger)
}

func (a *app) pollerConfig() poller.Config {
	pcfg := poller.DefaultConfig()
	pcfg.Interval = a.cfg.Poller.Interval
	pcfg.ProfileTTL = a.cfg.Poller.ProfileTTL
	pcfg.Concurrency = a.cfg.Poller.Concurrency
	pcfg.Timeout = a.cfg.Twitch.Timeout
	return pcfg
}

func (a *app) logStart(command string) {
	a.logger.Info("starting streamwatch",
		"command", command,
		"version", version.Version,
		"commit", version.Commit,
		"api_url", a.cfg.Twitch.APIURL,
		"eventsub_url", a.cfg.Twitch.EventSubURL,
	)
}

// stopper is implemented by every long-running component.
type stopper interface {
	Stop(ctx context.Context) error
}

// stopAll stops components in order, sharing one timeout.
func stopAll(logger *slog.Logger, timeout time.Duration, components ...stopper) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, c := range components {
		if c == nil {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			logger.Warn("component stop failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
