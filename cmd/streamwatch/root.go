package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/streamwatch/internal/config"
)

const defaultConfigPath = "configs/streamwatch.yaml"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "streamwatch",
		Short:         "Notify when followed Twitch channels go live",
		Long:          "streamwatch keeps EventSub stream.online subscriptions for every channel the user follows, spread over as many WebSocket sessions as their cost budget needs, and polls followed streams as a fallback.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file (default $STREAMWATCH_CONFIG or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override log.format")

	rootCmd.AddCommand(
		newRunCmd(flags),
		newReconcileCmd(flags),
		newFollowedCmd(flags),
		newListenCmd(flags),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig resolves the config path and applies flag overrides. A
// missing file at the default path falls back to defaults plus the
// TWITCH_CLIENT_ID and TWITCH_ACCESS_TOKEN environment variables.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	path := flags.configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("STREAMWATCH_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.LoadWithDefaults(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg = config.Default()
		cfg.Twitch.ClientID = os.Getenv("TWITCH_CLIENT_ID")
		cfg.Twitch.AccessToken = os.Getenv("TWITCH_ACCESS_TOKEN")
	} else if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the default.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
