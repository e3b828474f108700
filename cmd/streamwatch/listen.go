package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rickgao/streamwatch/internal/model"
	"github.com/rickgao/streamwatch/internal/router"
)

func newListenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print stream.online events from EventSub as JSON lines",
		Long:  "Keeps the EventSub pool reconciled and writes every stream.online event to stdout. The poller, notifications and database are not started.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(flags)
			if err != nil {
				return err
			}
			a.logStart("listen")

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			manager := a.newManager()
			rt := router.NewRouter(router.DefaultRouterConfig(), manager.Messages(), a.logger,
				jsonLinePrinter(cmd.OutOrStdout()))

			rt.Start(ctx)
			manager.Start(ctx)

			<-ctx.Done()
			return stopAll(a.logger, shutdownTimeout, manager, rt)
		},
	}
}

type onlineLine struct {
	EventID     string `json:"event_id"`
	Broadcaster string `json:"broadcaster"`
	Login       string `json:"login"`
	URL         string `json:"url"`
	StartedAt   string `json:"started_at"`
	Source      string `json:"source"`
}

// jsonLinePrinter writes one JSON object per event.
func jsonLinePrinter(w io.Writer) router.OnlineHandler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)

	return router.OnlineHandlerFunc(func(_ context.Context, ev model.StreamOnline) {
		line := onlineLine{
			EventID:     ev.EventID,
			Broadcaster: ev.Broadcaster.Name(),
			Login:       ev.Broadcaster.Login,
			URL:         ev.ChannelURL(),
			Source:      ev.Source,
		}
		if !ev.StartedAt.IsZero() {
			line.StartedAt = ev.StartedAt.Format("2006-01-02T15:04:05Z07:00")
		}

		mu.Lock()
		defer mu.Unlock()
		enc.Encode(line)
	})
}
