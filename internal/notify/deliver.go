package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Deliverer shows a notification to the user.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n Notification) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogDeliverer writes each notification as a structured log line.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs n at info level.
func (d LogDeliverer) Deliver(ctx context.Context, n Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, strings.Join(n.Lines, " | "),
		"notification", n.ID,
		"url", n.URL,
		"icon", n.IconURL,
		"image", n.ImageURL,
	)
	return nil
}
