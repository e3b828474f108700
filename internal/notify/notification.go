package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/streamwatch/internal/model"
)

// startedAtLayout formats the start time on the first line.
const startedAtLayout = "2006/01/02 15:04:05"

// Notification is one alert ready for delivery.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Lines     []string  `json:"lines"`
	URL       string    `json:"url"` // Opened when the alert is activated
	IconURL   string    `json:"icon_url,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"` // Zero means no expiry
}

// Expired reports whether n should no longer be shown at now.
func (n Notification) Expired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && !now.Before(n.ExpiresAt)
}

// FromStreamOnline builds the alert for a broadcaster going live. The id is
// derived from the stream so both sources produce the same notification.
func FromStreamOnline(ev model.StreamOnline, now time.Time, expiry time.Duration) Notification {
	first := ev.Broadcaster.Name()
	if !ev.StartedAt.IsZero() {
		first += " [" + ev.StartedAt.Local().Format(startedAtLayout) + "]"
	}

	lines := []string{first}
	if ev.Title != "" {
		lines = append(lines, ev.Title)
	}
	if ev.GameName != "" {
		lines = append(lines, ev.GameName)
	}

	n := Notification{
		ID:        ev.UUID(),
		Lines:     lines,
		URL:       ev.ChannelURL(),
		IconURL:   ev.Broadcaster.ProfileImageURL,
		ImageURL:  ev.ThumbnailURL,
		CreatedAt: now,
	}
	if expiry > 0 {
		n.ExpiresAt = now.Add(expiry)
	}
	return n
}
