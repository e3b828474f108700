package model

import (
	"time"

	"github.com/google/uuid"
)

// Sources of a StreamOnline observation.
const (
	SourceEventSub = "eventsub" // stream.online notification
	SourcePoll     = "poll"     // followed-stream poll
)

// ChannelBaseURL is the public channel page prefix.
const ChannelBaseURL = "https://www.twitch.tv/"

// eventNamespace scopes event UUIDs.
var eventNamespace = uuid.MustParse("6f1c8a52-3b0e-4d0c-9a1e-2f5d7b9c4e10")

// Broadcaster is a channel profile.
type Broadcaster struct {
	ID              string // Twitch user id
	Login           string // Lowercase login
	DisplayName     string // Display name, may differ from login in case or script
	ProfileImageURL string
}

// Name returns the display name, falling back to the login.
func (b Broadcaster) Name() string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	return b.Login
}

// StreamOnline records a broadcaster going live.
type StreamOnline struct {
	EventID     string // Stream id; identical across EventSub and poll
	Broadcaster Broadcaster
	Source      string // SourceEventSub or SourcePoll

	// Stream details. Only poll observations carry them.
	Title        string
	GameName     string
	ThumbnailURL string

	StartedAt  time.Time
	ReceivedAt int64 // Local receive timestamp (µs since epoch)
}

// ChannelURL returns the broadcaster's channel page.
func (s StreamOnline) ChannelURL() string {
	return ChannelBaseURL + s.Broadcaster.Login
}

// UUID returns a stable identifier derived from the event id, so both
// sources map the same stream to the same UUID.
func (s StreamOnline) UUID() uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(s.EventID))
}

// Enrich fills empty broadcaster fields from profile.
func (s *StreamOnline) Enrich(profile Broadcaster) {
	if profile.ID != s.Broadcaster.ID {
		return
	}
	if s.Broadcaster.Login == "" {
		s.Broadcaster.Login = profile.Login
	}
	if s.Broadcaster.DisplayName == "" {
		s.Broadcaster.DisplayName = profile.DisplayName
	}
	if s.Broadcaster.ProfileImageURL == "" {
		s.Broadcaster.ProfileImageURL = profile.ProfileImageURL
	}
}
