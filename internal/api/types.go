package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/streamwatch/internal/eventsub"
)

// Pagination is the Helix cursor. An empty cursor means the last page.
type Pagination struct {
	Cursor string `json:"cursor"`
}

// UsersResponse from GET /users
type UsersResponse struct {
	Data []User `json:"data"`
}

// User represents a Twitch user.
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Type            string    `json:"type"`
	BroadcasterType string    `json:"broadcaster_type"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	OfflineImageURL string    `json:"offline_image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// FollowedChannelsResponse from GET /channels/followed
type FollowedChannelsResponse struct {
	Data       []FollowedChannel `json:"data"`
	Pagination Pagination        `json:"pagination"`
	Total      int               `json:"total"`
}

// FollowedChannel is a broadcaster the user follows.
type FollowedChannel struct {
	BroadcasterID    string    `json:"broadcaster_id"`
	BroadcasterLogin string    `json:"broadcaster_login"`
	BroadcasterName  string    `json:"broadcaster_name"`
	FollowedAt       time.Time `json:"followed_at"`
}

// StreamsResponse from GET /streams and GET /streams/followed
type StreamsResponse struct {
	Data       []Stream   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Stream represents a live stream.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"` // "live" or "" on error
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"` // Contains {width}x{height} placeholders
	Tags         []string  `json:"tags"`
	IsMature     bool      `json:"is_mature"`
}

// Thumbnail returns the thumbnail URL at the given size.
func (s Stream) Thumbnail(width, height int) string {
	return strings.NewReplacer(
		"{width}", strconv.Itoa(width),
		"{height}", strconv.Itoa(height),
	).Replace(s.ThumbnailURL)
}

// GetStreamsOptions filters GET /streams.
type GetStreamsOptions struct {
	UserIDs    []string
	UserLogins []string
	GameIDs    []string
	Type       string // "all" or "live"
	Language   string
	First      int
	After      string
}

// SubscriptionsResponse from POST and GET /eventsub/subscriptions
type SubscriptionsResponse struct {
	Data         []eventsub.Subscription `json:"data"`
	Total        int                     `json:"total"`
	TotalCost    int                     `json:"total_cost"`
	MaxTotalCost int                     `json:"max_total_cost"`
	Pagination   Pagination              `json:"pagination"`
}

// GetSubscriptionsOptions filters GET /eventsub/subscriptions. At most one
// of Status, Type and UserID may be set.
type GetSubscriptionsOptions struct {
	Status string
	Type   string
	UserID string
	After  string
}

// createSubscriptionRequest is the body of POST /eventsub/subscriptions.
type createSubscriptionRequest struct {
	Type      string             `json:"type"`
	Version   string             `json:"version"`
	Condition eventsub.Condition `json:"condition"`
	Transport eventsub.Transport `json:"transport"`
}
