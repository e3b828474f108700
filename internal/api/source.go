package api

import (
	"context"
	"fmt"
	"sync"
)

// FollowedChannelSource yields the broadcaster ids a user follows. It
// satisfies the pool reconciler's desired-set source.
type FollowedChannelSource struct {
	client *Client

	mu     sync.Mutex
	userID string
}

// NewFollowedChannelSource creates a source for userID. An empty userID is
// resolved from the access token on first use.
func NewFollowedChannelSource(client *Client, userID string) *FollowedChannelSource {
	return &FollowedChannelSource{client: client, userID: userID}
}

// UserID returns the user id, resolving it if needed.
func (s *FollowedChannelSource) UserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID != "" {
		return s.userID, nil
	}

	user, err := s.client.GetAuthenticatedUser(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve user id: %w", err)
	}
	s.userID = user.ID
	return s.userID, nil
}

// DesiredTargets returns every followed broadcaster id.
func (s *FollowedChannelSource) DesiredTargets(ctx context.Context) ([]string, error) {
	userID, err := s.UserID(ctx)
	if err != nil {
		return nil, err
	}

	channels, err := s.client.GetAllFollowedChannels(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.BroadcasterID)
	}
	return ids, nil
}
