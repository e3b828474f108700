package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/streamwatch/internal/eventsub"
)

// CreateStreamOnlineSubscription subscribes to stream.online for
// broadcasterID, delivered over the WebSocket session sessionID.
func (c *Client) CreateStreamOnlineSubscription(ctx context.Context, broadcasterID, sessionID string) (*SubscriptionsResponse, error) {
	req := createSubscriptionRequest{
		Type:      eventsub.SubscriptionStreamOnline,
		Version:   eventsub.SubscriptionStreamOnlineVersion,
		Condition: eventsub.Condition{BroadcasterUserID: broadcasterID},
		Transport: eventsub.Transport{Method: "websocket", SessionID: sessionID},
	}

	var resp SubscriptionsResponse
	if err := c.post(ctx, "/eventsub/subscriptions", req, &resp); err != nil {
		return nil, fmt.Errorf("create subscription for %s: %w", broadcasterID, err)
	}
	return &resp, nil
}

// DeleteSubscription deletes the subscription with the given id.
//
// A 404 counts as deleted. Other 4xx responses are a definitive rejection
// and return (false, nil); transport faults and exhausted retries return an
// error.
func (c *Client) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	query := url.Values{}
	query.Set("id", id)

	err := c.del(ctx, "/eventsub/subscriptions", query)
	if err == nil {
		return true, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return true, nil
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && !apiErr.IsRateLimited():
			c.logger.Debug("subscription delete rejected", "id", id, "status", apiErr.StatusCode)
			return false, nil
		}
	}
	return false, fmt.Errorf("delete subscription %s: %w", id, err)
}

// GetSubscriptions fetches one page of the client's EventSub subscriptions.
func (c *Client) GetSubscriptions(ctx context.Context, opts GetSubscriptionsOptions) (*SubscriptionsResponse, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Type != "" {
		query.Set("type", opts.Type)
	}
	if opts.UserID != "" {
		query.Set("user_id", opts.UserID)
	}
	if opts.After != "" {
		query.Set("after", opts.After)
	}

	var resp SubscriptionsResponse
	if err := c.get(ctx, "/eventsub/subscriptions", query, &resp); err != nil {
		return nil, fmt.Errorf("get subscriptions: %w", err)
	}
	return &resp, nil
}
