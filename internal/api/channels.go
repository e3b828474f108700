package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// followedPageSize is the largest page /channels/followed and
// /streams/followed accept.
const followedPageSize = 100

// GetFollowedChannels fetches one page of channels followed by userID.
func (c *Client) GetFollowedChannels(ctx context.Context, userID, after string) (*FollowedChannelsResponse, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("first", strconv.Itoa(followedPageSize))
	if after != "" {
		query.Set("after", after)
	}

	var resp FollowedChannelsResponse
	if err := c.get(ctx, "/channels/followed", query, &resp); err != nil {
		return nil, fmt.Errorf("get followed channels: %w", err)
	}
	return &resp, nil
}

// GetAllFollowedChannels drains every page of followed channels.
func (c *Client) GetAllFollowedChannels(ctx context.Context, userID string) ([]FollowedChannel, error) {
	var (
		all    []FollowedChannel
		cursor string
	)

	for {
		resp, err := c.GetFollowedChannels(ctx, userID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		if resp.Pagination.Cursor == "" || len(resp.Data) == 0 {
			break
		}
		cursor = resp.Pagination.Cursor
	}

	return all, nil
}
