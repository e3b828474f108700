package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetFollowedStreams fetches one page of live streams followed by userID.
func (c *Client) GetFollowedStreams(ctx context.Context, userID, after string) (*StreamsResponse, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("first", strconv.Itoa(followedPageSize))
	if after != "" {
		query.Set("after", after)
	}

	var resp StreamsResponse
	if err := c.get(ctx, "/streams/followed", query, &resp); err != nil {
		return nil, fmt.Errorf("get followed streams: %w", err)
	}
	return &resp, nil
}

// GetAllFollowedStreams drains every page of followed live streams.
func (c *Client) GetAllFollowedStreams(ctx context.Context, userID string) ([]Stream, error) {
	var (
		all    []Stream
		cursor string
	)

	for {
		resp, err := c.GetFollowedStreams(ctx, userID, cursor)
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

// GetStreams fetches one page of streams matching opts.
func (c *Client) GetStreams(ctx context.Context, opts GetStreamsOptions) (*StreamsResponse, error) {
	query := url.Values{}
	for _, id := range opts.UserIDs {
		query.Add("user_id", id)
	}
	for _, login := range opts.UserLogins {
		query.Add("user_login", login)
	}
	for _, id := range opts.GameIDs {
		query.Add("game_id", id)
	}
	if opts.Type != "" {
		query.Set("type", opts.Type)
	}
	if opts.Language != "" {
		query.Set("language", opts.Language)
	}
	if opts.First > 0 {
		query.Set("first", strconv.Itoa(opts.First))
	}
	if opts.After != "" {
		query.Set("after", opts.After)
	}

	var resp StreamsResponse
	if err := c.get(ctx, "/streams", query, &resp); err != nil {
		return nil, fmt.Errorf("get streams: %w", err)
	}
	return &resp, nil
}
