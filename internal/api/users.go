package api

import (
	"context"
	"fmt"
	"net/url"
)

// maxIDsPerRequest is the Helix limit on repeated id parameters.
const maxIDsPerRequest = 100

// GetUsers fetches users by id. Ids are sent in chunks of 100.
func (c *Client) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	var users []User
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(ids))

		query := url.Values{}
		for _, id := range ids[start:end] {
			query.Add("id", id)
		}

		var resp UsersResponse
		if err := c.get(ctx, "/users", query, &resp); err != nil {
			return nil, fmt.Errorf("get users: %w", err)
		}
		users = append(users, resp.Data...)
	}
	return users, nil
}

// GetAuthenticatedUser returns the user the access token belongs to.
func (c *Client) GetAuthenticatedUser(ctx context.Context) (*User, error) {
	var resp UsersResponse
	if err := c.get(ctx, "/users", nil, &resp); err != nil {
		return nil, fmt.Errorf("get authenticated user: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("get authenticated user: empty response")
	}
	return &resp.Data[0], nil
}
