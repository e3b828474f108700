// Package auth provides Twitch app credentials for Helix and EventSub.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Credentials holds the app client id and a user access token.
type Credentials struct {
	ClientID string // Application client id from the Twitch console

	mu          sync.RWMutex
	accessToken string
}

// tokenFile is the JSON layout accepted by LoadCredentials.
type tokenFile struct {
	AccessToken string `json:"access_token"`
}

// LoadCredentials builds credentials from a client id and either a token
// value or a token file. A token value takes precedence over the file.
func LoadCredentials(clientID, token, tokenPath string) (*Credentials, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	if token == "" && tokenPath != "" {
		var err error
		token, err = LoadToken(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
	}

	return &Credentials{
		ClientID:    clientID,
		accessToken: token,
	}, nil
}

// LoadToken reads an access token from path. The file holds either the bare
// token or a JSON object with an access_token field.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var tf tokenFile
		if err := json.Unmarshal([]byte(text), &tf); err != nil {
			return "", fmt.Errorf("parse token file: %w", err)
		}
		text = tf.AccessToken
	}

	// Accept tokens stored with their scheme.
	text = strings.TrimPrefix(text, "oauth:")
	text = strings.TrimPrefix(text, "Bearer ")

	if text == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return text, nil
}

// AccessToken returns the current token and whether one is set.
func (c *Credentials) AccessToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.accessToken != ""
}

// SetAccessToken replaces the token, e.g. after an external refresh.
func (c *Credentials) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// Apply sets the Authorization and Client-Id headers on req. It returns false
// and leaves req untouched when no token is available.
func (c *Credentials) Apply(req *http.Request) bool {
	token, ok := c.AccessToken()
	if !ok {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.ClientID)
	return true
}
