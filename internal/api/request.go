package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/streamwatch/internal/metrics"
)

var (
	// ErrNeedAuth is returned when no access token is available.
	ErrNeedAuth = errors.New("helix: access token required")

	// ErrRetriesExhausted is returned when a request is still rate limited
	// after the last attempt.
	ErrRetriesExhausted = errors.New("helix: rate limit retries exhausted")
)

// APIError represents a non-2xx response from the Helix API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix api error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true for 429 responses, the only status retried.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// errorBody is the Helix error payload.
type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// doRequest performs one HTTP request. The response header is returned with
// an *APIError so the caller can inspect rate-limit headers.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, http.Header, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens == nil || !c.tokens.Apply(req) {
		return nil, nil, ErrNeedAuth
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(method, path, 0, time.Since(start))
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPIRequest(method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
			msg = eb.Message
		}
		return nil, resp.Header, &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       body,
		}
	}

	return body, resp.Header, nil
}

// doWithRetry performs a request, retrying only rate-limited responses.
//
// A 429 waits until the Ratelimit-Reset time (clamped to the configured
// bounds) before the next attempt. The wait is a select on ctx, so it never
// blocks other callers. After maxAttempts rate-limited responses the call
// fails with ErrRetriesExhausted.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, header, err := c.doRequest(ctx, method, path, query, payload)
		if err == nil {
			return body, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRateLimited() {
			return nil, err
		}

		if attempt >= c.maxAttempts {
			metrics.RecordRetriesExhausted()
			c.logger.Warn("rate limit retries exhausted",
				"method", method,
				"path", path,
				"attempts", attempt,
			)
			return nil, fmt.Errorf("%w: %s %s after %d attempts", ErrRetriesExhausted, method, path, attempt)
		}

		wait := c.rateLimitWait(header)
		c.logger.Info("rate limited, waiting",
			"path", path,
			"attempt", attempt,
			"wait", wait,
			"limit", header.Get("Ratelimit-Limit"),
			"remaining", header.Get("Ratelimit-Remaining"),
		)
		metrics.RecordRateLimitWait(wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// rateLimitWait returns the time until the bucket resets, clamped to
// [minRateWait, maxRateWait]. A missing or ambiguous header waits the minimum.
func (c *Client) rateLimitWait(header http.Header) time.Duration {
	values := header.Values("Ratelimit-Reset")
	if len(values) != 1 {
		return c.minRateWait
	}

	sec, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return c.minRateWait
	}

	wait := time.Unix(sec, 0).Sub(c.now())
	if wait < c.minRateWait {
		return c.minRateWait
	}
	if wait > c.maxRateWait {
		return c.maxRateWait
	}
	return wait
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// post performs a POST request with a JSON body and retries.
func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// del performs a DELETE request with retries.
func (c *Client) del(ctx context.Context, path string, query url.Values) error {
	_, err := c.doWithRetry(ctx, http.MethodDelete, path, query, nil)
	return err
}
