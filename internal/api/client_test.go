package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// staticToken authorizes requests with a fixed token.
type staticToken string

func (s staticToken) Apply(req *http.Request) bool {
	if s == "" {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+string(s))
	req.Header.Set("Client-Id", "test-client")
	return true
}

// fastRetry keeps rate-limit waits short in tests.
var fastRetry = WithRateLimitWait(time.Millisecond, 20*time.Millisecond)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("", staticToken("tok"))

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxAttempts != 3 {
			t.Errorf("maxAttempts = %d, want %d", c.maxAttempts, 3)
		}
		if c.minRateWait != time.Second || c.maxRateWait != time.Minute {
			t.Errorf("rate wait = [%v, %v], want [1s, 1m0s]", c.minRateWait, c.maxRateWait)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.example.com", staticToken("tok"),
			WithTimeout(5*time.Second),
			WithRetries(5),
			WithRateLimitWait(2*time.Second, 30*time.Second),
			WithLogger(logger),
		)

		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxAttempts != 5 {
			t.Errorf("maxAttempts = %d, want %d", c.maxAttempts, 5)
		}
		if c.minRateWait != 2*time.Second || c.maxRateWait != 30*time.Second {
			t.Errorf("rate wait = [%v, %v], want [2s, 30s]", c.minRateWait, c.maxRateWait)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("non-positive retries ignored", func(t *testing.T) {
		c := NewClient("", staticToken("tok"), WithRetries(0))
		if c.maxAttempts != 3 {
			t.Errorf("maxAttempts = %d, want %d", c.maxAttempts, 3)
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("", staticToken("tok"), WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if got, want := err.Error(), "helix api error 404: Not Found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{429, true},
		{400, false},
		{401, false},
		{404, false},
		{500, false},
		{503, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRateLimited(); got != tt.expected {
			t.Errorf("IsRateLimited() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("sets auth headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization header = %q, want %q", got, "Bearer tok")
			}
			if got := r.Header.Get("Client-Id"); got != "test-client" {
				t.Errorf("Client-Id header = %q, want %q", got, "test-client")
			}
			if got := r.Header.Get("Accept"); got != "application/json" {
				t.Errorf("Accept header = %q, want %q", got, "application/json")
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		body, _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("no token sends nothing", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		}))
		defer server.Close()

		for _, tokens := range []TokenSource{nil, staticToken("")} {
			c := NewClient(server.URL, tokens)
			_, _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, nil)
			if !errors.Is(err, ErrNeedAuth) {
				t.Errorf("err = %v, want ErrNeedAuth", err)
			}
		}
		if hits != 0 {
			t.Errorf("server hits = %d, want 0", hits)
		}
	})

	t.Run("json body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
			data, _ := io.ReadAll(r.Body)
			if string(data) != `{"a":1}` {
				t.Errorf("body = %s, want {\"a\":1}", data)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		_, _, err := c.doRequest(context.Background(), http.MethodPost, "/test", nil, map[string]int{"a": 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("error carries helix message and header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Ratelimit-Remaining", "0")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Bad Request","status":400,"message":"invalid transport"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		_, header, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 400 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 400)
		}
		if apiErr.Message != "invalid transport" {
			t.Errorf("Message = %q, want %q", apiErr.Message, "invalid transport")
		}
		if header.Get("Ratelimit-Remaining") != "0" {
			t.Errorf("header not returned with error")
		}
	})

	t.Run("non-json error uses status text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`internal error`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		_, _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.Message != "Internal Server Error" {
			t.Errorf("Message = %q, want %q", apiErr.Message, "Internal Server Error")
		}
	})
}

// TestDoWithRetry tests the rate-limit retry policy.
func TestDoWithRetry(t *testing.T) {
	t.Run("succeeds after 429", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"), fastRetry)
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("exhausts after three 429s", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"), fastRetry)
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil)
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("err = %v, want ErrRetriesExhausted", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("no wait after last attempt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"),
			WithRetries(1),
			WithRateLimitWait(time.Minute, time.Minute),
		)
		start := time.Now()
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil)
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("err = %v, want ErrRetriesExhausted", err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("elapsed = %v, want no wait", elapsed)
		}
	})

	t.Run("other statuses are not retried", func(t *testing.T) {
		for _, status := range []int{400, 401, 404, 500, 503} {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(status)
			}))

			c := NewClient(server.URL, staticToken("tok"), fastRetry)
			_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil)
			server.Close()

			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != status {
				t.Errorf("status %d: err = %v, want APIError", status, err)
			}
			if attempts != 1 {
				t.Errorf("status %d: attempts = %d, want 1", status, attempts)
			}
		}
	})

	t.Run("post body is resent", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			if string(data) != `{"a":1}` {
				t.Errorf("attempt body = %s", data)
			}
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"), fastRetry)
		_, err := c.doWithRetry(context.Background(), http.MethodPost, "/test", nil, map[string]int{"a": 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("context cancellation during wait", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"), WithRateLimitWait(time.Minute, time.Minute))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	})
}

// TestRateLimitWait tests Ratelimit-Reset parsing and clamping.
func TestRateLimitWait(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewClient("", staticToken("tok"),
		WithRateLimitWait(time.Second, time.Minute),
		WithClock(func() time.Time { return now }),
	)

	reset := func(offset int64) string {
		return strconv.FormatInt(now.Unix()+offset, 10)
	}

	tests := []struct {
		name   string
		values []string
		want   time.Duration
	}{
		{"missing", nil, time.Second},
		{"in range", []string{reset(10)}, 10 * time.Second},
		{"past", []string{reset(-5)}, time.Second},
		{"too far", []string{reset(3600)}, time.Minute},
		{"unparsable", []string{"soon"}, time.Second},
		{"ambiguous", []string{reset(10), reset(20)}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for _, v := range tt.values {
				header.Add("Ratelimit-Reset", v)
			}
			if got := c.rateLimitWait(header); got != tt.want {
				t.Errorf("rateLimitWait() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetUsers tests id chunking.
func TestGetUsers(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Path != "/users" {
			t.Errorf("path = %q, want /users", r.URL.Path)
		}
		ids := r.URL.Query()["id"]
		if len(ids) > 100 {
			t.Errorf("ids per request = %d, want <= 100", len(ids))
		}
		resp := UsersResponse{}
		for _, id := range ids {
			resp.Data = append(resp.Data, User{ID: id, Login: "user" + id})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}

	c := NewClient(server.URL, staticToken("tok"))
	users, err := c.GetUsers(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 250 {
		t.Errorf("len(users) = %d, want 250", len(users))
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3", requests)
	}
}

// TestGetAuthenticatedUser tests resolution of the token's user.
func TestGetAuthenticatedUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Query()) != 0 {
				t.Errorf("query = %v, want none", r.URL.Query())
			}
			w.Write([]byte(`{"data":[{"id":"141981764","login":"twitchdev","display_name":"TwitchDev"}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		user, err := c.GetAuthenticatedUser(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != "141981764" || user.DisplayName != "TwitchDev" {
			t.Errorf("user = %+v", user)
		}
	})

	t.Run("empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		if _, err := c.GetAuthenticatedUser(context.Background()); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

// pagedServer serves pages of ids at path, three per page.
func pagedServer(t *testing.T, path string, ids []string, item func(id string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("path = %q, want %q", r.URL.Path, path)
		}
		if r.URL.Query().Get("user_id") != "42" {
			t.Errorf("user_id = %q, want 42", r.URL.Query().Get("user_id"))
		}
		if r.URL.Query().Get("first") != "100" {
			t.Errorf("first = %q, want 100", r.URL.Query().Get("first"))
		}

		start := 0
		if after := r.URL.Query().Get("after"); after != "" {
			start, _ = strconv.Atoi(strings.TrimPrefix(after, "c"))
		}
		end := min(start+3, len(ids))

		items := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			items = append(items, item(id))
		}
		cursor := ""
		if end < len(ids) {
			cursor = fmt.Sprintf("c%d", end)
		}
		fmt.Fprintf(w, `{"data":[%s],"pagination":{"cursor":%q},"total":%d}`,
			strings.Join(items, ","), cursor, len(ids))
	}))
}

// TestGetAllFollowedChannels tests pagination until the cursor is empty.
func TestGetAllFollowedChannels(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5", "6", "7"}
	server := pagedServer(t, "/channels/followed", ids, func(id string) string {
		return fmt.Sprintf(`{"broadcaster_id":%q,"broadcaster_login":"b%s","broadcaster_name":"B%s","followed_at":"2022-05-24T22:22:08Z"}`, id, id, id)
	})
	defer server.Close()

	c := NewClient(server.URL, staticToken("tok"))
	channels, err := c.GetAllFollowedChannels(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(channels) != len(ids) {
		t.Fatalf("len(channels) = %d, want %d", len(channels), len(ids))
	}
	for i, ch := range channels {
		if ch.BroadcasterID != ids[i] {
			t.Errorf("channels[%d].BroadcasterID = %q, want %q", i, ch.BroadcasterID, ids[i])
		}
	}
}

// TestGetAllFollowedStreams tests pagination of live followed streams.
func TestGetAllFollowedStreams(t *testing.T) {
	ids := []string{"10", "11", "12", "13"}
	server := pagedServer(t, "/streams/followed", ids, func(id string) string {
		return fmt.Sprintf(`{"id":"s%s","user_id":%q,"user_login":"u%s","type":"live","viewer_count":5,"thumbnail_url":"https://x/{width}x{height}.jpg"}`, id, id, id)
	})
	defer server.Close()

	c := NewClient(server.URL, staticToken("tok"))
	streams, err := c.GetAllFollowedStreams(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != len(ids) {
		t.Fatalf("len(streams) = %d, want %d", len(streams), len(ids))
	}
	if got := streams[0].Thumbnail(480, 270); got != "https://x/480x270.jpg" {
		t.Errorf("Thumbnail() = %q", got)
	}
}

// TestGetStreams tests query construction.
func TestGetStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q["user_id"]; len(got) != 2 || got[0] != "1" || got[1] != "2" {
			t.Errorf("user_id = %v, want [1 2]", got)
		}
		if q.Get("type") != "live" {
			t.Errorf("type = %q, want live", q.Get("type"))
		}
		if q.Get("first") != "20" {
			t.Errorf("first = %q, want 20", q.Get("first"))
		}
		if q.Has("language") || q.Has("after") {
			t.Errorf("unexpected empty params in %v", q)
		}
		w.Write([]byte(`{"data":[{"id":"s1","user_id":"1","type":"live"}],"pagination":{}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, staticToken("tok"))
	resp, err := c.GetStreams(context.Background(), GetStreamsOptions{
		UserIDs: []string{"1", "2"},
		Type:    "live",
		First:   20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].UserID != "1" {
		t.Errorf("Data = %+v", resp.Data)
	}
}

// TestCreateStreamOnlineSubscription tests the subscription request body.
func TestCreateStreamOnlineSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/eventsub/subscriptions" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}

		var req createSubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if req.Type != "stream.online" || req.Version != "1" {
			t.Errorf("type/version = %s/%s", req.Type, req.Version)
		}
		if req.Condition.BroadcasterUserID != "1234" {
			t.Errorf("broadcaster_user_id = %q, want 1234", req.Condition.BroadcasterUserID)
		}
		if req.Transport.Method != "websocket" || req.Transport.SessionID != "sess-1" {
			t.Errorf("transport = %+v", req.Transport)
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":[{"id":"sub-1","status":"enabled","type":"stream.online","version":"1","cost":1,"condition":{"broadcaster_user_id":"1234"},"transport":{"method":"websocket","session_id":"sess-1"},"created_at":"2023-04-11T10:11:12.123Z"}],"total":1,"total_cost":1,"max_total_cost":10}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, staticToken("tok"))
	resp, err := c.CreateStreamOnlineSubscription(context.Background(), "1234", "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "sub-1" || resp.Data[0].Cost != 1 {
		t.Errorf("Data = %+v", resp.Data)
	}
	if resp.MaxTotalCost != 10 {
		t.Errorf("MaxTotalCost = %d, want 10", resp.MaxTotalCost)
	}
}

// TestDeleteSubscription tests the outcome mapping of delete responses.
func TestDeleteSubscription(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{"deleted", http.StatusNoContent, true, false},
		{"not found", http.StatusNotFound, true, false},
		{"unauthorized", http.StatusUnauthorized, false, false},
		{"server error", http.StatusInternalServerError, false, true},
		{"rate limited", http.StatusTooManyRequests, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("method = %s, want DELETE", r.Method)
				}
				if r.URL.Query().Get("id") != "sub-1" {
					t.Errorf("id = %q, want sub-1", r.URL.Query().Get("id"))
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := NewClient(server.URL, staticToken("tok"), fastRetry)
			got, err := c.DeleteSubscription(context.Background(), "sub-1")
			if got != tt.want {
				t.Errorf("DeleteSubscription() = %v, want %v", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestFollowedChannelSource tests lazy user resolution and caching.
func TestFollowedChannelSource(t *testing.T) {
	var userLookups int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			atomic.AddInt32(&userLookups, 1)
			w.Write([]byte(`{"data":[{"id":"42","login":"me"}]}`))
		case "/channels/followed":
			if r.URL.Query().Get("user_id") != "42" {
				t.Errorf("user_id = %q, want 42", r.URL.Query().Get("user_id"))
			}
			w.Write([]byte(`{"data":[{"broadcaster_id":"7"},{"broadcaster_id":"8"}],"pagination":{}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	src := NewFollowedChannelSource(NewClient(server.URL, staticToken("tok")), "")
	for range 2 {
		ids, err := src.DesiredTargets(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 2 || ids[0] != "7" || ids[1] != "8" {
			t.Errorf("DesiredTargets() = %v, want [7 8]", ids)
		}
	}
	if userLookups != 1 {
		t.Errorf("user lookups = %d, want 1", userLookups)
	}
}

// TestJSONUnmarshalErrors tests handling of malformed responses.
func TestJSONUnmarshalErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	c := NewClient(server.URL, staticToken("tok"))
	_, err := c.GetFollowedChannels(context.Background(), "42", "")
	if err == nil || !strings.Contains(err.Error(), "unmarshal response") {
		t.Errorf("err = %v, want unmarshal error", err)
	}
}
