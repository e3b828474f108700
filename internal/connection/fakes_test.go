package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rickgao/streamwatch/internal/api"
	"github.com/rickgao/streamwatch/internal/eventsub"
)

var errSocketClosed = errors.New("use of closed network connection")

// fakeSocket is an in-memory Socket. Messages pushed with deliver are
// returned by Receive in order.
type fakeSocket struct {
	in     chan []byte
	eof    chan struct{}
	closed chan struct{}

	cur []byte

	eofOnce   sync.Once
	closeOnce sync.Once

	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 64),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) Receive(_ context.Context, p []byte) (int, bool, error) {
	if len(s.cur) == 0 {
		select {
		case <-s.closed:
			return 0, false, errSocketClosed
		case <-s.eof:
			return 0, false, io.EOF
		case msg := <-s.in:
			s.cur = msg
		}
	}

	n := copy(p, s.cur)
	s.cur = s.cur[n:]
	return n, len(s.cur) == 0, nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.closeReason = reason
		s.mu.Unlock()
		close(s.closed)
	})
	return nil
}

func (s *fakeSocket) deliver(msg []byte) {
	s.in <- msg
}

// serverClose simulates a close frame from the server.
func (s *fakeSocket) serverClose() {
	s.eofOnce.Do(func() { close(s.eof) })
}

func (s *fakeSocket) closeInfo() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeReason
}

// fakeDialer hands out fakeSockets. Unless silent, every socket starts with a
// session_welcome carrying "sess-N".
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	err     error
	silent  bool
	block   chan struct{} // when set, Dial waits for it or ctx
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Socket, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	sock := newFakeSocket()
	d.sockets = append(d.sockets, sock)
	if !d.silent {
		sock.deliver(welcomeJSON(fmt.Sprintf("sess-%d", len(d.sockets)), 10))
	}
	return sock, nil
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

// fakeAPI records subscription calls and keeps server-side state.
type fakeAPI struct {
	mu         sync.Mutex
	cost       int
	nextID     int
	active     map[string]string // subscription id -> target
	creates    []string          // targets
	deletes    []string          // subscription ids
	failCreate map[string]bool
	failDelete map[string]bool // by target
}

func newFakeAPI(cost int) *fakeAPI {
	return &fakeAPI{
		cost:       cost,
		active:     make(map[string]string),
		failCreate: make(map[string]bool),
		failDelete: make(map[string]bool),
	}
}

func (a *fakeAPI) CreateStreamOnlineSubscription(_ context.Context, broadcasterID, sessionID string) (*api.SubscriptionsResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.creates = append(a.creates, broadcasterID)
	if a.failCreate[broadcasterID] {
		return nil, &api.APIError{StatusCode: 400, Message: "invalid broadcaster"}
	}

	a.nextID++
	id := fmt.Sprintf("sub-%d", a.nextID)
	a.active[id] = broadcasterID

	return &api.SubscriptionsResponse{
		Data: []eventsub.Subscription{{
			ID:        id,
			Status:    "enabled",
			Type:      eventsub.SubscriptionStreamOnline,
			Version:   eventsub.SubscriptionStreamOnlineVersion,
			Cost:      a.cost,
			Condition: eventsub.Condition{BroadcasterUserID: broadcasterID},
			Transport: eventsub.Transport{Method: "websocket", SessionID: sessionID},
			CreatedAt: time.Now(),
		}},
		Total:        len(a.active),
		TotalCost:    len(a.active) * a.cost,
		MaxTotalCost: 10000,
	}, nil
}

func (a *fakeAPI) DeleteSubscription(_ context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deletes = append(a.deletes, id)
	if a.failDelete[a.active[id]] {
		return false, nil
	}
	delete(a.active, id)
	return true, nil
}

func (a *fakeAPI) calls() (creates, deletes int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.creates), len(a.deletes)
}

func (a *fakeAPI) createsFor(target string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, t := range a.creates {
		if t == target {
			n++
		}
	}
	return n
}

func (a *fakeAPI) deletedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deletes...)
}

func welcomeJSON(sessionID string, keepaliveSeconds int) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"message_id":"w-%s","message_type":"session_welcome","message_timestamp":"2023-07-19T14:56:51Z"},"payload":{"session":{"id":%q,"status":"connected","connected_at":"2023-07-19T14:56:51Z","keepalive_timeout_seconds":%d,"reconnect_url":null}}}`,
		sessionID, sessionID, keepaliveSeconds))
}

func notificationJSON(subID, broadcasterID string) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"message_id":"n-%s","message_type":"notification","message_timestamp":"2023-07-19T10:11:12Z","subscription_type":"stream.online","subscription_version":"1"},"payload":{"subscription":{"id":%q,"status":"enabled","type":"stream.online","version":"1","cost":1,"condition":{"broadcaster_user_id":%q},"transport":{"method":"websocket","session_id":"sess-1"},"created_at":"2023-07-19T10:11:12Z"},"event":{"id":"9001","broadcaster_user_id":%q,"broadcaster_user_login":"cool_user","broadcaster_user_name":"Cool_User","type":"live","started_at":"2023-07-19T10:11:12Z"}}}`,
		subID, subID, broadcasterID, broadcasterID))
}

func revocationJSON(subID, broadcasterID string) []byte {
	return []byte(fmt.Sprintf(`{"metadata":{"message_id":"r-%s","message_type":"revocation","message_timestamp":"2023-07-19T10:11:12Z","subscription_type":"stream.online","subscription_version":"1"},"payload":{"subscription":{"id":%q,"status":"authorization_revoked","type":"stream.online","version":"1","cost":1,"condition":{"broadcaster_user_id":%q},"transport":{"method":"websocket","session_id":"sess-1"},"created_at":"2023-07-19T10:11:12Z"}}}`,
		subID, subID, broadcasterID))
}
