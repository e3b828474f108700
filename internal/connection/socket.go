package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one WebSocket connection as seen by a Session.
//
// Receive follows frame.Receiver: it reports the end of each WebSocket
// message and maps a close frame from the peer to io.EOF.
type Socket interface {
	Receive(ctx context.Context, p []byte) (n int, endOfMessage bool, err error)
	Close(code int, reason string) error
}

// Dialer opens Sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// WSDialer dials gorilla WebSocket connections.
type WSDialer struct {
	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration
	Header           http.Header
	Logger           *slog.Logger
}

// NewWSDialer creates a dialer from session settings.
func NewWSDialer(cfg SessionConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		Logger:           logger,
	}
}

// Dial establishes the WebSocket connection.
func (d *WSDialer) Dial(ctx context.Context, url string) (Socket, error) {
	header := http.Header{}
	for k, v := range d.Header {
		header[k] = v
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	s := &wsSocket{
		conn:         conn,
		closeTimeout: d.CloseTimeout,
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	d.Logger.Debug("websocket connected", "url", url)
	return s, nil
}

// wsSocket implements Socket over a gorilla connection.
type wsSocket struct {
	conn         *websocket.Conn
	closeTimeout time.Duration

	// Reader for the message in progress; only touched by the read goroutine.
	cur io.Reader

	// Write serialization
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Receive reads the next chunk of the current message.
//
// gorilla's reads are not context aware; callers unblock a pending Receive
// by closing the socket.
func (s *wsSocket) Receive(ctx context.Context, p []byte) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	if s.cur == nil {
		_, r, err := s.conn.NextReader()
		if err != nil {
			return 0, false, mapReadError(err)
		}
		s.cur = r
	}

	n, err := s.cur.Read(p)
	if errors.Is(err, io.EOF) {
		s.cur = nil
		return n, true, nil
	}
	if err != nil {
		s.cur = nil
		return n, false, mapReadError(err)
	}
	return n, false, nil
}

// mapReadError turns a close frame from the peer into io.EOF.
func mapReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return io.EOF
	}
	return err
}

// Close sends a close frame and closes the underlying connection.
// Subsequent calls return the first result.
func (s *wsSocket) Close(code int, reason string) error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		err := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(s.closeTimeout),
		)
		s.writeMu.Unlock()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}

		if cerr := s.conn.Close(); err == nil {
			s.closeErr = cerr
		} else {
			s.closeErr = err
		}
	})
	return s.closeErr
}
