package frame

import (
	"bytes"
	"context"
	"errors"
	"io"
)

var (
	// ErrNullByte is returned when a received chunk contains the sentinel byte.
	ErrNullByte = errors.New("frame: payload contains null byte")

	// ErrMessageTooLarge is returned when a pending message outgrows the configured limit.
	ErrMessageTooLarge = errors.New("frame: message exceeds maximum size")
)

const sentinel byte = 0

const (
	DefaultInitialSize    = 4096
	DefaultMaxMessageSize = 1 << 20 // 1 MiB

	// minReceiveSize is the smallest slice handed to Receive.
	minReceiveSize = 512
)

// Receiver is the read side of a message-oriented socket.
//
// Receive fills p with bytes of the current socket message and reports
// whether the chunk completed that message. A close notification from the
// peer is reported as io.EOF.
type Receiver interface {
	Receive(ctx context.Context, p []byte) (n int, endOfMessage bool, err error)
}

// Option configures a Reader.
type Option func(*Reader)

// WithInitialSize sets the initial buffer size.
func WithInitialSize(n int) Option {
	return func(r *Reader) {
		if n > minReceiveSize {
			r.buf = make([]byte, n)
		}
	}
}

// WithMaxMessageSize bounds the size of a single message.
func WithMaxMessageSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxSize = n
		}
	}
}

// Reader yields complete messages from a Receiver.
//
// Layout of buf: [consumed | start..end pending data | free]. The sentinel is
// written at buf[end] whenever the socket reports the end of a message, so
// scanning for complete messages is a single IndexByte over pending data.
type Reader struct {
	src     Receiver
	buf     []byte
	start   int // first unconsumed byte
	end     int // end of valid data
	scanned int // data in [start, scanned) is known to be sentinel-free
	maxSize int
	err     error
}

// NewReader creates a Reader over src.
func NewReader(src Receiver, opts ...Option) *Reader {
	r := &Reader{
		src:     src,
		buf:     make([]byte, DefaultInitialSize),
		maxSize: DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next complete message.
//
// The returned slice aliases the Reader's buffer and is only valid until the
// next call to Next. Next returns io.EOF once the socket has closed normally;
// a partially received message at that point is discarded.
func (r *Reader) Next(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := r.scan(); ok {
			return msg, nil
		}
		if r.err != nil {
			return nil, r.err
		}
		if err := r.fill(ctx); err != nil {
			r.err = err
		}
	}
}

// scan looks for the next sentinel in pending data.
func (r *Reader) scan() ([]byte, bool) {
	idx := bytes.IndexByte(r.buf[r.scanned:r.end], sentinel)
	if idx < 0 {
		r.scanned = r.end
		return nil, false
	}

	pos := r.scanned + idx
	msg := r.buf[r.start:pos:pos]
	r.start = pos + 1
	r.scanned = r.start
	return msg, true
}

// fill receives one chunk from the socket into the buffer.
func (r *Reader) fill(ctx context.Context) error {
	r.reserve()

	// The last byte stays free for the sentinel.
	p := r.buf[r.end : len(r.buf)-1]

	n, eom, err := r.src.Receive(ctx, p)
	if n > 0 {
		if bytes.IndexByte(p[:n], sentinel) >= 0 {
			return ErrNullByte
		}
		r.end += n
		if r.end-r.start > r.maxSize {
			return ErrMessageTooLarge
		}
	}
	if eom && err == nil {
		r.buf[r.end] = sentinel
		r.end++
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	return nil
}

// reserve makes room for at least minReceiveSize bytes plus the sentinel,
// compacting consumed bytes before growing.
func (r *Reader) reserve() {
	if r.start == r.end {
		r.start, r.end, r.scanned = 0, 0, 0
	}

	if len(r.buf)-r.end > minReceiveSize {
		return
	}

	if r.start > 0 {
		n := copy(r.buf, r.buf[r.start:r.end])
		r.scanned -= r.start
		r.start = 0
		r.end = n
		if len(r.buf)-r.end > minReceiveSize {
			return
		}
	}

	grown := make([]byte, 2*len(r.buf)+minReceiveSize)
	copy(grown, r.buf[:r.end])
	r.buf = grown
}
