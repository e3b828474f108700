package router

import (
	"context"
	"sync"
)

// Buffer is a thread-safe FIFO that doubles its capacity when full, up to
// a maximum. Sends to a buffer at its maximum are dropped.
type Buffer[T any] struct {
	mu          sync.Mutex
	buf         []T
	head        int // read position
	count       int
	maxCapacity int
	closed      bool
	ready       chan struct{} // signaled on send, closed on Close

	// Stats
	totalSent     int64
	totalReceived int64
	totalDropped  int64
	resizeCount   int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Len           int
	Capacity      int
	MaxCapacity   int
	TotalSent     int64
	TotalReceived int64
	TotalDropped  int64
	ResizeCount   int
}

// NewBuffer creates a buffer with the given initial and maximum capacity.
// A maximum below the initial capacity is raised to it.
func NewBuffer[T any](initialCapacity, maxCapacity int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	return &Buffer[T]{
		buf:         make([]T, initialCapacity),
		maxCapacity: maxCapacity,
		ready:       make(chan struct{}, 1),
	}
}

// Send appends an item without blocking. It returns false if the buffer is
// closed or already holds maxCapacity items.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == len(b.buf) {
		if len(b.buf) >= b.maxCapacity {
			b.totalDropped++
			return false
		}
		b.grow()
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.totalSent++

	b.signal()
	return true
}

// Receive removes the oldest item, waiting until one is available. It
// returns false once the buffer is closed and empty, or when ctx is done.
func (b *Buffer[T]) Receive(ctx context.Context) (T, bool) {
	for {
		b.mu.Lock()
		if b.count > 0 {
			item := b.pop()
			if b.count > 0 {
				b.signal()
			}
			b.mu.Unlock()
			return item, true
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			var zero T
			return zero, false
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-b.ready:
		}
	}
}

// TryReceive removes the oldest item without waiting.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all items if max <= 0).
func (b *Buffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, 0, n)
	for range n {
		out = append(out, b.pop())
	}
	return out
}

// Close stops accepting items and wakes all receivers. Buffered items can
// still be received.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.ready)
	}
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Stats returns current buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:           b.count,
		Capacity:      len(b.buf),
		MaxCapacity:   b.maxCapacity,
		TotalSent:     b.totalSent,
		TotalReceived: b.totalReceived,
		TotalDropped:  b.totalDropped,
		ResizeCount:   b.resizeCount,
	}
}

// pop removes the head item. Caller holds mu and count > 0.
func (b *Buffer[T]) pop() T {
	var zero T
	item := b.buf[b.head]
	b.buf[b.head] = zero
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.totalReceived++
	return item
}

// grow doubles capacity, capped at maxCapacity. Caller holds mu.
func (b *Buffer[T]) grow() {
	newCap := min(len(b.buf)*2, b.maxCapacity)
	next := make([]T, newCap)
	for i := range b.count {
		next[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	b.buf = next
	b.head = 0
	b.resizeCount++
}

// signal wakes one receiver. Caller holds mu and the buffer is open.
func (b *Buffer[T]) signal() {
	if b.closed {
		return
	}
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
