package notify

// DefaultQueueSize is the provider capacity.
const DefaultQueueSize = 128

// Provider is a bounded notification queue. Producers never block.
type Provider struct {
	ch chan Notification
}

// NewProvider creates a provider holding up to size notifications.
func NewProvider(size int) *Provider {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Provider{ch: make(chan Notification, size)}
}

// Add enqueues n. It returns false when the queue is full.
func (p *Provider) Add(n Notification) bool {
	select {
	case p.ch <- n:
		return true
	default:
		return false
	}
}

// C returns the receive side of the queue.
func (p *Provider) C() <-chan Notification {
	return p.ch
}

// Len returns the number of queued notifications.
func (p *Provider) Len() int {
	return len(p.ch)
}
