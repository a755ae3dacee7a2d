package realtime

import "sync"

// Client is one live connection registered with the hub. The transport layer
// drains Send; the hub never blocks on a slow consumer.
type Client struct {
	ID string

	// Identity bound during the handshake.
	UserID      string
	SessionID   string
	DeviceID    string
	Fingerprint string
	TabID       string

	Send chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, queueSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan Event, queueSize),
		done: make(chan struct{}),
	}
}

// Done is closed when the client is disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close is idempotent and safe from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// deliver enqueues an event without blocking. Returns false when the client
// is gone or its queue is full; the event is dropped in that case.
func (c *Client) deliver(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- ev:
		return true
	default:
		return false
	}
}
