package roster

import "sync"

// Client is one connected screen.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done tells the connection goroutines to stop.
type Client struct {
	ID     string
	UserID int64
	Send   chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, userID int64, queue int) *Client {
	if queue <= 0 {
		queue = 64
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan Envelope, queue),
		done:   make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
