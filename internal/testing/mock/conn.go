package mock

import (
	"context"
	"errors"
	"sync"
)

// ErrConnClosed is returned by Conn.Send after Close.
var ErrConnClosed = errors.New("mock connection closed")

// Conn is an in-memory robot connection. It records every frame written to it
// and can run a hook on each send to simulate a robot answering.
type Conn struct {
	id string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
	sendFn func(payload []byte) error

	// Sent receives a copy of every frame, if non-nil. It is buffered by NewConn.
	Sent chan []byte
}

// NewConn creates a connection with the given id.
func NewConn(id string) *Conn {
	return &Conn{id: id, Sent: make(chan []byte, 64)}
}

// OnSend installs a hook invoked after each frame is recorded. Returning an
// error makes Send fail with it.
func (c *Conn) OnSend(fn func(payload []byte) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendFn = fn
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// Send records payload.
func (c *Conn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	frame := append([]byte(nil), payload...)
	c.sent = append(c.sent, frame)
	fn := c.sendFn
	c.mu.Unlock()

	select {
	case c.Sent <- frame:
	default:
	}

	if fn != nil {
		return fn(frame)
	}
	return nil
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns a copy of all recorded frames.
func (c *Conn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}
