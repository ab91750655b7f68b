package broker

import (
	"sync/atomic"

	"roboharbor/internal/protocol"
)

const (
	statePending uint32 = iota
	stateCompleted
)

// completion is a one-shot result slot. Timers, cancellation and real events
// may all race to complete it; only the first complete call takes effect.
type completion[T any] struct {
	state atomic.Uint32
	done  chan struct{}
	value T
	err   error
}

func newCompletion[T any]() *completion[T] {
	return &completion[T]{done: make(chan struct{})}
}

// complete stores the result and releases waiters. It reports whether this
// call won; later calls are no-ops.
func (c *completion[T]) complete(value T, err error) bool {
	if !c.state.CompareAndSwap(statePending, stateCompleted) {
		return false
	}
	c.value = value
	c.err = err
	close(c.done)
	return true
}

// wait blocks until the completion is resolved.
func (c *completion[T]) wait() (T, error) {
	<-c.done
	return c.value, c.err
}

// pendingResponse is an outstanding request to a robot.
type pendingResponse struct {
	*completion[protocol.Envelope]

	robotID       string
	correlationID string
	// connID is the connection the request was written to; only a reply
	// arriving on the same connection can resolve it.
	connID  string
	request protocol.Envelope
}
