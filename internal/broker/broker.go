package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"roboharbor/internal/protocol"
	"roboharbor/internal/registry"
	"roboharbor/pkg/logging"
)

const subsystem = "Broker"

// Default wait windows, used when a caller passes a non-positive timeout.
const (
	DefaultRegistrationTimeout = 60 * time.Second
	DefaultResponseTimeout     = 60 * time.Second
)

var (
	// ErrRegistrationTimeout is returned when a robot does not register in time.
	ErrRegistrationTimeout = errors.New("robot registration timed out")
	// ErrResponseTimeout is returned when a robot does not answer in time.
	ErrResponseTimeout = errors.New("robot response timed out")
	// ErrNotConnected is returned when a message targets a robot without a live connection.
	ErrNotConnected = errors.New("robot not connected")
	// ErrConnectionLost fails requests whose connection closed before a reply arrived.
	ErrConnectionLost = errors.New("robot connection lost")
	// ErrRegistrationPending rejects a second concurrent registration wait for the same robot.
	ErrRegistrationPending = errors.New("registration wait already pending")
)

// Drop reasons reported to the metrics recorder.
const (
	dropUnknownConnection = "unknown_connection"
	dropMalformed         = "malformed"
	dropNotReply          = "not_reply"
	dropUnsolicited       = "unsolicited"
)

// Recorder receives broker gauges and counters. *metrics.Recorder satisfies it.
type Recorder interface {
	SetConnectedRobots(n int)
	SetPending(registrations, responses int)
	MessageDropped(reason string)
}

// Registration is the outcome of a successful registration wait.
type Registration struct {
	RobotID     string
	PodID       string
	ConnectedAt time.Time
}

// Broker links robot connections to the callers waiting on them.
//
// It owns the connection registry and every pending registration and response.
// All maps are keyed by robot identifier, so unrelated robots never wait on
// each other beyond the short critical sections guarding the maps.
type Broker struct {
	registry *registry.Registry
	metrics  Recorder
	newID    func() string

	mu            sync.Mutex
	registrations map[string]*completion[Registration]
	responses     map[string]map[string]*pendingResponse
	responseCount int
}

// Option configures a Broker.
type Option func(*Broker)

// WithMetrics reports gauges and drop counters to rec.
func WithMetrics(rec Recorder) Option {
	return func(b *Broker) {
		b.metrics = rec
	}
}

// WithIDGenerator overrides how correlation ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(b *Broker) {
		b.newID = fn
	}
}

// New creates a broker over reg. A nil registry creates a fresh one.
func New(reg *registry.Registry, opts ...Option) *Broker {
	if reg == nil {
		reg = registry.New()
	}
	b := &Broker{
		registry:      reg,
		newID:         uuid.NewString,
		registrations: make(map[string]*completion[Registration]),
		responses:     make(map[string]map[string]*pendingResponse),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the connection registry the broker maintains.
func (b *Broker) Registry() *registry.Registry {
	return b.registry
}

// RegistrationWait is an armed registration wait. Arming before the robot's
// workload is submitted guarantees a fast registration cannot be missed.
type RegistrationWait struct {
	broker  *Broker
	robotID string
	c       *completion[Registration]
}

// ExpectRegistration arms a registration wait for robotID. Only one wait per
// robot may be outstanding; a second one fails with ErrRegistrationPending.
func (b *Broker) ExpectRegistration(robotID string) (*RegistrationWait, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.registrations[robotID]; exists {
		return nil, fmt.Errorf("%w for robot %s", ErrRegistrationPending, robotID)
	}
	c := newCompletion[Registration]()
	b.registrations[robotID] = c
	b.reportPendingLocked()

	logging.Debug(subsystem, "Waiting for robot %s to register", robotID)
	return &RegistrationWait{broker: b, robotID: robotID, c: c}, nil
}

// Wait blocks until the robot registers, timeout elapses or ctx is done,
// whichever comes first. The pending entry is removed on every path.
func (w *RegistrationWait) Wait(ctx context.Context, timeout time.Duration) (Registration, error) {
	if timeout <= 0 {
		timeout = DefaultRegistrationTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.c.done:
	case <-timer.C:
		w.broker.finishRegistration(w.robotID, w.c, Registration{},
			fmt.Errorf("%w: robot %s did not register within %s", ErrRegistrationTimeout, w.robotID, timeout))
	case <-ctx.Done():
		w.broker.finishRegistration(w.robotID, w.c, Registration{}, ctx.Err())
	}
	return w.c.wait()
}

// Cancel abandons the wait. It is safe to call after the wait completed.
func (w *RegistrationWait) Cancel() {
	w.broker.finishRegistration(w.robotID, w.c, Registration{}, context.Canceled)
}

// WaitForRegistration blocks until robotID announces itself on a new
// connection, or fails with ErrRegistrationTimeout after timeout.
func (b *Broker) WaitForRegistration(ctx context.Context, robotID string, timeout time.Duration) (Registration, error) {
	w, err := b.ExpectRegistration(robotID)
	if err != nil {
		return Registration{}, err
	}
	return w.Wait(ctx, timeout)
}

func (b *Broker) finishRegistration(robotID string, c *completion[Registration], reg Registration, err error) {
	b.mu.Lock()
	if b.registrations[robotID] == c {
		delete(b.registrations, robotID)
		b.reportPendingLocked()
	}
	b.mu.Unlock()

	if c.complete(reg, err) && err != nil {
		logging.Debug(subsystem, "Registration wait for robot %s ended: %v", robotID, err)
	}
}

// SendAndAwait writes msg to robotID's connection and waits for the correlated
// reply. The robot must already be connected.
func (b *Broker) SendAndAwait(ctx context.Context, robotID string, msg protocol.Envelope, timeout time.Duration) (protocol.Envelope, error) {
	entry, ok := b.registry.Get(robotID)
	if !ok {
		return protocol.Envelope{}, fmt.Errorf("%w: %s", ErrNotConnected, robotID)
	}
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	msg.CorrelationID = b.newID()
	msg.RobotID = robotID
	frame, err := protocol.Encode(msg)
	if err != nil {
		return protocol.Envelope{}, err
	}

	p := &pendingResponse{
		completion:    newCompletion[protocol.Envelope](),
		robotID:       robotID,
		correlationID: msg.CorrelationID,
		connID:        entry.Conn.ID(),
		request:       msg,
	}
	b.addResponse(p)

	// A disconnect between Get and addResponse would have found nothing to fail.
	if current, ok := b.registry.Get(robotID); !ok || current.Conn.ID() != p.connID {
		b.finishResponse(p, protocol.Envelope{}, fmt.Errorf("%w: %s", ErrConnectionLost, robotID))
		return p.wait()
	}

	if err := entry.Conn.Send(ctx, frame); err != nil {
		b.finishResponse(p, protocol.Envelope{}, fmt.Errorf("failed to send %s to robot %s: %w", msg.Type, robotID, err))
		return p.wait()
	}
	logging.Debug(subsystem, "Sent %s to robot %s (correlation %s)", msg.Type, robotID, msg.CorrelationID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		b.finishResponse(p, protocol.Envelope{},
			fmt.Errorf("%w: robot %s did not answer %s within %s", ErrResponseTimeout, robotID, msg.Type, timeout))
	case <-ctx.Done():
		b.finishResponse(p, protocol.Envelope{}, ctx.Err())
	}
	return p.wait()
}

func (b *Broker) addResponse(p *pendingResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byCorrelation, ok := b.responses[p.robotID]
	if !ok {
		byCorrelation = make(map[string]*pendingResponse)
		b.responses[p.robotID] = byCorrelation
	}
	byCorrelation[p.correlationID] = p
	b.responseCount++
	b.reportPendingLocked()
}

// removeResponseLocked deletes p if it is still the registered entry.
func (b *Broker) removeResponseLocked(p *pendingResponse) bool {
	byCorrelation := b.responses[p.robotID]
	if byCorrelation[p.correlationID] != p {
		return false
	}
	delete(byCorrelation, p.correlationID)
	if len(byCorrelation) == 0 {
		delete(b.responses, p.robotID)
	}
	b.responseCount--
	b.reportPendingLocked()
	return true
}

func (b *Broker) finishResponse(p *pendingResponse, reply protocol.Envelope, err error) {
	b.mu.Lock()
	b.removeResponseLocked(p)
	b.mu.Unlock()
	p.complete(reply, err)
}

// HandleConnect records a robot's handshake on conn and resolves a pending
// registration for it. A previous connection of the same robot is closed and
// its outstanding requests fail with ErrConnectionLost.
func (b *Broker) HandleConnect(conn registry.Conn, hello protocol.Hello) Registration {
	previous, replaced := b.registry.Upsert(hello.RobotID, hello.PodID, conn)
	if replaced {
		logging.Info(subsystem, "Robot %s reconnected, closing previous connection %s", hello.RobotID, previous.Conn.ID())
		b.failResponsesOn(previous.Conn.ID(), hello.RobotID)
		if err := previous.Conn.Close(); err != nil {
			logging.Debug(subsystem, "Closing superseded connection %s: %v", previous.Conn.ID(), err)
		}
	}

	entry, _ := b.registry.Get(hello.RobotID)
	reg := Registration{RobotID: hello.RobotID, PodID: hello.PodID, ConnectedAt: entry.ConnectedAt}

	b.mu.Lock()
	c := b.registrations[hello.RobotID]
	if c != nil {
		delete(b.registrations, hello.RobotID)
		b.reportPendingLocked()
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SetConnectedRobots(b.registry.Len())
	}

	if c != nil && c.complete(reg, nil) {
		logging.Info(subsystem, "Robot %s registered (pod %s)", hello.RobotID, hello.PodID)
	} else {
		logging.Info(subsystem, "Robot %s connected (pod %s)", hello.RobotID, hello.PodID)
	}
	return reg
}

// HandleMessage routes an inbound frame from conn to the request it answers.
// Frames that answer nothing are discarded; the return value reports whether
// the frame resolved a pending request.
func (b *Broker) HandleMessage(conn registry.Conn, payload []byte) bool {
	robotID, ok := b.registry.RobotFor(conn)
	if !ok {
		b.drop(dropUnknownConnection, "Dropping frame from unregistered connection %s", conn.ID())
		return false
	}

	env, err := protocol.Decode(payload)
	if err != nil {
		b.drop(dropMalformed, "Dropping malformed frame from robot %s: %v", robotID, err)
		return false
	}
	if !env.IsReply() {
		b.drop(dropNotReply, "Dropping %s frame from robot %s", env.Type, robotID)
		return false
	}

	b.mu.Lock()
	p := b.matchResponseLocked(robotID, conn.ID(), env.CorrelationID)
	if p != nil {
		b.removeResponseLocked(p)
	}
	b.mu.Unlock()

	if p == nil {
		b.drop(dropUnsolicited, "Dropping unsolicited %s from robot %s (correlation %q)", env.Type, robotID, env.CorrelationID)
		return false
	}
	return p.complete(env, nil)
}

// matchResponseLocked finds the request a reply answers. Replies without a
// correlation id only match when exactly one request is outstanding.
func (b *Broker) matchResponseLocked(robotID, connID, correlationID string) *pendingResponse {
	byCorrelation := b.responses[robotID]
	var p *pendingResponse
	if correlationID != "" {
		p = byCorrelation[correlationID]
	} else if len(byCorrelation) == 1 {
		for _, only := range byCorrelation {
			p = only
		}
	}
	if p == nil || p.connID != connID {
		return nil
	}
	return p
}

// HandleDisconnect removes conn from the registry and fails every request
// written to it. Pending registrations are left alone: another instance may
// still register under the same identifier.
func (b *Broker) HandleDisconnect(conn registry.Conn) {
	entry, removed := b.registry.Remove(conn)
	robotID := entry.RobotID
	if !removed {
		robotID = ""
	}
	b.failResponsesOn(conn.ID(), robotID)

	if b.metrics != nil {
		b.metrics.SetConnectedRobots(b.registry.Len())
	}
	if removed {
		logging.Info(subsystem, "Robot %s disconnected", entry.RobotID)
	}
}

// failResponsesOn fails all requests that were written to connection connID.
// robotID narrows the search when known.
func (b *Broker) failResponsesOn(connID, robotID string) {
	var failed []*pendingResponse

	b.mu.Lock()
	for id, byCorrelation := range b.responses {
		if robotID != "" && id != robotID {
			continue
		}
		for _, p := range byCorrelation {
			if p.connID == connID {
				failed = append(failed, p)
			}
		}
	}
	for _, p := range failed {
		b.removeResponseLocked(p)
	}
	b.mu.Unlock()

	for _, p := range failed {
		p.complete(protocol.Envelope{}, fmt.Errorf("%w: %s before answering %s", ErrConnectionLost, p.robotID, p.request.Type))
	}
}

// PendingRegistrations returns the number of outstanding registration waits.
func (b *Broker) PendingRegistrations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registrations)
}

// PendingResponses returns the number of outstanding requests.
func (b *Broker) PendingResponses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.responseCount
}

func (b *Broker) reportPendingLocked() {
	if b.metrics != nil {
		b.metrics.SetPending(len(b.registrations), b.responseCount)
	}
}

func (b *Broker) drop(reason, format string, args ...interface{}) {
	logging.Debug(subsystem, format, args...)
	if b.metrics != nil {
		b.metrics.MessageDropped(reason)
	}
}
