package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Conn is a live robot connection as seen by the harbor.
//
// Implementations must allow Send and Close to be called from multiple
// goroutines.
type Conn interface {
	// ID uniquely identifies the connection for its lifetime.
	ID() string
	// Send writes one frame to the robot.
	Send(ctx context.Context, payload []byte) error
	// Close terminates the connection.
	Close() error
}

// Entry describes a robot that currently holds a connection.
type Entry struct {
	RobotID     string
	PodID       string
	Conn        Conn
	ConnectedAt time.Time
}

// Registry maps robot identifiers to their live connection.
//
// The zero value is not usable; create one with New. A Registry is empty at
// startup and entries are removed one by one as connections close.
type Registry struct {
	mu      sync.RWMutex
	byRobot map[string]Entry
	byConn  map[string]string
	now     func() time.Time
}

// Clock supplies connection timestamps.
type Clock interface {
	Now() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return NewWithClock(nil)
}

// NewWithClock creates an empty registry that stamps entries using clock.
// A nil clock uses the system time.
func NewWithClock(clock Clock) *Registry {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Registry{
		byRobot: make(map[string]Entry),
		byConn:  make(map[string]string),
		now:     now,
	}
}

// Upsert records conn as the connection of robotID. If the robot was already
// connected through a different connection, that previous entry is returned so
// the caller can tear it down.
func (r *Registry) Upsert(robotID, podID string, conn Conn) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced := r.byRobot[robotID]
	if replaced {
		delete(r.byConn, previous.Conn.ID())
	}
	if robot, ok := r.byConn[conn.ID()]; ok && robot != robotID {
		// The same socket re-announced itself under another identifier.
		delete(r.byRobot, robot)
	}

	r.byRobot[robotID] = Entry{
		RobotID:     robotID,
		PodID:       podID,
		Conn:        conn,
		ConnectedAt: r.now(),
	}
	r.byConn[conn.ID()] = robotID

	if replaced && previous.Conn.ID() == conn.ID() {
		return Entry{}, false
	}
	return previous, replaced
}

// Remove deletes the entry owned by conn. It is a no-op when the robot has
// since reconnected through another connection.
func (r *Registry) Remove(conn Conn) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	robotID, ok := r.byConn[conn.ID()]
	if !ok {
		return Entry{}, false
	}
	delete(r.byConn, conn.ID())

	entry, ok := r.byRobot[robotID]
	if !ok || entry.Conn.ID() != conn.ID() {
		return Entry{}, false
	}
	delete(r.byRobot, robotID)
	return entry, true
}

// Get returns the entry for robotID.
func (r *Registry) Get(robotID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byRobot[robotID]
	return entry, ok
}

// RobotFor returns the robot identifier announced on conn.
func (r *Registry) RobotFor(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	robotID, ok := r.byConn[conn.ID()]
	return robotID, ok
}

// List returns all entries sorted by robot identifier.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.byRobot))
	for _, entry := range r.byRobot {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RobotID < entries[j].RobotID
	})
	return entries
}

// Len returns the number of connected robots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRobot)
}
