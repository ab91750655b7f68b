// Package transport accepts robot websocket connections and hands their
// frames to the broker.
package transport

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roboharbor/internal/broker"
	"roboharbor/internal/protocol"
	"roboharbor/internal/registry"
	"roboharbor/pkg/logging"
)

const subsystem = "Transport"

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 25 * time.Second
	defaultWriteWait        = 10 * time.Second
	maxFrameSize            = 1 << 20
)

// ErrInvalidSecret rejects robots presenting the wrong shared secret.
var ErrInvalidSecret = errors.New("invalid robot secret")

// Broker is the part of the broker the transport drives.
type Broker interface {
	HandleConnect(conn registry.Conn, hello protocol.Hello) broker.Registration
	HandleMessage(conn registry.Conn, payload []byte) bool
	HandleDisconnect(conn registry.Conn)
}

// Server is an http.Handler that upgrades robot connections.
type Server struct {
	broker   Broker
	secret   string
	upgrader websocket.Upgrader

	handshakeTimeout time.Duration
	pingInterval     time.Duration
	writeWait        time.Duration

	mu    sync.Mutex
	conns map[string]*conn
}

// Option configures a Server.
type Option func(*Server)

// WithHandshakeTimeout bounds how long a new connection may take to send its
// register frame.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.handshakeTimeout = d
	}
}

// WithPingInterval sets the keepalive period. Connections that miss two pongs
// are dropped.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pingInterval = d
	}
}

// NewServer creates a transport server. An empty secret accepts any robot.
func NewServer(b Broker, secret string, opts ...Option) *Server {
	s := &Server{
		broker:           b,
		secret:           secret,
		handshakeTimeout: defaultHandshakeTimeout,
		pingInterval:     defaultPingInterval,
		writeWait:        defaultWriteWait,
		conns:            make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Robots are not browsers; there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(subsystem, "Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws, writeWait: s.writeWait}
	ws.SetReadLimit(maxFrameSize)

	hello, err := s.handshake(c)
	if err != nil {
		logging.Warn(subsystem, "Rejecting connection %s from %s: %v", c.id, r.RemoteAddr, err)
		_ = c.send(protocol.NewError(err.Error()))
		_ = c.Close()
		return
	}

	s.track(c)
	defer s.untrack(c)

	s.broker.HandleConnect(c, hello)
	s.serve(c)
	s.broker.HandleDisconnect(c)
	_ = c.Close()
}

func (s *Server) handshake(c *conn) (protocol.Hello, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
		return protocol.Hello{}, err
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("failed to read handshake: %w", err)
	}
	hello, err := protocol.DecodeHello(data)
	if err != nil {
		return protocol.Hello{}, err
	}
	if s.secret != "" && subtle.ConstantTimeCompare([]byte(hello.Secret), []byte(s.secret)) != 1 {
		return protocol.Hello{}, ErrInvalidSecret
	}
	if err := c.send(protocol.NewRegistered(hello.RobotID)); err != nil {
		return protocol.Hello{}, fmt.Errorf("failed to acknowledge handshake: %w", err)
	}
	return hello, nil
}

// serve pumps frames into the broker until the connection fails.
func (s *Server) serve(c *conn) {
	pongWait := 2 * s.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(c, done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug(subsystem, "Connection %s read error: %v", c.id, err)
			}
			return
		}
		s.broker.HandleMessage(c, data)
	}
}

func (s *Server) keepalive(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				logging.Debug(subsystem, "Ping to connection %s failed: %v", c.id, err)
				return
			}
		}
	}
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// Connections returns the number of robots currently attached.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every robot. In-flight ServeHTTP calls then return.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// conn adapts a websocket to registry.Conn. Writes are serialised.
type conn struct {
	id        string
	ws        *websocket.Conn
	writeWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ registry.Conn = (*conn)(nil)

func (c *conn) ID() string {
	return c.id
}

// Send writes one text frame. The write deadline is the earlier of ctx's
// deadline and the configured write wait.
func (c *conn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.Send(context.Background(), frame)
}

// Close sends a close frame and closes the socket. Later calls are no-ops.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
