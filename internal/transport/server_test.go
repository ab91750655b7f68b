package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboharbor/internal/broker"
	"roboharbor/internal/protocol"
)

const testSecret = "s3cret"

func startServer(t *testing.T, opts ...Option) (*broker.Broker, *Server, string) {
	t.Helper()
	b := broker.New(nil)
	srv := NewServer(b, testSecret, opts...)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return b, srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/robots"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func writeEnvelope(t *testing.T, ws *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	frame, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func register(t *testing.T, ws *websocket.Conn, robotID, podID, secret string) protocol.Envelope {
	t.Helper()
	writeEnvelope(t, ws, protocol.Envelope{Type: protocol.TypeRegister, RobotID: robotID, PodID: podID, Secret: secret})
	return readEnvelope(t, ws)
}

func TestServer_HandshakeRegistersRobot(t *testing.T) {
	b, srv, url := startServer(t)

	wait, err := b.ExpectRegistration("bot-1")
	require.NoError(t, err)

	ws := dial(t, url)
	ack := register(t, ws, "bot-1", "pod-123", testSecret)
	assert.Equal(t, protocol.TypeRegistered, ack.Type)
	assert.Equal(t, "bot-1", ack.RobotID)

	reg, err := wait.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pod-123", reg.PodID)
	assert.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)
}

func TestServer_RejectsWrongSecret(t *testing.T) {
	b, _, url := startServer(t)

	ws := dial(t, url)
	reply := register(t, ws, "bot-1", "pod-1", "guess")
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.Contains(t, reply.Error, "invalid robot secret")

	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, b.Registry().Len())
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	_, _, url := startServer(t)

	ws := dial(t, url)
	writeEnvelope(t, ws, protocol.Envelope{Type: protocol.TypeResponse})
	reply := readEnvelope(t, ws)
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.Contains(t, reply.Error, "invalid handshake")
}

func TestServer_RequestReplyRoundTrip(t *testing.T) {
	b, _, url := startServer(t)

	ws := dial(t, url)
	register(t, ws, "bot-1", "pod-1", testSecret)

	type result struct {
		env protocol.Envelope
		err error
	}
	done := make(chan result, 1)
	go func() {
		req, _ := protocol.NewValidateRequest(map[string]interface{}{"k": "v"})
		env, err := b.SendAndAwait(context.Background(), "bot-1", req, 5*time.Second)
		done <- result{env, err}
	}()

	req := readEnvelope(t, ws)
	assert.Equal(t, protocol.TypeValidate, req.Type)
	require.NotEmpty(t, req.CorrelationID)
	assert.JSONEq(t, `{"k":"v"}`, string(req.Payload))

	writeEnvelope(t, ws, protocol.Envelope{
		Type:          protocol.TypeResponse,
		CorrelationID: req.CorrelationID,
		Success:       protocol.Bool(false),
		Error:         "missing config",
	})

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, protocol.Reply{Success: false, Error: "missing config"}, r.env.Reply())
	case <-time.After(5 * time.Second):
		t.Fatal("no reply delivered")
	}
}

func TestServer_DisconnectFailsPendingRequest(t *testing.T) {
	b, _, url := startServer(t)

	ws := dial(t, url)
	register(t, ws, "bot-1", "pod-1", testSecret)

	done := make(chan error, 1)
	go func() {
		_, err := b.SendAndAwait(context.Background(), "bot-1", protocol.Envelope{Type: protocol.TypeValidate}, 5*time.Second)
		done <- err
	}()

	readEnvelope(t, ws)
	require.NoError(t, ws.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, broker.ErrConnectionLost)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request not failed")
	}
	assert.Eventually(t, func() bool { return b.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_ReconnectSupersedesOldSocket(t *testing.T) {
	b, _, url := startServer(t)

	first := dial(t, url)
	register(t, first, "bot-1", "pod-1", testSecret)
	second := dial(t, url)
	register(t, second, "bot-1", "pod-2", testSecret)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	entry, ok := b.Registry().Get("bot-1")
	require.True(t, ok)
	assert.Equal(t, "pod-2", entry.PodID)
}

func TestServer_KeepalivePing(t *testing.T) {
	_, _, url := startServer(t, WithPingInterval(20*time.Millisecond))

	ws := dial(t, url)
	pinged := make(chan struct{}, 1)
	ws.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	register(t, ws, "bot-1", "pod-1", testSecret)

	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestServer_HandshakeTimeoutClosesSilentSocket(t *testing.T) {
	b, srv, url := startServer(t, WithHandshakeTimeout(50*time.Millisecond))

	ws := dial(t, url)
	reply := readEnvelope(t, ws)
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.Contains(t, reply.Error, "failed to read handshake")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, 0, b.Registry().Len())
	assert.Equal(t, 0, srv.Connections())
}
