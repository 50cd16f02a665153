package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
)

// echoServer echoes text frames and can drop its clients.
type echoServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *echoServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, ws)
	s.mu.Unlock()

	defer ws.Close()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func (s *echoServer) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *echoServer) Close() {
	s.DropAll()
	s.server.Close()
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []string
	closes   int
	closeErr error
	closed   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{})}
}

func (h *recordingHandler) HandleMessage(_ Conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, string(data))
}

func (h *recordingHandler) HandleClose(_ Conn, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	h.closeErr = err
	close(h.closed)
}

func (h *recordingHandler) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) Events() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("ws://192.168.1.10/ws"))
	assert.NoError(t, ValidateURL("wss://device.local:443/ws"))
	assert.ErrorIs(t, ValidateURL("http://device.local/ws"), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("ws:///ws"), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("://bad"), ErrInvalidURL)
}

func TestWSConnSendReceive(t *testing.T) {
	srv := newEchoServer(t)
	h := newRecordingHandler()
	plog := &captureLogger{}

	d := &WSDialer{URL: srv.URL(), ProtocolLogger: plog}
	conn, err := d.Dial(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, conn.IsOpen())
	assert.Len(t, conn.ID(), 36)

	require.NoError(t, conn.Send([]byte(`{"a":1}`)))
	require.NoError(t, conn.Send([]byte(`{"a":2}`)))

	require.Eventually(t, func() bool { return len(h.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, h.Messages())

	require.NoError(t, conn.Close())
	<-h.closed
	<-conn.(*WSConn).Done()

	assert.False(t, conn.IsOpen())
	assert.ErrorIs(t, conn.Send([]byte("x")), ErrConnectionClosed)
	assert.NoError(t, h.closeErr, "local close reports no cause")
	assert.Equal(t, 1, h.closes)

	// Close is idempotent.
	assert.NoError(t, conn.Close())

	var frames, states int
	for _, e := range plog.Events() {
		assert.Equal(t, conn.ID(), e.ConnectionID)
		if e.Frame != nil {
			frames++
		}
		if e.StateChange != nil {
			states++
		}
	}
	assert.Equal(t, 4, frames)
	assert.Equal(t, 2, states)
}

func TestWSConnRemoteDrop(t *testing.T) {
	srv := newEchoServer(t)
	h := newRecordingHandler()

	d := &WSDialer{URL: srv.URL()}
	conn, err := d.Dial(context.Background(), h)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) == 1
	}, time.Second, 5*time.Millisecond)
	srv.DropAll()

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleClose not called")
	}
	<-conn.(*WSConn).Done()

	assert.Error(t, h.closeErr)
	assert.False(t, conn.IsOpen())
	assert.NoError(t, conn.Close())
}

func TestWSDialFailure(t *testing.T) {
	srv := newEchoServer(t)
	url := srv.URL()
	srv.Close()

	d := &WSDialer{URL: url, HandshakeTimeout: time.Second}
	_, err := d.Dial(context.Background(), newRecordingHandler())
	assert.Error(t, err)

	_, err = (&WSDialer{URL: "http://example.com"}).Dial(context.Background(), newRecordingHandler())
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestHeartbeatOverWebsocket(t *testing.T) {
	srv := newEchoServer(t)
	h := newRecordingHandler()

	conn, err := (&WSDialer{URL: srv.URL()}).Dial(context.Background(), h)
	require.NoError(t, err)

	hb := NewHeartbeat(10 * time.Millisecond)
	hb.Start(conn)
	require.Eventually(t, func() bool { return len(h.Messages()) >= 2 }, time.Second, 5*time.Millisecond)
	hb.Stop()

	for _, m := range h.Messages() {
		assert.JSONEq(t, `{"type":"ping"}`, m)
	}

	conn.Close()
	<-conn.(*WSConn).Done()
}

func TestIsNormalClose(t *testing.T) {
	assert.True(t, IsNormalClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.True(t, IsNormalClose(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.False(t, IsNormalClose(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	assert.False(t, IsNormalClose(nil))
}
