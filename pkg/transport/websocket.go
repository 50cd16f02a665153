package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
)

// Websocket defaults.
const (
	// DefaultHandshakeTimeout bounds the websocket opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// closeGracePeriod bounds the close frame write on Close.
	closeGracePeriod = time.Second
)

// WSDialer dials websocket connections.
type WSDialer struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// Header is sent with the opening handshake.
	Header http.Header

	// HandshakeTimeout bounds the opening handshake (default: 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write (default: 10s).
	WriteTimeout time.Duration

	// Logger is the operational logger. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives frame and connection state events.
	ProtocolLogger log.Logger
}

// ValidateURL checks that raw is an absolute ws:// or wss:// URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// Dial opens a websocket connection and starts its read loop.
func (d *WSDialer) Dial(ctx context.Context, h Handler) (Conn, error) {
	if err := ValidateURL(d.URL); err != nil {
		return nil, err
	}

	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c := &WSConn{
		id:             uuid.New().String(),
		url:            d.URL,
		ws:             ws,
		handler:        h,
		writeTimeout:   writeTimeout,
		logger:         d.Logger,
		protocolLogger: d.ProtocolLogger,
		done:           make(chan struct{}),
	}

	if c.logger != nil {
		c.logger.Debug("websocket connected", "url", d.URL, "conn_id", c.id)
	}
	c.logState("", "OPEN", "")

	go c.readLoop()
	return c, nil
}

// WSConn is a websocket connection.
type WSConn struct {
	id           string
	url          string
	ws           *websocket.Conn
	handler      Handler
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	logger         *slog.Logger
	protocolLogger log.Logger
}

// ID returns the connection's UUID.
func (c *WSConn) ID() string {
	return c.id
}

// IsOpen reports whether the connection can send.
func (c *WSConn) IsOpen() bool {
	return !c.closed.Load()
}

// Done is closed after the read loop exits and HandleClose returned.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// Send writes data as a single text frame.
func (c *WSConn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		// A failed write leaves the stream in an unknown state.
		c.shutdown()
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	c.logFrame(data, log.DirectionOut)
	return nil
}

// Close sends a close frame and closes the underlying connection.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		c.writeMu.Unlock()

		c.ws.Close()
	})
	return nil
}

// shutdown closes the socket without a close handshake.
func (c *WSConn) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.ws.Close()
	})
}

// readLoop delivers inbound messages until the connection fails or closes.
func (c *WSConn) readLoop() {
	defer close(c.done)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			localClose := c.closed.Load()
			c.shutdown()

			reason := ""
			var cause error
			if !localClose {
				cause = err
				reason = err.Error()
			}
			if c.logger != nil {
				c.logger.Debug("websocket closed", "conn_id", c.id, "local", localClose, "error", cause)
			}
			c.logState("OPEN", "CLOSED", reason)

			if c.handler != nil {
				c.handler.HandleClose(c, cause)
			}
			return
		}

		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		c.logFrame(data, log.DirectionIn)
		if c.handler != nil {
			c.handler.HandleMessage(c, data)
		}
	}
}

func (c *WSConn) logFrame(data []byte, dir log.Direction) {
	if c.protocolLogger == nil {
		return
	}
	c.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		RemoteAddr:   c.url,
		Frame:        log.NewFrameEvent(data),
	})
}

func (c *WSConn) logState(oldState, newState, reason string) {
	if c.protocolLogger == nil {
		return
	}
	c.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.url,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// IsNormalClose reports whether err is a websocket close with a normal or
// going-away status.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
