package transport

import (
	"context"
	"errors"
)

// Transport errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidURL       = errors.New("invalid websocket URL")
)

// Conn is a message-oriented, ordered, reliable link to a server.
// Implemented by WSConn.
type Conn interface {
	// ID returns the unique identifier of this connection.
	ID() string

	// Send writes one text message. It returns ErrConnectionClosed once
	// the connection is closed.
	Send(data []byte) error

	// IsOpen reports whether the connection can send.
	IsOpen() bool

	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// Handler receives connection events.
//
// HandleMessage is called from the connection's read goroutine, one message
// at a time in arrival order. HandleClose is called exactly once per
// connection after the last HandleMessage.
type Handler interface {
	HandleMessage(conn Conn, data []byte)
	HandleClose(conn Conn, err error)
}

// Dialer establishes connections.
// Implemented by WSDialer.
type Dialer interface {
	// Dial opens a connection and starts delivering events to h.
	Dial(ctx context.Context, h Handler) (Conn, error)
}

// Link is the sending half of a connection.
type Link interface {
	Send(data []byte) error
	IsOpen() bool
}

// Compile-time interface satisfaction checks.
var (
	_ Conn   = (*WSConn)(nil)
	_ Link   = (*WSConn)(nil)
	_ Dialer = (*WSDialer)(nil)
)
