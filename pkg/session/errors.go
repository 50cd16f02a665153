package session

import (
	"errors"

	"github.com/esp32-mcp/mcp-client-go/pkg/connection"
	"github.com/esp32-mcp/mcp-client-go/pkg/rpc"
	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// Error kinds surfaced by session operations. Match them with errors.Is,
// and RemoteError with errors.As.
var (
	// ErrNotConnected is returned when a request is issued while not open.
	ErrNotConnected = rpc.ErrNotConnected

	// ErrTimeout is returned when no response arrives in time.
	ErrTimeout = rpc.ErrTimeout

	// ErrConnectionLost is returned for requests invalidated by a closure.
	ErrConnectionLost = rpc.ErrConnectionLost

	// ErrProtocol is returned for malformed frames and unexpected payloads.
	ErrProtocol = wire.ErrProtocol

	// ErrReconnectionExhausted is reported once automatic retries give up.
	ErrReconnectionExhausted = connection.ErrReconnectionExhausted

	// ErrRejected is returned when the server answers with success=false.
	ErrRejected = wire.ErrRejected

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// RemoteError is a server-reported error response.
type RemoteError = rpc.RemoteError
