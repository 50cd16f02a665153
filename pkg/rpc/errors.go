package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request errors.
var (
	// ErrNotConnected is returned when a request is issued with no link attached.
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout is returned when no response arrives before the request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionLost is returned for requests pending when the link went away.
	ErrConnectionLost = errors.New("connection lost")
)

// RemoteError is a server-reported error for a single request.
type RemoteError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "remote error"
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Method, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Method, msg)
}
