package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the value of the "jsonrpc" member on every outbound request.
const Version = "2.0"

// Method names understood by the server.
const (
	MethodInitialize           = "initialize"
	MethodResourcesList        = "resources/list"
	MethodResourcesRead        = "resources/read"
	MethodResourcesSubscribe   = "resources/subscribe"
	MethodResourcesUnsubscribe = "resources/unsubscribe"
)

// NotificationPrefix marks a method as a server notification.
const NotificationPrefix = "notifications/"

// MethodResourceUpdated is sent by the server when a subscribed resource changes.
const MethodResourceUpdated = NotificationPrefix + "resources/updated"

// Control frame types.
const (
	ControlPing = "ping"
	ControlPong = "pong"
)

// Request is an outbound correlated request.
type Request struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

// Validate checks if the request can be sent.
func (r *Request) Validate() error {
	if r.ID == 0 {
		return fmt.Errorf("id 0 is reserved")
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	if IsNotificationMethod(r.Method) {
		return fmt.Errorf("method %q is in the notification namespace", r.Method)
	}
	return nil
}

// Error is the error member of a response.
type Error struct {
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is an inbound reply to a Request.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Validate checks that exactly one of result and error is present.
func (r *Response) Validate() error {
	hasResult := len(r.Result) > 0
	hasError := r.Error != nil
	switch {
	case hasResult && hasError:
		return fmt.Errorf("%w: response %d carries both result and error", ErrProtocol, r.ID)
	case !hasResult && !hasError:
		return fmt.Errorf("%w: response %d carries neither result nor error", ErrProtocol, r.ID)
	}
	return nil
}

// Notification is an inbound, uncorrelated server message.
type Notification struct {
	Version string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Control is a one-way liveness frame.
type Control struct {
	Type string `json:"type"`
}

// IsNotificationMethod reports whether method is in the notification namespace.
func IsNotificationMethod(method string) bool {
	return strings.HasPrefix(method, NotificationPrefix)
}

// Kind classifies a decoded inbound frame.
type Kind uint8

const (
	// KindUnknown is a well-formed object that fits no known shape.
	KindUnknown Kind = iota

	// KindResponse carries an id.
	KindResponse

	// KindNotification carries a method in the notification namespace.
	KindNotification

	// KindControl is a ping or pong frame.
	KindControl
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "RESPONSE"
	case KindNotification:
		return "NOTIFICATION"
	case KindControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Message is a decoded inbound frame. Exactly one of Response, Notification
// and Control is set, matching Kind. For KindUnknown all three are nil.
type Message struct {
	Kind         Kind
	Method       string
	Response     *Response
	Notification *Notification
	Control      *Control
}

// envelope is the union of every inbound frame shape.
type envelope struct {
	Version string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	Type    string          `json:"type"`
}

// jsonNull is the literal JSON null.
var jsonNull = []byte("null")

// isAbsent reports whether a raw member was missing or explicitly null.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, jsonNull)
}
