package log

import (
	"fmt"
	"strings"
	"time"
)

// Event is one captured protocol occurrence. Exactly one payload pointer is
// set, matching Category and Layer. Keys are CBOR integers so capture files
// stay small on constrained links.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"` // one UUID per websocket connection
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	// RemoteAddr is the websocket URL of the server.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`
	// ServerName is taken from the initialize result once known.
	ServerName string `cbor:"7,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction is relative to the client: In is server to client.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Layer names the component that produced an event.
type Layer uint8

const (
	LayerTransport Layer = iota // websocket text frames
	LayerWire                   // decoded JSON-RPC messages
	LayerSession                // lifecycle and subscriptions
)

// Category is the payload kind of an event.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryError
)

// MessageType distinguishes the three JSON-RPC shapes.
type MessageType uint8

const (
	MessageTypeRequest MessageType = iota
	MessageTypeResponse
	MessageTypeNotification
)

// StateEntity names what changed state in a StateChangeEvent.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntitySession
	StateEntitySubscription
)

// ControlMsgType is the kind of heartbeat frame.
type ControlMsgType uint8

const (
	ControlMsgPing ControlMsgType = iota
	ControlMsgPong
)

var (
	directionNames   = []string{"IN", "OUT"}
	layerNames       = []string{"TRANSPORT", "WIRE", "SESSION"}
	categoryNames    = []string{"MESSAGE", "CONTROL", "STATE", "ERROR"}
	messageTypeNames = []string{"REQUEST", "RESPONSE", "NOTIFICATION"}
	stateEntityNames = []string{"CONNECTION", "SESSION", "SUBSCRIPTION"}
	controlMsgNames  = []string{"PING", "PONG"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

// parseEnum matches s case-insensitively against names.
func parseEnum(kind string, names []string, s string) (uint8, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("invalid %s: %q (want one of %s)", kind, s, strings.ToLower(strings.Join(names, ", ")))
}

func (d Direction) String() string      { return enumName(directionNames, uint8(d)) }
func (l Layer) String() string          { return enumName(layerNames, uint8(l)) }
func (c Category) String() string       { return enumName(categoryNames, uint8(c)) }
func (m MessageType) String() string    { return enumName(messageTypeNames, uint8(m)) }
func (s StateEntity) String() string    { return enumName(stateEntityNames, uint8(s)) }
func (c ControlMsgType) String() string { return enumName(controlMsgNames, uint8(c)) }

// ParseDirection accepts "in" or "out" in any case.
func ParseDirection(s string) (Direction, error) {
	v, err := parseEnum("direction", directionNames, s)
	return Direction(v), err
}

// ParseLayer accepts "transport", "wire" or "session" in any case.
func ParseLayer(s string) (Layer, error) {
	v, err := parseEnum("layer", layerNames, s)
	return Layer(v), err
}

// ParseCategory accepts "message", "control", "state" or "error" in any case.
func ParseCategory(s string) (Category, error) {
	v, err := parseEnum("category", categoryNames, s)
	return Category(v), err
}

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 1024

// FrameEvent records a websocket text frame. Size is always the full
// length; Data holds at most MaxFrameData bytes of it.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating it if needed.
func NewFrameEvent(data []byte) *FrameEvent {
	keep := min(len(data), MaxFrameData)
	return &FrameEvent{
		Size:      len(data),
		Data:      append([]byte(nil), data[:keep]...),
		Truncated: keep < len(data),
	}
}

// MessageEvent records a decoded JSON-RPC message.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`
	// MessageID is the request id; zero for notifications.
	MessageID uint64 `cbor:"2,keyasint"`
	Method    string `cbor:"3,keyasint,omitempty"`
	URI       string `cbor:"4,keyasint,omitempty"`

	// ErrorCode and ErrorMessage are set on JSON-RPC error responses.
	ErrorCode    *int   `cbor:"5,keyasint,omitempty"`
	ErrorMessage string `cbor:"6,keyasint,omitempty"`

	// Payload is the raw params (requests, notifications) or result.
	Payload []byte `cbor:"7,keyasint,omitempty"`

	// Latency is the round trip of the request a response answers.
	Latency *time.Duration `cbor:"8,keyasint,omitempty"`
}

// StateChangeEvent records a lifecycle transition. For subscriptions
// NewState is "SUBSCRIBED" or "UNSUBSCRIBED" and Reason carries the URI.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// ControlMsgEvent records a heartbeat frame.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ErrorEventData records a failure. Context names the operation that was
// running, for example "decoding inbound frame".
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"`
}
