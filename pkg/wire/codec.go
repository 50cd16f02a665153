package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProtocol is wrapped by every error caused by a malformed frame or an
// unexpected payload shape.
var ErrProtocol = errors.New("protocol error")

// ErrRejected marks a result whose success flag is false.
var ErrRejected = errors.New("request rejected by server")

// emptyParams is sent when a request has no parameters.
var emptyParams = struct{}{}

// EncodeRequest encodes a request to JSON text.
// A nil Params is sent as an empty object.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	out := *req
	out.Version = Version
	if out.Params == nil {
		out.Params = emptyParams
	}
	return json.Marshal(&out)
}

// EncodePing encodes a heartbeat ping frame.
func EncodePing() []byte {
	return []byte(`{"type":"ping"}`)
}

// Decode parses one inbound frame and classifies it.
//
// Classification order: a method in the notification namespace wins, then a
// frame with an id is a response, then a bare "type" member is a control
// frame. Anything else decodes as KindUnknown.
func Decode(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: frame is not a JSON object", ErrProtocol)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	msg := &Message{Method: env.Method}
	switch {
	case env.Method != "" && IsNotificationMethod(env.Method):
		msg.Kind = KindNotification
		msg.Notification = &Notification{
			Version: env.Version,
			Method:  env.Method,
			Params:  env.Params,
		}
	case env.ID != nil && env.Method == "":
		msg.Kind = KindResponse
		resp := &Response{ID: *env.ID, Error: env.Error}
		if !isAbsent(env.Result) {
			resp.Result = env.Result
		}
		msg.Response = resp
	case env.Type != "" && env.ID == nil && env.Method == "":
		msg.Kind = KindControl
		msg.Control = &Control{Type: env.Type}
	default:
		msg.Kind = KindUnknown
	}
	return msg, nil
}

// DecodeParams decodes a notification's params into v.
func DecodeParams(n *Notification, v any) error {
	if isAbsent(n.Params) {
		return fmt.Errorf("%w: %s has no params", ErrProtocol, n.Method)
	}
	if err := json.Unmarshal(n.Params, v); err != nil {
		return fmt.Errorf("%w: %s params: %v", ErrProtocol, n.Method, err)
	}
	return nil
}
