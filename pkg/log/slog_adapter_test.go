package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureAttrs logs one event through a JSON handler and returns the record.
func captureAttrs(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	adapter.Log(event)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestSlogAdapterFrame(t *testing.T) {
	rec := captureAttrs(t, Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		RemoteAddr:   "ws://192.168.4.1/ws",
		Frame:        &FrameEvent{Size: 4096, Data: []byte(`{"jsonrpc"`), Truncated: true},
	})

	assert.Equal(t, "protocol", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "conn-1", rec["conn_id"])
	assert.Equal(t, "IN", rec["direction"])
	assert.Equal(t, "TRANSPORT", rec["layer"])
	assert.Equal(t, "ws://192.168.4.1/ws", rec["remote"])
	assert.EqualValues(t, 4096, rec["frame_size"])
	assert.Equal(t, true, rec["truncated"])
}

func TestSlogAdapterErrorResponse(t *testing.T) {
	code := -32601
	latency := 8 * time.Millisecond
	rec := captureAttrs(t, Event{
		Timestamp:  time.Now(),
		Direction:  DirectionIn,
		Layer:      LayerWire,
		Category:   CategoryMessage,
		ServerName: "ESP32-MCP",
		Message: &MessageEvent{
			Type:         MessageTypeResponse,
			MessageID:    17,
			Method:       "tools/call",
			ErrorCode:    &code,
			ErrorMessage: "Method not found",
			Latency:      &latency,
		},
	})

	assert.Equal(t, "ESP32-MCP", rec["server"])
	assert.Equal(t, "RESPONSE", rec["msg_type"])
	assert.EqualValues(t, 17, rec["msg_id"])
	assert.Equal(t, "tools/call", rec["method"])
	assert.EqualValues(t, -32601, rec["error_code"])
	assert.Equal(t, "Method not found", rec["error_msg"])
	assert.EqualValues(t, latency, rec["latency"])
	assert.NotContains(t, rec, "uri")
}

func TestSlogAdapterNotification(t *testing.T) {
	rec := captureAttrs(t, Event{
		Direction: DirectionIn,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message:   &MessageEvent{Type: MessageTypeNotification, Method: "notifications/resources/updated", URI: "sensor://temperature"},
	})

	assert.Equal(t, "NOTIFICATION", rec["msg_type"])
	assert.NotContains(t, rec, "msg_id")
	assert.Equal(t, "sensor://temperature", rec["uri"])
}

func TestSlogAdapterStateAndControl(t *testing.T) {
	rec := captureAttrs(t, Event{
		Layer:       LayerSession,
		Category:    CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityConnection, OldState: "OPEN", NewState: "RECONNECTING", Reason: "heartbeat timeout"},
	})
	assert.Equal(t, "SESSION", rec["layer"])
	assert.Equal(t, "OPEN", rec["old_state"])
	assert.Equal(t, "RECONNECTING", rec["new_state"])
	assert.Equal(t, "heartbeat timeout", rec["reason"])

	rec = captureAttrs(t, Event{
		Direction:  DirectionOut,
		Layer:      LayerTransport,
		Category:   CategoryControl,
		ControlMsg: &ControlMsgEvent{Type: ControlMsgPing},
	})
	assert.Equal(t, "PING", rec["ctrl_type"])
}

func TestSlogAdapterErrorsAtWarn(t *testing.T) {
	rec := captureAttrs(t, Event{
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryError,
		Error:     &ErrorEventData{Layer: LayerTransport, Message: "read: connection reset"},
	})

	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "read: connection reset", rec["error_msg"])
	assert.NotContains(t, rec, "error_context")
}
