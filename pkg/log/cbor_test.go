package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	code := -32601
	latency := 15 * time.Millisecond
	frameCode := 3

	cases := map[string]Event{
		"header only": {
			ConnectionID: "abc12345-def6-7890-abcd-ef1234567890",
			Direction:    DirectionOut,
			Layer:        LayerWire,
			Category:     CategoryMessage,
			RemoteAddr:   "ws://192.168.1.100:80/ws",
			ServerName:   "ESP32-MCP",
		},
		"frame": {
			Direction: DirectionIn,
			Layer:     LayerTransport,
			Category:  CategoryMessage,
			Frame:     &FrameEvent{Size: 256, Data: []byte(`{"jsonrpc":"2.0"`), Truncated: true},
		},
		"error response": {
			Direction: DirectionIn,
			Layer:     LayerWire,
			Category:  CategoryMessage,
			Message: &MessageEvent{
				Type:         MessageTypeResponse,
				MessageID:    1 << 40,
				Method:       "resources/read",
				URI:          "sensor://temperature",
				ErrorCode:    &code,
				ErrorMessage: "Method not found",
				Payload:      []byte(`{"success":false}`),
				Latency:      &latency,
			},
		},
		"state": {
			Layer:       LayerSession,
			Category:    CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntitySession, OldState: "OPEN", NewState: "RECONNECTING", Reason: "connection lost"},
		},
		"pong": {
			Direction:  DirectionIn,
			Layer:      LayerTransport,
			Category:   CategoryControl,
			ControlMsg: &ControlMsgEvent{Type: ControlMsgPong},
		},
		"error": {
			Layer:    LayerWire,
			Category: CategoryError,
			Error:    &ErrorEventData{Layer: LayerWire, Message: "malformed frame", Code: &frameCode, Context: "decoding inbound frame"},
		},
	}

	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			want.Timestamp = ts
			data, err := EncodeEvent(want)
			require.NoError(t, err)

			got, err := DecodeEvent(data)
			require.NoError(t, err)
			assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v", got.Timestamp)
			got.Timestamp = want.Timestamp
			assert.Equal(t, want, got)
		})
	}
}

func TestEventEncodingIsCanonical(t *testing.T) {
	e := Event{
		Timestamp:    time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC),
		ConnectionID: "conn-1",
		Message:      &MessageEvent{Type: MessageTypeRequest, MessageID: 4, Method: "resources/subscribe", URI: "system://info"},
	}
	a, err := EncodeEvent(e)
	require.NoError(t, err)
	b, err := EncodeEvent(e)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var keyed map[uint64]any
	require.NoError(t, eventDec.Unmarshal(a, &keyed))
	for _, k := range []uint64{1, 2, 3, 4, 5, 11} {
		assert.Contains(t, keyed, k)
	}
	assert.NotContains(t, keyed, uint64(6), "empty RemoteAddr is omitted")
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, enc.Encode(Event{Message: &MessageEvent{Type: MessageTypeRequest, MessageID: id}}))
	}

	dec := NewDecoder(&buf)
	for id := uint64(1); id <= 3; id++ {
		var e Event
		require.NoError(t, dec.Decode(&e))
		assert.Equal(t, id, e.Message.MessageID)
	}
}

func TestDecodeEventRejectsDeepNesting(t *testing.T) {
	data := append(bytes.Repeat([]byte{0x81}, maxDecodeDepth+4), 0x00)
	_, err := DecodeEvent(data)
	assert.Error(t, err)
}

func TestDecodeEventGarbage(t *testing.T) {
	got, err := DecodeEvent([]byte{0xff, 0x00})
	assert.Error(t, err)
	assert.Equal(t, Event{}, got)
}
