package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.mlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func readEvents(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	require.NoError(t, err)
	defer reader.Close()

	var out []Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

// sessionTrace is a short capture: a handshake on conn-a, a resource read
// with an update notification, a heartbeat, then a drop and a second
// connection.
func sessionTrace(base time.Time) []Event {
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }
	return []Event{
		{Timestamp: at(0), ConnectionID: "conn-a", Layer: LayerSession, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityConnection, OldState: "DISCONNECTED", NewState: "CONNECTING"}},
		{Timestamp: at(5), ConnectionID: "conn-a", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, MessageID: 1, Method: "initialize"}},
		{Timestamp: at(9), ConnectionID: "conn-a", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeResponse, MessageID: 1, Method: "initialize"}},
		{Timestamp: at(20), ConnectionID: "conn-a", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, MessageID: 2, Method: "resources/read", URI: "system://info"}},
		{Timestamp: at(24), ConnectionID: "conn-a", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeResponse, MessageID: 2, Method: "resources/read"}},
		{Timestamp: at(30), ConnectionID: "conn-a", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeNotification, Method: "notifications/resources/updated", URI: "system://info"}},
		{Timestamp: at(40), ConnectionID: "conn-a", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryControl,
			ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}},
		{Timestamp: at(50), ConnectionID: "conn-a", Layer: LayerSession, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerTransport, Message: "connection reset"}},
		{Timestamp: at(1050), ConnectionID: "conn-b", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, MessageID: 3, Method: "initialize"}},
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trace := sessionTrace(base)

	got := readEvents(t, createTestLogFile(t, trace), Filter{})
	require.Len(t, got, len(trace))
	for i := range trace {
		assert.True(t, trace[i].Timestamp.Equal(got[i].Timestamp), "event %d timestamp", i)
		assert.Equal(t, trace[i].ConnectionID, got[i].ConnectionID)
		assert.Equal(t, trace[i].Layer, got[i].Layer)
	}
	assert.Equal(t, "system://info", got[3].Message.URI)
	assert.Equal(t, "connection reset", got[7].Error.Message)
}

func TestReaderEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)
	assert.Empty(t, readEvents(t, path, Filter{}))
}

func TestReaderTruncatedFile(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, sessionTrace(base)[:2])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Next()
	require.NoError(t, err)
	_, err = reader.Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
	assert.ErrorContains(t, err, "event 2")
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "absent.mlog"))
	assert.Error(t, err)
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, sessionTrace(base))

	in := DirectionIn
	out := DirectionOut
	wire := LayerWire
	session := LayerSession
	control := CategoryControl
	start := base.Add(10 * time.Millisecond)
	end := base.Add(45 * time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
		check  func(t *testing.T, e Event)
	}{
		{"connection", Filter{ConnectionID: "conn-b"}, 1, func(t *testing.T, e Event) {
			assert.Equal(t, "conn-b", e.ConnectionID)
		}},
		{"direction in", Filter{Direction: &in}, 5, nil},
		{"direction out", Filter{Direction: &out}, 4, func(t *testing.T, e Event) {
			assert.Equal(t, DirectionOut, e.Direction)
		}},
		{"layer wire", Filter{Layer: &wire}, 6, func(t *testing.T, e Event) {
			assert.NotNil(t, e.Message)
		}},
		{"layer session", Filter{Layer: &session}, 2, nil},
		{"category control", Filter{Category: &control}, 1, func(t *testing.T, e Event) {
			assert.Equal(t, ControlMsgPing, e.ControlMsg.Type)
		}},
		{"time range", Filter{TimeStart: &start, TimeEnd: &end}, 4, func(t *testing.T, e Event) {
			assert.False(t, e.Timestamp.Before(start))
			assert.True(t, e.Timestamp.Before(end))
		}},
		{"method", Filter{Method: "initialize"}, 3, func(t *testing.T, e Event) {
			assert.Equal(t, "initialize", e.Message.Method)
		}},
		{"method on one connection", Filter{Method: "initialize", ConnectionID: "conn-a", Direction: &out}, 1, func(t *testing.T, e Event) {
			assert.Equal(t, uint64(1), e.Message.MessageID)
		}},
		{"no match", Filter{Method: "tools/call"}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readEvents(t, path, tt.filter)
			require.Len(t, got, tt.want)
			if tt.check != nil {
				for _, e := range got {
					tt.check(t, e)
				}
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := at.Add(time.Second)
	wire := LayerWire
	e := Event{
		Timestamp:    at,
		ConnectionID: "conn-a",
		Layer:        LayerWire,
		Message:      &MessageEvent{Type: MessageTypeRequest, Method: "resources/read"},
	}

	assert.True(t, Filter{}.Match(e))
	assert.True(t, Filter{Layer: &wire, Method: "resources/read", TimeStart: &at, TimeEnd: &later}.Match(e))
	assert.False(t, Filter{TimeEnd: &at}.Match(e), "end is exclusive")
	assert.False(t, Filter{TimeStart: &later}.Match(e))
	assert.False(t, Filter{ConnectionID: "conn-b"}.Match(e))
	assert.False(t, Filter{Method: "resources/read"}.Match(Event{Timestamp: at, ControlMsg: &ControlMsgEvent{}}))
}
