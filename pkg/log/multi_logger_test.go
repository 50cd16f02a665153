package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) Log(e Event) { r.events = append(r.events, e) }

type closingRecorder struct {
	recorder
	closed int
	err    error
}

func (c *closingRecorder) Close() error {
	c.closed++
	return c.err
}

func pingEvent() Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-7",
		Direction:    DirectionOut,
		Layer:        LayerTransport,
		Category:     CategoryControl,
		ControlMsg:   &ControlMsgEvent{Type: ControlMsgPing},
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	multi := NewMultiLogger(a, b)

	multi.Log(pingEvent())

	for _, r := range []*recorder{a, b} {
		require.Len(t, r.events, 1)
		assert.Equal(t, "conn-7", r.events[0].ConnectionID)
	}
}

func TestMultiLoggerDropsNilAndFlattens(t *testing.T) {
	a, b, c := &recorder{}, &recorder{}, &recorder{}
	inner := NewMultiLogger(b, nil, c)
	multi := NewMultiLogger(nil, a, inner, (*MultiLogger)(nil))

	assert.Equal(t, 3, multi.Len())
	multi.Log(pingEvent())
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Len(t, c.events, 1)
}

func TestMultiLoggerEmpty(t *testing.T) {
	multi := NewMultiLogger()
	assert.Zero(t, multi.Len())
	assert.NotPanics(t, func() { multi.Log(pingEvent()) })
	assert.NoError(t, multi.Close())
}

func TestMultiLoggerClose(t *testing.T) {
	broken := errors.New("disk full")
	ok := &closingRecorder{}
	bad := &closingRecorder{err: broken}
	plain := &recorder{}

	err := NewMultiLogger(ok, plain, bad).Close()
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 1, ok.closed)
	assert.Equal(t, 1, bad.closed)
}

func TestMultiLoggerWithFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.mlog")
	file, err := NewFileLogger(path)
	require.NoError(t, err)
	console := &recorder{}

	multi := NewMultiLogger(file, console)
	multi.Log(pingEvent())
	require.NoError(t, multi.Close())

	assert.Len(t, console.events, 1)
	got := readEvents(t, path, Filter{})
	require.Len(t, got, 1)
	assert.Equal(t, ControlMsgPing, got[0].ControlMsg.Type)
}
