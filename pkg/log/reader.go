package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Method keeps message events whose JSON-RPC method equals it. Frame,
	// control and state events never match a method filter.
	Method string
}

// Match reports whether event satisfies every set criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && f.ConnectionID != event.ConnectionID:
	case f.Direction != nil && *f.Direction != event.Direction:
	case f.Layer != nil && *f.Layer != event.Layer:
	case f.Category != nil && *f.Category != event.Category:
	case !f.inRange(event.Timestamp):
	case f.Method != "" && (event.Message == nil || event.Message.Method != f.Method):
	default:
		return true
	}
	return false
}

func (f Filter) inRange(ts time.Time) bool {
	if f.TimeStart != nil && ts.Before(*f.TimeStart) {
		return false
	}
	return f.TimeEnd == nil || ts.Before(*f.TimeEnd)
}

// Reader streams events from a capture file, skipping those the filter
// rejects.
type Reader struct {
	file   *os.File
	dec    *cbor.Decoder
	filter Filter
	seen   int
}

// NewReader opens a capture file and yields every event in it.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and yields only events matching
// filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, dec: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF once the file is
// exhausted. A partially written trailing event is reported as an error
// naming its position.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, fmt.Errorf("event %d: %w", r.seen+1, err)
		}
		r.seen++
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
