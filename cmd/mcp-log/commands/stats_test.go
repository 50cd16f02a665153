package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
)

func TestStatsAggregation(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	events := sampleSession(ts)
	events = append(events,
		log.Event{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "abc12345",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:   log.MessageTypeNotification,
				Method: "notifications/resources/updated",
				URI:    "sensor://temperature",
			},
		},
		log.Event{
			Timestamp:    ts.Add(2 * time.Second),
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
		},
		log.Event{
			Timestamp:    ts.Add(3 * time.Second),
			ConnectionID: "def67890",
			RemoteAddr:   "192.168.1.50:9000",
			Layer:        log.LayerSession,
			Category:     log.CategoryError,
			Error:        &log.ErrorEventData{Layer: log.LayerSession, Message: "connection lost"},
		},
	)

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	expects := []string{
		"Total Events: 6",
		"WIRE:",
		"SESSION:",
		"resources/read",
		"requests=1 responses=1 errors=0",
		"avg=12.000ms",
		"tools/call",
		"notifications/resources/updated",
		"Heartbeat: 1 pings, 0 pongs",
		"Connections: 2",
		"Server: ESP32-MCP",
		"Remote: 192.168.1.50:9000",
		"Errors: 1",
	}
	for _, want := range expects {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestMethodStatsAvgLatency(t *testing.T) {
	s := newStats()
	for _, ms := range []int{10, 30} {
		d := time.Duration(ms) * time.Millisecond
		s.add(log.Event{Message: &log.MessageEvent{Type: log.MessageTypeResponse, Method: "resources/list", Latency: &d}})
	}
	s.add(log.Event{Message: &log.MessageEvent{Type: log.MessageTypeResponse, Method: "resources/list"}})

	m := s.Methods["resources/list"]
	if m.Responses != 3 {
		t.Errorf("expected 3 responses, got %d", m.Responses)
	}
	if m.AvgLatency() != 20*time.Millisecond {
		t.Errorf("expected 20ms average, got %s", m.AvgLatency())
	}
	if m.MaxLatency != 30*time.Millisecond {
		t.Errorf("expected 30ms max, got %s", m.MaxLatency)
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)
	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
