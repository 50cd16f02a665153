package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Methods           map[string]*MethodStats
	Notifications     map[string]int
	Connections       map[string]*ConnectionStats
	Pings             int
	Pongs             int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// MethodStats holds request/response statistics for one method.
type MethodStats struct {
	Requests     int
	Responses    int
	Errors       int
	TotalLatency time.Duration
	MaxLatency   time.Duration
	timed        int
}

// AvgLatency returns the mean response latency, or 0 if none was recorded.
func (m *MethodStats) AvgLatency() time.Duration {
	if m.timed == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.timed)
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
	ServerName string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Methods:           make(map[string]*MethodStats),
		Notifications:     make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	// Track time range
	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conn, ok := s.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		if event.RemoteAddr != "" && conn.RemoteAddr == "" {
			conn.RemoteAddr = event.RemoteAddr
		}
		if event.ServerName != "" && conn.ServerName == "" {
			conn.ServerName = event.ServerName
		}
	}

	if msg := event.Message; msg != nil {
		switch msg.Type {
		case log.MessageTypeNotification:
			s.Notifications[msg.Method]++
		case log.MessageTypeRequest:
			s.method(msg.Method).Requests++
		case log.MessageTypeResponse:
			m := s.method(msg.Method)
			m.Responses++
			if msg.ErrorCode != nil || msg.ErrorMessage != "" {
				m.Errors++
			}
			if msg.Latency != nil {
				m.timed++
				m.TotalLatency += *msg.Latency
				if *msg.Latency > m.MaxLatency {
					m.MaxLatency = *msg.Latency
				}
			}
		}
	}

	if event.ControlMsg != nil {
		switch event.ControlMsg.Type {
		case log.ControlMsgPing:
			s.Pings++
		case log.ControlMsgPong:
			s.Pongs++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

func (s *Stats) method(name string) *MethodStats {
	if name == "" {
		name = "(unknown)"
	}
	m, ok := s.Methods[name]
	if !ok {
		m = &MethodStats{}
		s.Methods[name] = m
	}
	return m
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== MCP Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Methods) > 0 {
		fmt.Fprintln(w, "Methods:")
		for _, name := range sortedKeys(stats.Methods) {
			m := stats.Methods[name]
			fmt.Fprintf(w, "  %-24s requests=%d responses=%d errors=%d", name, m.Requests, m.Responses, m.Errors)
			if m.timed > 0 {
				fmt.Fprintf(w, " avg=%s max=%s", formatDuration(m.AvgLatency()), formatDuration(m.MaxLatency))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if len(stats.Notifications) > 0 {
		fmt.Fprintln(w, "Notifications:")
		for _, name := range sortedKeys(stats.Notifications) {
			fmt.Fprintf(w, "  %-24s %d\n", name, stats.Notifications[name])
		}
		fmt.Fprintln(w)
	}

	if stats.Pings > 0 || stats.Pongs > 0 {
		fmt.Fprintf(w, "Heartbeat: %d pings, %d pongs\n", stats.Pings, stats.Pongs)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		// Sort by first seen time
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.ServerName != "" {
				fmt.Fprintf(w, "           Server: %s\n", c.stats.ServerName)
			}
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
