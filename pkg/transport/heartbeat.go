package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// DefaultHeartbeatInterval is the default interval between pings.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat sends periodic ping frames over an open link.
//
// At most one emission loop runs at a time. Nothing is sent while the link
// reports it is not open, and no pong is awaited.
type Heartbeat struct {
	interval time.Duration

	logger         *slog.Logger
	protocolLogger log.Logger

	// Statistics
	sent   atomic.Uint64
	failed atomic.Uint64

	mu      sync.Mutex
	running bool
	link    Link
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHeartbeat creates a heartbeat with the given interval.
// A non-positive interval selects DefaultHeartbeatInterval.
func NewHeartbeat(interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{interval: interval}
}

// SetLogger sets the operational logger.
func (h *Heartbeat) SetLogger(logger *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// SetProtocolLogger sets the protocol logger for ping events.
func (h *Heartbeat) SetProtocolLogger(logger log.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.protocolLogger = logger
}

// Interval returns the emission interval.
func (h *Heartbeat) Interval() time.Duration {
	return h.interval
}

// Start begins emitting pings on link. A loop that is already running is
// stopped first, so emissions never overlap.
func (h *Heartbeat) Start(link Link) {
	h.mu.Lock()
	var prevDone chan struct{}
	if h.running {
		close(h.stopCh)
		prevDone = h.doneCh
	}
	h.running = true
	h.link = link
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	stopCh, doneCh := h.stopCh, h.doneCh
	h.mu.Unlock()

	if prevDone != nil {
		<-prevDone
	}

	go h.loop(link, stopCh, doneCh)
}

// Stop ends emission and waits for the loop to exit. It is idempotent.
func (h *Heartbeat) Stop() {
	h.stop(nil)
}

// StopFor stops the loop only if it was started for link. A loop that has
// since been restarted on another link keeps running.
func (h *Heartbeat) StopFor(link Link) {
	h.stop(link)
}

func (h *Heartbeat) stop(link Link) {
	h.mu.Lock()
	if !h.running || (link != nil && h.link != link) {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.link = nil
	close(h.stopCh)
	done := h.doneCh
	h.mu.Unlock()

	<-done
}

// IsRunning returns true if the emission loop is active.
func (h *Heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Stats returns current heartbeat statistics.
func (h *Heartbeat) Stats() HeartbeatStats {
	return HeartbeatStats{
		Sent:   h.sent.Load(),
		Failed: h.failed.Load(),
	}
}

// HeartbeatStats contains heartbeat statistics.
type HeartbeatStats struct {
	Sent   uint64
	Failed uint64
}

// loop is the emission loop.
func (h *Heartbeat) loop(link Link, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.emit(link)
		}
	}
}

// emit sends one ping if the link is open.
func (h *Heartbeat) emit(link Link) {
	if !link.IsOpen() {
		return
	}

	h.mu.Lock()
	logger := h.logger
	protocolLogger := h.protocolLogger
	h.mu.Unlock()

	if err := link.Send(wire.EncodePing()); err != nil {
		// Loss is reported by the transport read loop.
		h.failed.Add(1)
		if logger != nil {
			logger.Debug("heartbeat send failed", "error", err)
		}
		return
	}
	h.sent.Add(1)

	if protocolLogger != nil {
		var connID string
		if c, ok := link.(interface{ ID() string }); ok {
			connID = c.ID()
		}
		protocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
		})
	}
}
