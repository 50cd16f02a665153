package session

import (
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/log"
	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// currentConnID returns the ID of the current connection, if any.
func (s *Session) currentConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.ID()
}

// logRequest records an outgoing request. Called by the correlator.
func (s *Session) logRequest(req *wire.Request) {
	if s.protocolLogger == nil {
		return
	}

	me := &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: req.ID,
		Method:    req.Method,
	}
	if p, ok := req.Params.(wire.ResourceParams); ok {
		me.URI = p.URI
	}

	s.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.currentConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      me,
	})
}

// logSessionEvent records a session lifecycle change.
func (s *Session) logSessionEvent(connID, serverName, oldState, newState, reason string) {
	if s.protocolLogger == nil {
		return
	}
	if connID == "" {
		connID = s.currentConnID()
	}
	s.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		RemoteAddr:   s.config.URL,
		ServerName:   serverName,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// logSubscription records a subscription being added or removed.
func (s *Session) logSubscription(uri, newState string) {
	if s.logger != nil {
		s.logger.Debug("subscription changed", "uri", uri, "state", newState)
	}
	if s.protocolLogger == nil {
		return
	}
	s.protocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.currentConnID(),
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			NewState: newState,
			Reason:   uri,
		},
	})
}
