// Package session provides the client session for an MCP server.
//
// A Session owns one logical connection to a server across transport drops.
// It wires the pieces together:
//
//	Connect ─► Dialer ─► Conn ──frames──► Router ─┬─► Correlator (responses)
//	                      ▲                       └─► Registry (notifications)
//	                      └── Heartbeat (pings)
//
// Connect dials, issues the initialize handshake, starts the heartbeat and
// returns once the handshake has completed. When an established connection
// is lost, every pending request fails with ErrConnectionLost and the
// reconnection manager retries the full connect sequence with exponential
// backoff. Subscriptions stay registered across reconnects.
//
// # Connect Failure Policy
//
// A failed Connect returns its error and never schedules a retry.
// Automatic reconnection starts only after a connection that completed its
// handshake is lost. When the retries are exhausted the session enters
// StateClosed; Connect is the way out.
package session
