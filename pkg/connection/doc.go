// Package connection manages the connection lifecycle with automatic
// reconnection.
//
// This package handles:
//   - Exponential backoff between reconnection attempts
//   - A bounded number of attempts per outage
//   - Connection state tracking
//   - Distinguishing a failed manual connect from a lost session
//
// # State Machine
//
//	Disconnected -> Connecting -> Open
//	Open -> Reconnecting -> Connecting -> Open
//	Reconnecting -> Closed (attempts exhausted)
//
// Closed is terminal until the caller invokes Connect again.
//
// # Reconnection Strategy
//
// When an open session is lost, attempt n waits
//
//	delay(n) = base * 2^(n-1)
//
// so with the default 1 second base the delays are 1s, 2s, 4s, 8s, 16s.
// After MaxAttempts failed attempts no further retry is scheduled and the
// exhaustion callback fires with ErrReconnectionExhausted. A successful
// attempt resets the counter, so the next outage starts from the base delay.
//
// # Jitter
//
// Jitter is off by default. When configured:
//
//	actual_delay = delay + random(0, delay * jitter)
//
// # Manual Connect
//
// A failure returned from Connect never starts automatic reconnection. Only
// the loss of an open session, or the failure of an automatic attempt,
// schedules a retry. Disconnect cancels any scheduled or in-flight retry.
package connection
