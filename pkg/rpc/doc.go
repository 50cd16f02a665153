// Package rpc correlates outbound requests with inbound responses.
//
// A Correlator assigns every request a fresh identifier (starting at 1, never
// reused within the process), records it as pending, and hands the caller a
// Future. The Future settles exactly once:
//
//   - with the response, when a matching response without an error arrives
//   - with a *RemoteError, when the matching response carries an error member
//   - with ErrTimeout, when no response arrives within the request timeout
//   - with ErrConnectionLost, when the link is detached while the request is pending
//   - with ErrNotConnected, immediately, when no link is attached
//
// Whichever outcome reaches the pending table first wins; the loser finds the
// entry gone and does nothing. A response for an identifier that is no longer
// pending (late, duplicate, or from a previous connection) is ignored.
//
// # Usage
//
//	c := rpc.NewCorrelator(5 * time.Second)
//	c.Attach(conn)
//
//	resp, err := c.Request(ctx, wire.MethodResourcesList, nil)
//
//	// From the receive path:
//	c.Resolve(msg.Response)
//
//	// When the connection drops:
//	c.Detach()
package rpc
