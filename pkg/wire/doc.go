// Package wire defines the JSON-RPC text frames exchanged with an MCP server.
//
// Every frame is a single JSON object carried in one WebSocket text message.
//
// # Message Types
//
// There are four frame shapes:
//   - Request: client to server, carries "jsonrpc", "method", "params" and a non-zero "id"
//   - Response: server to client, carries the request "id" and exactly one of "result" or "error"
//   - Notification: server to client, carries a "method" under the "notifications/" namespace and no "id"
//   - Control: one-way liveness frames ({"type":"ping"} / {"type":"pong"}), never correlated
//
// # Result Payloads
//
// The resource methods wrap their payload in a Result object:
//
//	{"success": true, "message": "Resource Read", "data": {...}}
//
// The "success" flag acknowledges subscribe and unsubscribe; "data" carries the
// resource list or the read value.
//
// Decoding never panics on peer input. Anything that is not a well-formed object
// yields an error wrapping ErrProtocol.
package wire
