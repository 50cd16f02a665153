// Package transport provides the websocket transport for the MCP client.
//
// The transport layer handles:
//   - Dialing a websocket endpoint and delivering inbound text frames
//   - Serialized outbound writes with a single close notification
//   - Heartbeat emission of {"type":"ping"} frames on an open link
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│     JSON-RPC 2.0 (text)        │
//	├────────────────────────────────┤
//	│       WebSocket frames         │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Heartbeat
//
// The heartbeat is a one-way liveness signal: a ping frame is sent at a
// fixed interval (default 30 seconds) while the link is open. Pongs are not
// tracked; connection loss is detected by the transport read loop.
package transport
