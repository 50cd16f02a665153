// Package discovery finds MCP servers on the local network with mDNS/DNS-SD.
//
// Servers advertise the service type _mcp._tcp. The instance name is the
// user-visible server name. TXT records carry:
//
//	path   websocket path (optional, default "/")
//	ver    server version (optional)
//	name   server name as reported by initialize (optional)
//	tls    "1" when the endpoint requires wss (optional)
//
// A Browser aggregates answers by instance name, merging the addresses
// reported on each interface, and turns every instance into a Server whose
// URL can be handed to the session package. An Advertiser announces a
// server, which is what the mock server command uses for local testing.
package discovery
