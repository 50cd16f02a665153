// Package log captures MCP protocol traffic as a stream of typed events.
//
// Capture is separate from the operational slog output: every websocket
// frame, JSON-RPC message, heartbeat ping and state transition of a session
// becomes an Event that a Logger receives. session.Config.ProtocolLogger
// takes any Logger; a nil logger disables capture.
//
//	file, err := log.NewFileLogger("esp32.mlog")
//	if err != nil {
//		return err
//	}
//	defer file.Close()
//	cfg.ProtocolLogger = log.NewMultiLogger(file, log.NewSlogAdapter(slog.Default()))
//
// Events are tagged with the layer that produced them:
//   - LAYER TRANSPORT carries raw text frames and heartbeat pings.
//   - LAYER WIRE carries decoded requests, responses and notifications.
//   - LAYER SESSION carries connection, session and subscription state.
//
// FileLogger writes a plain concatenation of CBOR items (by convention with
// an .mlog extension). Reader streams them back with an optional Filter,
// and the mcp-log tool views, filters, exports and summarises them.
package log
