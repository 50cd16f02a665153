package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/connection"
	"github.com/esp32-mcp/mcp-client-go/pkg/log"
	"github.com/esp32-mcp/mcp-client-go/pkg/rpc"
	"github.com/esp32-mcp/mcp-client-go/pkg/subscription"
	"github.com/esp32-mcp/mcp-client-go/pkg/transport"
	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// State is the session's connection state.
type State = connection.State

// Connection states.
const (
	StateDisconnected = connection.StateDisconnected
	StateConnecting   = connection.StateConnecting
	StateOpen         = connection.StateOpen
	StateReconnecting = connection.StateReconnecting
	StateClosed       = connection.StateClosed
)

// Callback receives the freshly read data of a subscribed resource.
type Callback = subscription.Callback

// Session is a long-lived client session with an MCP server.
type Session struct {
	config Config
	dialer transport.Dialer

	correlator *rpc.Correlator
	registry   *subscription.Registry
	router     *Router
	heartbeat  *transport.Heartbeat
	manager    *connection.Manager

	mu         sync.Mutex
	conn       transport.Conn
	gen        uint64
	serverInfo wire.ServerInfo
	closed     bool
	exhausted  chan struct{}

	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
	onExhausted    func(err error)

	logger         *slog.Logger
	protocolLogger log.Logger
}

// New creates a session. It does not connect.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults()

	s := &Session{
		config:         cfg,
		dialer:         cfg.Dialer,
		exhausted:      make(chan struct{}),
		logger:         cfg.Logger,
		protocolLogger: cfg.ProtocolLogger,
	}
	if s.dialer == nil {
		s.dialer = &transport.WSDialer{
			URL:              cfg.URL,
			Header:           cfg.Header,
			HandshakeTimeout: cfg.ConnectTimeout,
			Logger:           cfg.Logger,
			ProtocolLogger:   cfg.ProtocolLogger,
		}
	}

	s.correlator = rpc.NewCorrelator(cfg.RequestTimeout)
	s.correlator.SetLogger(cfg.Logger)
	s.correlator.OnRequest(s.logRequest)

	s.registry = subscription.NewRegistry(s.correlator)
	s.registry.SetLogger(cfg.Logger)

	s.router = NewRouter(s.correlator, s.registry)
	s.router.SetLogger(cfg.Logger)
	s.router.SetProtocolLogger(cfg.ProtocolLogger)

	s.heartbeat = transport.NewHeartbeat(cfg.HeartbeatInterval)
	s.heartbeat.SetLogger(cfg.Logger)
	s.heartbeat.SetProtocolLogger(cfg.ProtocolLogger)

	s.manager = connection.NewManager(s.connectSequence, connection.ManagerConfig{
		Backoff: connection.BackoffConfig{
			Initial: cfg.ReconnectBaseDelay,
			Max:     cfg.ReconnectMaxDelay,
			Jitter:  cfg.ReconnectJitter,
		},
		MaxAttempts:          cfg.MaxReconnectAttempts,
		AttemptTimeout:       cfg.ConnectTimeout,
		DisableAutoReconnect: !cfg.AutoReconnect,
	})
	s.manager.SetLogger(cfg.Logger)
	s.manager.OnStateChange(s.handleStateChange)
	s.manager.OnReconnecting(s.handleReconnecting)
	s.manager.OnExhausted(s.handleExhausted)

	return s, nil
}

// Connect opens the connection and performs the initialize handshake.
//
// It returns once the handshake completed. A failure is returned to the
// caller and does not start automatic reconnection. Connect is also the
// explicit reconnect after the session entered StateClosed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	select {
	case <-s.exhausted:
		s.exhausted = make(chan struct{})
	default:
	}
	s.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	return s.manager.Connect(ctx)
}

// connectSequence runs dial, attach, handshake issue, heartbeat start and
// handshake wait. It is used for manual connects and automatic retries.
func (s *Session) connectSequence(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen := s.gen
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		conn.Close()
		return connection.ErrConnectAborted
	}
	s.conn = conn
	s.mu.Unlock()

	s.correlator.Attach(conn)
	s.manager.Opened()

	fut := s.correlator.Call(wire.MethodInitialize, struct{}{})
	s.heartbeat.Start(conn)

	// A drop or Disconnect may have run its cleanup before Start.
	s.mu.Lock()
	lost := s.conn != conn
	s.mu.Unlock()
	if lost {
		s.heartbeat.StopFor(conn)
	}

	resp, err := fut.Wait(ctx)
	if err != nil {
		s.teardown(conn)
		return fmt.Errorf("initialize: %w", err)
	}

	result, err := wire.DecodeResult(resp.Result)
	if err != nil {
		s.teardown(conn)
		return fmt.Errorf("initialize: %w", err)
	}
	info, err := wire.DecodeServerInfo(result)
	if err != nil && s.logger != nil {
		s.logger.Warn("initialize result without server info", "conn_id", conn.ID(), "error", err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.teardown(conn)
		return connection.ErrConnectAborted
	}
	s.serverInfo = info
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("session established",
			"conn_id", conn.ID(),
			"server", info.Name,
			"version", info.Version)
	}
	s.logSessionEvent(conn.ID(), info.Name, "", "INITIALIZED", "")

	// The server forgets subscriptions with the connection.
	if s.registry.Len() > 0 {
		n, err := s.registry.Resubscribe(ctx)
		if err != nil && s.logger != nil {
			s.logger.Warn("resubscribe incomplete", "restored", n, "error", err)
		}
	}
	return nil
}

// teardown releases everything tied to conn. The correlator is only
// detached while conn is still current; the heartbeat is stopped if it
// still runs for conn either way.
func (s *Session) teardown(conn transport.Conn) {
	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.mu.Unlock()

	s.heartbeat.StopFor(conn)
	if current {
		s.correlator.Detach()
	}
	conn.Close()
}

// HandleMessage implements transport.Handler.
func (s *Session) HandleMessage(conn transport.Conn, data []byte) {
	s.mu.Lock()
	current := s.conn == conn
	s.mu.Unlock()

	if !current {
		if s.logger != nil {
			s.logger.Debug("dropping frame from stale connection", "conn_id", conn.ID())
		}
		return
	}
	s.router.Route(conn.ID(), data)
}

// HandleClose implements transport.Handler.
func (s *Session) HandleClose(conn transport.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	s.heartbeat.StopFor(conn)
	failed := s.correlator.Detach()

	if s.logger != nil {
		s.logger.Info("connection lost", "conn_id", conn.ID(), "failed_requests", failed, "error", err)
	}

	s.manager.NotifyConnectionLost()
}

// Disconnect closes the connection intentionally. No automatic
// reconnection follows. Pending requests fail with ErrConnectionLost.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.gen++
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.manager.Disconnect()
	s.heartbeat.Stop()
	s.correlator.Detach()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Close disconnects and waits for in-flight subscription deliveries.
// The session cannot be reconnected afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Disconnect()
	s.registry.Close()
	return err
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.manager.State()
}

// SetAutoReconnect turns automatic reconnection after a loss on or off.
func (s *Session) SetAutoReconnect(enabled bool) {
	s.manager.SetAutoReconnect(enabled)
}

// AutoReconnect reports whether a loss is followed by automatic retries.
func (s *Session) AutoReconnect() bool {
	return s.manager.AutoReconnect()
}

// Err returns ErrReconnectionExhausted while the session is in StateClosed
// after giving up, and nil otherwise.
func (s *Session) Err() error {
	return s.manager.Err()
}

// Exhausted returns a channel that is closed when automatic reconnection
// gives up. A later Connect arms a new channel.
func (s *Session) Exhausted() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// ServerInfo returns the server identity from the last handshake.
func (s *Session) ServerInfo() wire.ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Pending returns the number of outstanding requests.
func (s *Session) Pending() int {
	return s.correlator.Pending()
}

// Router returns the session's message router.
func (s *Session) Router() *Router {
	return s.router
}

// Request issues a correlated request and waits for its response.
func (s *Session) Request(ctx context.Context, method string, params any) (*wire.Response, error) {
	return s.correlator.Request(ctx, method, params)
}

// call issues a request and unwraps the result envelope.
func (s *Session) call(ctx context.Context, method string, params any) (*wire.Result, error) {
	resp, err := s.correlator.Request(ctx, method, params)
	if err != nil {
		return nil, err
	}
	result, err := wire.DecodeResult(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%s: %w: %s", method, ErrRejected, result.Message)
	}
	return result, nil
}

// ListResources returns the resources the server exposes.
func (s *Session) ListResources(ctx context.Context) ([]wire.Resource, error) {
	result, err := s.call(ctx, wire.MethodResourcesList, struct{}{})
	if err != nil {
		return nil, err
	}
	resources, err := wire.DecodeResourceList(result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wire.MethodResourcesList, err)
	}
	return resources, nil
}

// ReadResource returns the current data of uri.
func (s *Session) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	result, err := s.call(ctx, wire.MethodResourcesRead, wire.ResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	if !result.HasData() {
		return nil, fmt.Errorf("%s %s: %w: missing data", wire.MethodResourcesRead, uri, ErrProtocol)
	}
	return result.Data, nil
}

// Subscribe registers cb for updates of uri. It reports whether the server
// acknowledged the subscription; cb is recorded only if it did.
func (s *Session) Subscribe(ctx context.Context, uri string, cb Callback) (bool, error) {
	ok, err := s.registry.Subscribe(ctx, uri, cb)
	if ok {
		s.logSubscription(uri, "SUBSCRIBED")
	}
	return ok, err
}

// Unsubscribe removes the subscription for uri once the server acknowledges.
func (s *Session) Unsubscribe(ctx context.Context, uri string) (bool, error) {
	ok, err := s.registry.Unsubscribe(ctx, uri)
	if ok {
		s.logSubscription(uri, "UNSUBSCRIBED")
	}
	return ok, err
}

// Subscriptions returns the subscribed URIs.
func (s *Session) Subscriptions() []string {
	return s.registry.URIs()
}

// OnStateChange sets a callback for connection state changes.
func (s *Session) OnStateChange(fn func(oldState, newState State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// OnReconnecting sets a callback invoked when a retry is scheduled.
func (s *Session) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnecting = fn
}

// OnReconnectExhausted sets a callback invoked when retries give up.
func (s *Session) OnReconnectExhausted(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExhausted = fn
}

// OnSubscriptionError sets a callback for failed update re-fetches.
func (s *Session) OnSubscriptionError(fn func(uri string, err error)) {
	s.registry.OnFetchError(fn)
}

func (s *Session) handleStateChange(oldState, newState State) {
	s.mu.Lock()
	fn := s.onStateChange
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("state change", "from", oldState, "to", newState)
	}
	s.logSessionEvent("", "", oldState.String(), newState.String(), "")

	if fn != nil {
		fn(oldState, newState)
	}
}

func (s *Session) handleReconnecting(attempt int, delay time.Duration) {
	s.mu.Lock()
	fn := s.onReconnecting
	s.mu.Unlock()

	s.logSessionEvent("", "", "", StateReconnecting.String(),
		fmt.Sprintf("attempt %d in %v", attempt, delay))

	if fn != nil {
		fn(attempt, delay)
	}
}

func (s *Session) handleExhausted(err error) {
	s.mu.Lock()
	fn := s.onExhausted
	select {
	case <-s.exhausted:
	default:
		close(s.exhausted)
	}
	s.mu.Unlock()

	s.logSessionEvent("", "", "", StateClosed.String(), err.Error())

	if fn != nil {
		fn(err)
	}
}
