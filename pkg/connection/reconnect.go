package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrAlreadyConnected      = errors.New("already connected")
	ErrConnectInProgress     = errors.New("connect already in progress")
	ErrConnectAborted        = errors.New("connect aborted by disconnect")
	ErrReconnectionExhausted = errors.New("reconnection attempts exhausted")
)

// DefaultAttemptTimeout bounds a single automatic connect attempt.
const DefaultAttemptTimeout = 30 * time.Second

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateOpen indicates the transport is open.
	StateOpen

	// StateReconnecting indicates a retry is scheduled.
	StateReconnecting

	// StateClosed indicates reconnection gave up. Only Connect leaves it.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc performs the full connect sequence.
// It should return nil once the session is usable.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Backoff configures retry delays.
	Backoff BackoffConfig

	// MaxAttempts bounds the retries per outage (default 5).
	MaxAttempts int

	// AttemptTimeout bounds one automatic attempt (default 30s).
	AttemptTimeout time.Duration

	// DisableAutoReconnect turns a lost session into StateDisconnected.
	DisableAutoReconnect bool
}

// Manager manages connection lifecycle with automatic reconnection.
type Manager struct {
	mu sync.Mutex

	// Current state
	state State

	backoff        *Backoff
	maxAttempts    int
	attemptTimeout time.Duration
	autoReconnect  bool

	connectFn ConnectFunc

	// inFlight is set while connectFn runs. A loss reported during that
	// window is remembered in lostInFlight and applied only if connectFn
	// succeeds; otherwise connectFn's own failure covers it.
	inFlight     bool
	lostInFlight bool

	// epoch changes on every Connect and Disconnect; timers and attempts
	// carrying an older epoch are stale.
	epoch uint64

	retryTimer *time.Timer

	// Cancels the in-flight automatic attempt.
	ctx    context.Context
	cancel context.CancelFunc

	lastErr error
	logger  *slog.Logger

	// Callbacks
	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
	onExhausted    func(err error)
}

// NewManager creates a new connection manager.
func NewManager(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoffWithConfig(cfg.Backoff),
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: cfg.AttemptTimeout,
		autoReconnect:  !cfg.DisableAutoReconnect,
		connectFn:      connectFn,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetLogger sets the operational logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOpen returns true if the connection is open.
func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// Err returns ErrReconnectionExhausted while the manager is in StateClosed.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Attempts returns the number of retries made in the current outage.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// SetAutoReconnect enables or disables automatic reconnection for later
// losses. A retry already scheduled is not cancelled.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// AutoReconnect reports whether a loss schedules automatic retries.
func (m *Manager) AutoReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoReconnect
}

// Connect runs the connect sequence once.
//
// It is the manual path: a failure moves the state back to Disconnected and
// schedules nothing. Connect is also the way out of StateClosed.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.state == StateOpen:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case m.inFlight || m.state == StateConnecting || m.state == StateReconnecting:
		m.mu.Unlock()
		return ErrConnectInProgress
	}

	m.epoch++
	epoch := m.epoch
	m.backoff.Reset()
	m.lastErr = nil
	m.inFlight = true
	m.lostInFlight = false
	oldState := m.state
	m.state = StateConnecting
	onStateChange := m.onStateChange
	m.mu.Unlock()

	if onStateChange != nil {
		onStateChange(oldState, StateConnecting)
	}

	err := m.connectFn(ctx)

	m.mu.Lock()
	m.inFlight = false
	if epoch != m.epoch {
		// Disconnect ran while connecting; it already set the state.
		m.mu.Unlock()
		if err == nil {
			err = ErrConnectAborted
		}
		return err
	}
	oldState = m.state
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		if onStateChange != nil && oldState != StateDisconnected {
			onStateChange(oldState, StateDisconnected)
		}
		return err
	}
	m.state = StateOpen
	m.backoff.Reset()
	lost := m.lostInFlight
	onConnected := m.onConnected
	m.mu.Unlock()

	if onStateChange != nil && oldState != StateOpen {
		onStateChange(oldState, StateOpen)
	}
	if onConnected != nil {
		onConnected()
	}
	if lost {
		m.NotifyConnectionLost()
	}
	return nil
}

// Opened marks the transport open while the connect sequence continues
// (for example with a handshake). Outside a connect sequence it does nothing.
func (m *Manager) Opened() {
	m.mu.Lock()
	if !m.inFlight || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateOpen
	onStateChange := m.onStateChange
	m.mu.Unlock()

	if onStateChange != nil {
		onStateChange(StateConnecting, StateOpen)
	}
}

// NotifyConnectionLost should be called when an open connection drops.
// This schedules automatic reconnection if enabled.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.inFlight {
		m.lostInFlight = true
		m.mu.Unlock()
		return
	}
	if m.state != StateOpen {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	onDisconnected := m.onDisconnected
	if !m.autoReconnect {
		m.state = StateDisconnected
		onStateChange := m.onStateChange
		m.mu.Unlock()
		if onStateChange != nil {
			onStateChange(oldState, StateDisconnected)
		}
		if onDisconnected != nil {
			onDisconnected()
		}
		return
	}

	m.state = StateReconnecting
	notify := m.scheduleLocked()
	onStateChange := m.onStateChange
	m.mu.Unlock()

	if onStateChange != nil {
		onStateChange(oldState, StateReconnecting)
	}
	if onDisconnected != nil {
		onDisconnected()
	}
	notify()
}

// Disconnect stops the connection lifecycle intentionally.
// Any scheduled or in-flight retry is cancelled and no retry follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.backoff.Reset()

	oldState := m.state
	m.state = StateDisconnected
	m.lastErr = nil
	onStateChange := m.onStateChange
	m.mu.Unlock()

	if onStateChange != nil && oldState != StateDisconnected {
		onStateChange(oldState, StateDisconnected)
	}
}

// scheduleLocked arms the next retry or gives up. m.mu must be held.
// The returned func runs the callbacks and must be called after unlocking.
func (m *Manager) scheduleLocked() func() {
	logger := m.logger
	if m.backoff.Attempts() >= m.maxAttempts {
		attempts := m.backoff.Attempts()
		oldState := m.state
		m.state = StateClosed
		m.lastErr = ErrReconnectionExhausted
		onStateChange := m.onStateChange
		onExhausted := m.onExhausted
		return func() {
			if logger != nil {
				logger.Warn("reconnection exhausted", "attempts", attempts)
			}
			if onStateChange != nil {
				onStateChange(oldState, StateClosed)
			}
			if onExhausted != nil {
				onExhausted(ErrReconnectionExhausted)
			}
		}
	}

	delay := m.backoff.Next()
	attempt := m.backoff.Attempts()
	epoch := m.epoch
	m.retryTimer = time.AfterFunc(delay, func() { m.retry(epoch) })

	onReconnecting := m.onReconnecting
	return func() {
		if logger != nil {
			logger.Info("reconnecting", "attempt", attempt, "delay", delay)
		}
		if onReconnecting != nil {
			onReconnecting(attempt, delay)
		}
	}
}

// retry performs one automatic attempt.
func (m *Manager) retry(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.inFlight = true
	m.lostInFlight = false
	m.state = StateConnecting
	ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
	onStateChange := m.onStateChange
	m.mu.Unlock()
	defer cancel()

	if onStateChange != nil {
		onStateChange(StateReconnecting, StateConnecting)
	}

	err := m.connectFn(ctx)

	m.mu.Lock()
	m.inFlight = false
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	if err == nil {
		m.state = StateOpen
		m.backoff.Reset()
		lost := m.lostInFlight
		onConnected := m.onConnected
		m.mu.Unlock()

		if onStateChange != nil && oldState != StateOpen {
			onStateChange(oldState, StateOpen)
		}
		if onConnected != nil {
			onConnected()
		}
		if lost {
			m.NotifyConnectionLost()
		}
		return
	}

	if m.logger != nil {
		m.logger.Debug("reconnect attempt failed", "attempt", m.backoff.Attempts(), "error", err)
	}
	m.state = StateReconnecting
	notify := m.scheduleLocked()
	m.mu.Unlock()

	if onStateChange != nil {
		onStateChange(oldState, StateReconnecting)
	}
	notify()
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for a completed connect sequence.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for the loss of an open connection.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked when a retry is scheduled.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// OnExhausted sets a callback invoked once the attempts of an outage run out.
func (m *Manager) OnExhausted(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExhausted = fn
}
