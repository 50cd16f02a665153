package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/connection"
	"github.com/esp32-mcp/mcp-client-go/pkg/log"
	"github.com/esp32-mcp/mcp-client-go/pkg/rpc"
	"github.com/esp32-mcp/mcp-client-go/pkg/transport"
)

// Default configuration values.
const (
	DefaultRequestTimeout       = rpc.DefaultTimeout
	DefaultHeartbeatInterval    = transport.DefaultHeartbeatInterval
	DefaultReconnectBaseDelay   = connection.InitialBackoff
	DefaultMaxReconnectAttempts = connection.DefaultMaxAttempts
	DefaultConnectTimeout       = 10 * time.Second
)

// Config configures a Session.
type Config struct {
	// URL is the server's websocket endpoint. Required unless Dialer is set.
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	// Dialer overrides the websocket dialer built from URL.
	Dialer transport.Dialer

	// RequestTimeout bounds each request (default: 5s).
	RequestTimeout time.Duration

	// HeartbeatInterval is the ping interval (default: 30s).
	HeartbeatInterval time.Duration

	// ReconnectBaseDelay is the delay before the first retry (default: 1s).
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the retry delay. Zero means uncapped.
	ReconnectMaxDelay time.Duration

	// ReconnectJitter adds up to this fraction of random extra delay (0..1).
	ReconnectJitter float64

	// MaxReconnectAttempts bounds the retries per outage (default: 5).
	MaxReconnectAttempts int

	// ConnectTimeout bounds a connect sequence whose context carries no
	// deadline (default: 10s).
	ConnectTimeout time.Duration

	// AutoReconnect enables automatic reconnection after a loss.
	// DefaultConfig enables it; a zero Config does not.
	AutoReconnect bool

	// Logger is the operational logger. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		RequestTimeout:       DefaultRequestTimeout,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		ReconnectBaseDelay:   DefaultReconnectBaseDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ConnectTimeout:       DefaultConnectTimeout,
		AutoReconnect:        true,
	}
}

// applyDefaults fills zero durations and counts.
func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Dialer == nil {
		if c.URL == "" {
			errs = append(errs, errors.New("URL is required"))
		} else if err := transport.ValidateURL(c.URL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("RequestTimeout must not be negative: %v", c.RequestTimeout))
	}
	if c.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("HeartbeatInterval must not be negative: %v", c.HeartbeatInterval))
	}
	if c.ReconnectBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("ReconnectBaseDelay must not be negative: %v", c.ReconnectBaseDelay))
	}
	if c.ReconnectMaxDelay < 0 {
		errs = append(errs, fmt.Errorf("ReconnectMaxDelay must not be negative: %v", c.ReconnectMaxDelay))
	}
	if c.ReconnectMaxDelay > 0 && c.ReconnectBaseDelay > c.ReconnectMaxDelay {
		errs = append(errs, fmt.Errorf("ReconnectBaseDelay %v exceeds ReconnectMaxDelay %v", c.ReconnectBaseDelay, c.ReconnectMaxDelay))
	}
	if c.ReconnectJitter < 0 || c.ReconnectJitter > 1 {
		errs = append(errs, fmt.Errorf("ReconnectJitter must be within [0,1]: %v", c.ReconnectJitter))
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("MaxReconnectAttempts must not be negative: %d", c.MaxReconnectAttempts))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("ConnectTimeout must not be negative: %v", c.ConnectTimeout))
	}

	return errors.Join(errs...)
}
