package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/esp32-mcp/mcp-client-go/pkg/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("ws://192.168.4.1/ws")

	assert.Equal(t, "ws://192.168.4.1/ws", cfg.URL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.AutoReconnect)
	assert.Zero(t, cfg.ReconnectMaxDelay)
	assert.Zero(t, cfg.ReconnectJitter)
	assert.NoError(t, cfg.Validate())
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{URL: "ws://host/ws"}
	cfg.applyDefaults()

	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultReconnectBaseDelay, cfg.ReconnectBaseDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.False(t, cfg.AutoReconnect)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"Default", func(*Config) {}, true},
		{"MissingURL", func(c *Config) { c.URL = "" }, false},
		{"HTTPURL", func(c *Config) { c.URL = "http://host/ws" }, false},
		{"DialerWithoutURL", func(c *Config) { c.URL = ""; c.Dialer = &transport.WSDialer{} }, true},
		{"NegativeTimeout", func(c *Config) { c.RequestTimeout = -1 }, false},
		{"NegativeHeartbeat", func(c *Config) { c.HeartbeatInterval = -1 }, false},
		{"NegativeBase", func(c *Config) { c.ReconnectBaseDelay = -1 }, false},
		{"BaseAboveCap", func(c *Config) { c.ReconnectMaxDelay = 500 * time.Millisecond }, false},
		{"Cap", func(c *Config) { c.ReconnectMaxDelay = time.Minute }, true},
		{"JitterTooLarge", func(c *Config) { c.ReconnectJitter = 1.5 }, false},
		{"Jitter", func(c *Config) { c.ReconnectJitter = 0.2 }, true},
		{"NegativeAttempts", func(c *Config) { c.MaxReconnectAttempts = -1 }, false},
		{"NegativeConnectTimeout", func(c *Config) { c.ConnectTimeout = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("ws://host/ws")
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
