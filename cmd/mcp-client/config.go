package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/esp32-mcp/mcp-client-go/pkg/session"
)

// fileConfig is the on-disk client configuration. YAML and TOML share keys.
type fileConfig struct {
	URL                  string   `yaml:"url" toml:"url"`
	RequestTimeout       string   `yaml:"request_timeout" toml:"request_timeout"`
	HeartbeatInterval    string   `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	ConnectTimeout       string   `yaml:"connect_timeout" toml:"connect_timeout"`
	ReconnectBaseDelay   string   `yaml:"reconnect_base_delay" toml:"reconnect_base_delay"`
	ReconnectMaxDelay    string   `yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
	ReconnectJitter      float64  `yaml:"reconnect_jitter" toml:"reconnect_jitter"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	AutoReconnect        bool     `yaml:"auto_reconnect" toml:"auto_reconnect"`
	LogLevel             string   `yaml:"log_level" toml:"log_level"`
	ProtocolLog          string   `yaml:"protocol_log" toml:"protocol_log"`
	Subscribe            []string `yaml:"subscribe" toml:"subscribe"`
}

// Options is the resolved client configuration.
type Options struct {
	ConfigFile  string
	LogLevel    string
	ProtocolLog string
	Interactive bool
	Discover    bool
	Instance    string
	Subscribe   []string

	Session session.Config
}

// DefaultOptions returns the options used without a config file or flags.
func DefaultOptions() Options {
	return Options{
		LogLevel:  "info",
		Subscribe: []string{"system://info"},
		Session:   session.DefaultConfig(""),
	}
}

// loadConfigFile decodes path by extension and reports which keys it set.
func loadConfigFile(path string) (fileConfig, func(key string) bool, error) {
	var raw fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return raw, nil, fmt.Errorf("load config: %w", err)
		}
		return raw, func(key string) bool { return meta.IsDefined(key) }, nil

	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return raw, nil, fmt.Errorf("load config: %w", err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return raw, nil, fmt.Errorf("load config: %w", err)
		}
		defined := make(map[string]bool)
		if len(doc.Content) > 0 {
			root := doc.Content[0]
			if root.Kind != yaml.MappingNode {
				return raw, nil, fmt.Errorf("load config: %s: top level must be a mapping", path)
			}
			for i := 0; i+1 < len(root.Content); i += 2 {
				defined[root.Content[i].Value] = true
			}
			if err := root.Decode(&raw); err != nil {
				return raw, nil, fmt.Errorf("load config: %w", err)
			}
		}
		return raw, func(key string) bool { return defined[key] }, nil

	default:
		return raw, nil, fmt.Errorf("load config: %s: unsupported extension (use .yaml, .yml or .toml)", path)
	}
}

// applyConfigFile overlays the values defined in path onto opts.
func applyConfigFile(opts *Options, path string) error {
	raw, isDefined, err := loadConfigFile(path)
	if err != nil {
		return err
	}

	if isDefined("url") {
		opts.Session.URL = strings.TrimSpace(raw.URL)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &opts.Session.RequestTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &opts.Session.HeartbeatInterval},
		{"connect_timeout", raw.ConnectTimeout, &opts.Session.ConnectTimeout},
		{"reconnect_base_delay", raw.ReconnectBaseDelay, &opts.Session.ReconnectBaseDelay},
		{"reconnect_max_delay", raw.ReconnectMaxDelay, &opts.Session.ReconnectMaxDelay},
	}
	for _, d := range durations {
		if !isDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if isDefined("reconnect_jitter") {
		opts.Session.ReconnectJitter = raw.ReconnectJitter
	}
	if isDefined("max_reconnect_attempts") {
		opts.Session.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}
	if isDefined("auto_reconnect") {
		opts.Session.AutoReconnect = raw.AutoReconnect
	}
	if isDefined("log_level") {
		opts.LogLevel = raw.LogLevel
	}
	if isDefined("protocol_log") {
		opts.ProtocolLog = raw.ProtocolLog
	}
	if isDefined("subscribe") {
		opts.Subscribe = raw.Subscribe
	}
	return nil
}
