// Command mcp-client connects to an MCP server over WebSocket, lists and
// reads its resources, and prints resource updates as they arrive.
//
// Usage:
//
//	mcp-client [flags]
//
// Flags:
//
//	-url string           Server URL, e.g. ws://192.168.1.50:9000
//	-config string        Configuration file (.yaml, .yml or .toml)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-interactive          Start the interactive shell instead of the demo run
//	-discover             Find the server with mDNS when -url is empty
//	-instance string      mDNS instance or server name to pick when discovering
//	-request-timeout      Per-request timeout (default 5s)
//	-heartbeat            Heartbeat interval (default 30s)
//	-max-attempts int     Automatic reconnection attempts (default 5)
//	-no-reconnect         Disable automatic reconnection
//	-subscribe string     Comma-separated resource URIs to watch in the demo run
//
// Flags override values from the configuration file.
//
// Examples:
//
//	# Demo run against a known server
//	mcp-client -url ws://192.168.1.50:9000
//
//	# Find the server on the local network and open the shell
//	mcp-client -discover -interactive
//
//	# Capture the protocol exchange for mcp-log
//	mcp-client -config client.yaml -protocol-log session.mlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/esp32-mcp/mcp-client-go/cmd/mcp-client/interactive"
	"github.com/esp32-mcp/mcp-client-go/pkg/discovery"
	mcplog "github.com/esp32-mcp/mcp-client-go/pkg/log"
	"github.com/esp32-mcp/mcp-client-go/pkg/session"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	logger := newLogger(opts.LogLevel, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Session.URL == "" {
		if !opts.Discover {
			fmt.Fprintln(os.Stderr, "Error: server URL is required (-url, config file, or -discover)")
			os.Exit(2)
		}
		url, err := discoverServer(ctx, opts.Instance, logger)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		opts.Session.URL = url
	}

	var fileLogger *mcplog.FileLogger
	if opts.ProtocolLog != "" {
		fileLogger, err = mcplog.NewFileLogger(opts.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer fileLogger.Close()
		log.Printf("Protocol logging to: %s", opts.ProtocolLog)
	}
	if pl := protocolLogger(fileLogger, opts.LogLevel, logger); pl != nil {
		opts.Session.ProtocolLogger = pl
	}
	opts.Session.Logger = logger

	s, err := session.New(opts.Session)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	defer s.Close()

	s.OnStateChange(func(oldState, newState session.State) {
		log.Printf("[STATE] %s -> %s", oldState, newState)
	})
	s.OnReconnecting(func(attempt int, delay time.Duration) {
		log.Printf("Reconnecting in %dms (attempt %d)", delay.Milliseconds(), attempt)
	})
	s.OnReconnectExhausted(func(err error) {
		log.Printf("Giving up: %v", err)
	})
	s.OnSubscriptionError(func(uri string, err error) {
		log.Printf("[NOTIFY] Failed to refresh %s: %v", uri, err)
	})

	log.Printf("Connecting to %s", opts.Session.URL)
	if err := s.Connect(ctx); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	info := s.ServerInfo()
	log.Printf("Connected to %s %s", orDefault(info.Name, "server"), info.Version)

	if opts.Interactive {
		shell, err := interactive.New(s)
		if err != nil {
			log.Fatalf("Failed to create interactive shell: %v", err)
		}
		// Keep log output from interfering with the prompt.
		log.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	} else if err := runDemo(ctx, s, os.Stdout, opts.Subscribe); err != nil {
		log.Printf("Error: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-s.Exhausted():
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
}

// parseOptions resolves defaults, the config file, and flags, in that order.
func parseOptions(args []string) (Options, error) {
	opts := DefaultOptions()

	fs := flag.NewFlagSet("mcp-client", flag.ContinueOnError)
	var (
		url            = fs.String("url", "", "Server URL, e.g. ws://192.168.1.50:9000")
		configFile     = fs.String("config", "", "Configuration file (.yaml, .yml or .toml)")
		logLevel       = fs.String("log-level", opts.LogLevel, "Log level: debug, info, warn, error")
		protocolLog    = fs.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
		interactiveArg = fs.Bool("interactive", false, "Start the interactive shell instead of the demo run")
		discover       = fs.Bool("discover", false, "Find the server with mDNS when -url is empty")
		instance       = fs.String("instance", "", "mDNS instance or server name to pick when discovering")
		requestTimeout = fs.Duration("request-timeout", opts.Session.RequestTimeout, "Per-request timeout")
		heartbeat      = fs.Duration("heartbeat", opts.Session.HeartbeatInterval, "Heartbeat interval")
		maxAttempts    = fs.Int("max-attempts", opts.Session.MaxReconnectAttempts, "Automatic reconnection attempts")
		noReconnect    = fs.Bool("no-reconnect", false, "Disable automatic reconnection")
		subscribe      = fs.String("subscribe", strings.Join(opts.Subscribe, ","), "Comma-separated resource URIs to watch in the demo run")
	)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if *configFile != "" {
		opts.ConfigFile = *configFile
		if err := applyConfigFile(&opts, *configFile); err != nil {
			return opts, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			opts.Session.URL = *url
		case "log-level":
			opts.LogLevel = *logLevel
		case "protocol-log":
			opts.ProtocolLog = *protocolLog
		case "request-timeout":
			opts.Session.RequestTimeout = *requestTimeout
		case "heartbeat":
			opts.Session.HeartbeatInterval = *heartbeat
		case "max-attempts":
			opts.Session.MaxReconnectAttempts = *maxAttempts
		case "no-reconnect":
			opts.Session.AutoReconnect = !*noReconnect
		case "subscribe":
			opts.Subscribe = splitList(*subscribe)
		}
	})
	opts.Interactive = *interactiveArg
	opts.Discover = *discover
	opts.Instance = *instance

	if _, err := parseLevel(opts.LogLevel); err != nil {
		return opts, err
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", level)
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// protocolLogger combines the capture file with a debug echo of events.
// It returns nil when neither is wanted.
func protocolLogger(file *mcplog.FileLogger, level string, logger *slog.Logger) mcplog.Logger {
	var capture, console mcplog.Logger
	if file != nil {
		capture = file
	}
	if lvl, _ := parseLevel(level); lvl == slog.LevelDebug {
		console = mcplog.NewSlogAdapter(logger)
	}
	multi := mcplog.NewMultiLogger(capture, console)
	if multi.Len() == 0 {
		return nil
	}
	return multi
}

func discoverServer(ctx context.Context, instance string, logger *slog.Logger) (string, error) {
	log.Printf("Browsing for %s servers...", discovery.ServiceType)
	browser := discovery.NewBrowser(discovery.DefaultBrowserConfig())
	browser.SetLogger(logger)
	defer browser.Stop()

	srv, err := browser.Find(ctx, instance)
	if err != nil {
		return "", err
	}
	url, err := srv.URL()
	if err != nil {
		return "", err
	}
	log.Printf("Found %s at %s", srv.DisplayName(), url)
	return url, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
