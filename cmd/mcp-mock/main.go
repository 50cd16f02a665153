// Command mcp-mock runs a simulated ESP32 MCP server for local development.
//
// It serves the websocket endpoint on -port, optionally advertises itself as
// _mcp._tcp over mDNS so mcp-client -discover can find it, and pushes
// resource update notifications while simulation is enabled.
//
// Usage:
//
//	mcp-mock [flags]
//
// Flags:
//
//	-port        Listen port (default 9000)
//	-name        Server name reported by initialize
//	-instance    mDNS instance name (default: hostname)
//	-advertise   Advertise over mDNS (default true)
//	-simulate    Push simulated sensor updates (default true)
//	-interval    Simulation update interval (default 5s)
//	-log-level   Log level: debug, info, warn, error
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esp32-mcp/mcp-client-go/internal/mockserver"
	"github.com/esp32-mcp/mcp-client-go/pkg/discovery"
)

type options struct {
	Port      int
	Name      string
	Instance  string
	Advertise bool
	Simulate  bool
	Interval  time.Duration
	LogLevel  string
}

func main() {
	var opts options
	flag.IntVar(&opts.Port, "port", int(discovery.DefaultPort), "Listen port")
	flag.StringVar(&opts.Name, "name", "ESP32-MCP-Mock", "Server name reported by initialize")
	flag.StringVar(&opts.Instance, "instance", "", "mDNS instance name (default: hostname)")
	flag.BoolVar(&opts.Advertise, "advertise", true, "Advertise over mDNS")
	flag.BoolVar(&opts.Simulate, "simulate", true, "Push simulated sensor updates")
	flag.DurationVar(&opts.Interval, "interval", 5*time.Second, "Simulation update interval")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q\n", opts.LogLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(opts, logger); err != nil {
		logger.Error("mcp-mock failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	srv, err := mockserver.Listen(fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer srv.Close()
	srv.SetServerInfo(opts.Name, mockserver.DefaultServerVersion)
	logger.Info("MCP mock server listening", "url", srv.URL(), "name", opts.Name)

	if opts.Advertise {
		adv := discovery.NewAdvertiser(discovery.DefaultAdvertiserConfig())
		adv.SetLogger(logger)
		info := &discovery.ServiceInfo{
			Instance: instanceName(opts.Instance),
			Port:     srv.Port(),
			Path:     mockserver.Path,
			Name:     opts.Name,
			Version:  mockserver.DefaultServerVersion,
		}
		if err := adv.Advertise(info); err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.Simulate {
		go runSimulation(ctx, srv, opts.Interval, logger)
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "mcp-mock"
	}
	if len(host) > discovery.MaxInstanceNameLen {
		host = host[:discovery.MaxInstanceNameLen]
	}
	return host
}
