// Package interactive provides the interactive command-line interface
// for mcp-client.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/esp32-mcp/mcp-client-go/pkg/session"
	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// Client is the part of a session the shell drives.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() session.State
	Err() error
	ServerInfo() wire.ServerInfo
	Pending() int
	ListResources(ctx context.Context) ([]wire.Resource, error)
	ReadResource(ctx context.Context, uri string) (json.RawMessage, error)
	Subscribe(ctx context.Context, uri string, cb session.Callback) (bool, error)
	Unsubscribe(ctx context.Context, uri string) (bool, error)
	Subscriptions() []string
	AutoReconnect() bool
	SetAutoReconnect(enabled bool)
}

// Shell is the interactive command loop.
type Shell struct {
	client Client
	rl     *readline.Instance

	mu  sync.Mutex
	out io.Writer

	updates map[string]int
	last    map[string]string
}

// New creates a shell reading from the terminal.
func New(client Client) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mcp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("status"),
			readline.PcItem("list"),
			readline.PcItem("read"),
			readline.PcItem("watch"),
			readline.PcItem("unwatch"),
			readline.PcItem("subs"),
			readline.PcItem("connect"),
			readline.PcItem("disconnect"),
			readline.PcItem("autoreconnect",
				readline.PcItem("on"),
				readline.PcItem("off"),
			),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := newShell(client, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(client Client, out io.Writer) *Shell {
	return &Shell{
		client:  client,
		out:     out,
		updates: make(map[string]int),
		last:    make(map[string]string),
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			s.println("Exiting...")
			cancel()
			return
		}

		if s.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "status", "s":
		s.cmdStatus()

	case "list", "ls":
		s.cmdList(ctx)

	case "read", "r":
		s.cmdRead(ctx, args)

	case "watch", "sub":
		s.cmdWatch(ctx, args)

	case "unwatch", "unsub":
		s.cmdUnwatch(ctx, args)

	case "subs":
		s.cmdSubs()

	case "connect":
		if err := s.client.Connect(ctx); err != nil {
			s.printf("Connect failed: %v\n", err)
			return false
		}
		s.println("Connected")

	case "disconnect":
		if err := s.client.Disconnect(); err != nil {
			s.printf("Disconnect: %v\n", err)
			return false
		}
		s.println("Disconnected")

	case "autoreconnect":
		s.cmdAutoReconnect(args)

	case "quit", "exit", "q":
		s.println("Exiting...")
		return true

	default:
		s.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) cmdStatus() {
	info := s.client.ServerInfo()
	s.printf("State:         %s\n", s.client.State())
	if err := s.client.Err(); err != nil {
		s.printf("Error:         %v\n", err)
	}
	if info.Name != "" {
		s.printf("Server:        %s %s\n", info.Name, info.Version)
	}
	s.printf("Pending:       %d\n", s.client.Pending())
	s.printf("Subscriptions: %d\n", len(s.client.Subscriptions()))
}

func (s *Shell) cmdAutoReconnect(args []string) {
	switch {
	case len(args) == 0:
	case len(args) == 1 && strings.EqualFold(args[0], "on"):
		s.client.SetAutoReconnect(true)
	case len(args) == 1 && strings.EqualFold(args[0], "off"):
		s.client.SetAutoReconnect(false)
	default:
		s.println("Usage: autoreconnect [on|off]")
		return
	}
	state := "off"
	if s.client.AutoReconnect() {
		state = "on"
	}
	s.printf("Auto-reconnect: %s\n", state)
}

func (s *Shell) cmdList(ctx context.Context) {
	resources, err := s.client.ListResources(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if len(resources) == 0 {
		s.println("No resources")
		return
	}
	for _, r := range resources {
		s.printf("  %-24s %-20s %s\n", r.URI, r.Name, r.Type)
	}
}

func (s *Shell) cmdRead(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.println("Usage: read <uri>")
		return
	}
	data, err := s.client.ReadResource(ctx, args[0])
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("%s\n", indent(data))
}

func (s *Shell) cmdWatch(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.println("Usage: watch <uri>")
		return
	}
	uri := args[0]
	ok, err := s.client.Subscribe(ctx, uri, func(data json.RawMessage) {
		s.mu.Lock()
		s.updates[uri]++
		s.last[uri] = time.Now().Format(time.TimeOnly)
		s.mu.Unlock()
		s.printf("[UPDATE] %s: %s\n", uri, string(data))
	})
	switch {
	case err != nil:
		s.printf("Error: %v\n", err)
	case !ok:
		s.printf("Server rejected subscription to %s\n", uri)
	default:
		s.printf("Watching %s\n", uri)
	}
}

func (s *Shell) cmdUnwatch(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.println("Usage: unwatch <uri>")
		return
	}
	ok, err := s.client.Unsubscribe(ctx, args[0])
	switch {
	case err != nil:
		s.printf("Error: %v\n", err)
	case !ok:
		s.printf("Server rejected unsubscribe from %s\n", args[0])
	default:
		s.printf("Stopped watching %s\n", args[0])
	}
}

func (s *Shell) cmdSubs() {
	uris := s.client.Subscriptions()
	if len(uris) == 0 {
		s.println("No subscriptions")
		return
	}
	sort.Strings(uris)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uri := range uris {
		last := s.last[uri]
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(s.out, "  %-24s updates=%d last=%s\n", uri, s.updates[uri], last)
	}
}

func (s *Shell) printHelp() {
	s.println(`
MCP Client Commands:
  Resources:
    list                 - List server resources
    read <uri>           - Read a resource
    watch <uri>          - Subscribe and print updates
    unwatch <uri>        - Unsubscribe
    subs                 - Show subscriptions

  Connection:
    status               - Show connection status
    connect              - Connect (or reconnect after giving up)
    disconnect           - Close the connection
    autoreconnect [on|off] - Show or set reconnection after a drop

  General:
    help                 - Show this help
    quit                 - Exit`)
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, msg)
}

// indent pretty-prints JSON, or returns it unchanged if it does not parse.
func indent(data json.RawMessage) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(b)
}
