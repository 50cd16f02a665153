package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// ErrBrowserStopped is returned by browse calls after Stop.
var ErrBrowserStopped = errors.New("browser stopped")

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Lookup and Find when ctx has no deadline.
	// Default: 3 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// Browser finds MCP servers with mDNS.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger

	// source produces answers until ctx ends; replaced in tests.
	source func(ctx context.Context, out chan<- update)

	mu      sync.Mutex
	stopped bool
	nextID  int
	cancels map[int]context.CancelFunc
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	b := &Browser{
		config:  config,
		cancels: make(map[int]context.CancelFunc),
	}
	b.source = b.zeroconfSource
	return b
}

// SetLogger sets the logger for browse diagnostics.
func (b *Browser) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

// Browse streams servers as they are found. Each instance is emitted once,
// on first sighting. The channel is closed when ctx ends or Stop is called.
func (b *Browser) Browse(ctx context.Context) (<-chan *Server, error) {
	ctx, done, err := b.track(ctx)
	if err != nil {
		return nil, err
	}

	updates := b.start(ctx)
	out := make(chan *Server)

	go func() {
		defer close(out)
		defer done()

		set := newServerSet()
		for u := range updates {
			if u.removed {
				set.remove(u.server)
				continue
			}
			if !set.add(u.server) {
				continue
			}
			select {
			case out <- u.server.clone():
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Lookup browses until ctx ends or the browse timeout elapses and returns
// every server still present, sorted by instance name.
func (b *Browser) Lookup(ctx context.Context) ([]*Server, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}

	ctx, done, err := b.track(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	set := newServerSet()
	for u := range b.start(ctx) {
		if u.removed {
			set.remove(u.server)
		} else {
			set.add(u.server)
		}
	}
	return set.list(), nil
}

// Find returns the first server whose instance or advertised name matches
// name, case-insensitively. An empty name matches any server.
func (b *Browser) Find(ctx context.Context, name string) (*Server, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	servers, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var found *Server
	for srv := range servers {
		if found == nil && matches(srv, name) {
			found = srv
			cancel()
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Stop ends all active browse operations. Later calls fail with
// ErrBrowserStopped.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func matches(srv *Server, name string) bool {
	if name == "" {
		return true
	}
	return strings.EqualFold(srv.Instance, name) || strings.EqualFold(srv.Name, name)
}

// track derives a cancellable context registered for Stop.
func (b *Browser) track(ctx context.Context) (context.Context, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil, nil, ErrBrowserStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel

	return ctx, func() {
		b.mu.Lock()
		delete(b.cancels, id)
		b.mu.Unlock()
		cancel()
	}, nil
}

// update is one browse answer converted to a Server.
type update struct {
	server  *Server
	removed bool
}

// start runs the source until ctx ends. The returned channel is closed
// when the browse is over.
func (b *Browser) start(ctx context.Context) <-chan update {
	out := make(chan update)
	go func() {
		defer close(out)
		b.source(ctx, out)
	}()
	return out
}

// zeroconfSource browses for ServiceType and converts the answers.
func (b *Browser) zeroconfSource(ctx context.Context, out chan<- update) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	go func() {
		errc <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	for {
		var u update
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			u.server = entryToServer(entry)
		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			u.server = entryToServer(entry)
			u.removed = true
		case err := <-errc:
			if err != nil {
				if b.logger != nil {
					b.logger.Warn("mdns browse failed", "service", ServiceType, "error", err)
				}
				return
			}
			errc = nil
			continue
		case <-ctx.Done():
			return
		}

		if b.logger != nil {
			b.logger.Debug("mdns answer", "instance", u.server.Instance,
				"addresses", u.server.Addresses, "removed", u.removed)
		}
		select {
		case out <- u:
		case <-ctx.Done():
			return
		}
	}
}

// interfaces returns the named interface, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// entryToServer converts a zeroconf entry to a Server.
func entryToServer(entry *zeroconf.ServiceEntry) *Server {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	srv := &Server{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      uint16(entry.Port),
		Addresses: addrs,
	}
	DecodeServerTXT(StringsToTXTRecords(entry.Text), srv)
	return srv
}

// serverSet aggregates answers by instance name. Addresses from multiple
// interfaces are merged into one entry.
type serverSet struct {
	servers map[string]*Server
}

func newServerSet() *serverSet {
	return &serverSet{servers: make(map[string]*Server)}
}

// add records srv and reports whether the instance is new.
func (s *serverSet) add(srv *Server) bool {
	existing, found := s.servers[srv.Instance]
	if !found {
		s.servers[srv.Instance] = srv.clone()
		return true
	}
	existing.Addresses = mergeAddresses(existing.Addresses, srv.Addresses)
	return false
}

// remove drops the addresses of srv and the instance once none remain.
// It reports whether the instance is gone.
func (s *serverSet) remove(srv *Server) bool {
	existing, found := s.servers[srv.Instance]
	if !found {
		return false
	}
	existing.Addresses = removeAddresses(existing.Addresses, srv.Addresses)
	if len(existing.Addresses) == 0 {
		delete(s.servers, srv.Instance)
		return true
	}
	return false
}

// list returns copies of all servers sorted by instance name.
func (s *serverSet) list() []*Server {
	out := make([]*Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func (s *Server) clone() *Server {
	c := *s
	c.Addresses = append([]string(nil), s.Addresses...)
	return &c
}

// mergeAddresses adds new addresses to the existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without the ones in gone.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
