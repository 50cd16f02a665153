package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// Callback receives the freshly read data of a subscribed resource.
type Callback func(data json.RawMessage)

// Requester issues correlated requests.
// Implemented by rpc.Correlator.
type Requester interface {
	Request(ctx context.Context, method string, params any) (*wire.Response, error)
}

// entry is one registration. A re-subscribe creates a new entry, so a
// re-fetch can tell whether the registration it started for still exists.
type entry struct {
	cb Callback
}

// Registry maps resource URIs to callbacks.
type Registry struct {
	mu        sync.Mutex
	requester Requester
	entries   map[string]*entry
	closed    bool

	// Context for re-fetches; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger       *slog.Logger
	onFetchError func(uri string, err error)

	// Statistics
	notified  atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewRegistry creates a registry that issues its requests through r.
func NewRegistry(r Requester) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		requester: r,
		entries:   make(map[string]*entry),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetLogger sets the operational logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// OnFetchError sets a callback for failed re-fetches.
func (r *Registry) OnFetchError(fn func(uri string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFetchError = fn
}

// Subscribe asks the server to subscribe to uri and records cb on success.
//
// A negative acknowledgment returns false with a nil error and records
// nothing. Request failures are returned as errors.
func (r *Registry) Subscribe(ctx context.Context, uri string, cb Callback) (bool, error) {
	if cb == nil {
		return false, fmt.Errorf("subscribe %s: nil callback", uri)
	}

	ok, err := r.acknowledge(ctx, wire.MethodResourcesSubscribe, uri)
	if err != nil || !ok {
		return false, err
	}

	r.mu.Lock()
	r.entries[uri] = &entry{cb: cb}
	logger := r.logger
	r.mu.Unlock()

	if logger != nil {
		logger.Debug("subscribed", "uri", uri)
	}
	return true, nil
}

// Unsubscribe asks the server to unsubscribe from uri and removes the entry
// on success.
func (r *Registry) Unsubscribe(ctx context.Context, uri string) (bool, error) {
	ok, err := r.acknowledge(ctx, wire.MethodResourcesUnsubscribe, uri)
	if err != nil || !ok {
		return false, err
	}

	r.mu.Lock()
	delete(r.entries, uri)
	logger := r.logger
	r.mu.Unlock()

	if logger != nil {
		logger.Debug("unsubscribed", "uri", uri)
	}
	return true, nil
}

// acknowledge sends a subscribe-style request and reports the success flag.
func (r *Registry) acknowledge(ctx context.Context, method, uri string) (bool, error) {
	resp, err := r.requester.Request(ctx, method, wire.ResourceParams{URI: uri})
	if err != nil {
		return false, err
	}
	result, err := wire.DecodeResult(resp.Result)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, uri, err)
	}
	return result.Success, nil
}

// Resubscribe repeats the subscribe request for every registered URI,
// keeping the callbacks. It is used after a new connection is established,
// since the server forgets subscriptions with the connection. It returns the
// number of acknowledged URIs; entries the server rejects stay registered.
func (r *Registry) Resubscribe(ctx context.Context) (int, error) {
	var errs []error
	restored := 0
	for _, uri := range r.URIs() {
		ok, err := r.acknowledge(ctx, wire.MethodResourcesSubscribe, uri)
		switch {
		case err != nil:
			errs = append(errs, err)
		case !ok:
			errs = append(errs, fmt.Errorf("resubscribe %s: %w", uri, wire.ErrRejected))
		default:
			restored++
		}
	}
	return restored, errors.Join(errs...)
}

// Notify handles an update notification for uri.
//
// If a callback is registered, the resource is read again in the background
// and the callback receives the new data. It returns false when the
// notification was dropped.
func (r *Registry) Notify(uri string) bool {
	r.notified.Add(1)

	r.mu.Lock()
	e, ok := r.entries[uri]
	if !ok || r.closed {
		r.mu.Unlock()
		r.dropped.Add(1)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.refetch(uri, e)
	return true
}

// refetch reads uri and invokes the callback of e if e is still the
// registration for uri.
func (r *Registry) refetch(uri string, e *entry) {
	defer r.wg.Done()

	data, err := r.read(uri)

	r.mu.Lock()
	current := r.entries[uri] == e
	logger := r.logger
	onFetchError := r.onFetchError
	r.mu.Unlock()

	if err != nil {
		if logger != nil {
			logger.Warn("subscription refetch failed", "uri", uri, "error", err)
		}
		if onFetchError != nil {
			onFetchError(uri, err)
		}
		return
	}

	// Unsubscribed or replaced while the read was in flight.
	if !current {
		r.dropped.Add(1)
		return
	}

	r.delivered.Add(1)
	e.cb(data)
}

func (r *Registry) read(uri string) (json.RawMessage, error) {
	resp, err := r.requester.Request(r.ctx, wire.MethodResourcesRead, wire.ResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	result, err := wire.DecodeResult(resp.Result)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("read %s: %w: %s", uri, wire.ErrRejected, result.Message)
	}
	return result.Data, nil
}

// Has reports whether uri has a registered callback.
func (r *Registry) Has(uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[uri]
	return ok
}

// URIs returns the subscribed URIs in sorted order.
func (r *Registry) URIs() []string {
	r.mu.Lock()
	uris := make([]string, 0, len(r.entries))
	for uri := range r.entries {
		uris = append(uris, uri)
	}
	r.mu.Unlock()

	sort.Strings(uris)
	return uris
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes all entries locally without contacting the server.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
}

// Wait blocks until all in-flight re-fetches have finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight re-fetches and waits for them. Later
// notifications are dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// Stats returns registry statistics.
func (r *Registry) Stats() Stats {
	return Stats{
		Subscriptions: r.Len(),
		Notified:      r.notified.Load(),
		Dropped:       r.dropped.Load(),
		Delivered:     r.delivered.Load(),
	}
}

// Stats contains registry statistics.
type Stats struct {
	Subscriptions int
	Notified      uint64
	Dropped       uint64
	Delivered     uint64
}
