package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 5 * time.Second

// Link sends encoded requests to the peer.
type Link interface {
	Send(data []byte) error
}

// pendingRequest is one request awaiting its response.
type pendingRequest struct {
	future    *Future
	createdAt time.Time
	timer     *time.Timer
}

// Correlator matches responses to outstanding requests.
type Correlator struct {
	mu sync.Mutex

	link    Link
	timeout time.Duration

	// Last identifier issued. Identifiers are never reused.
	lastID uint64

	pending map[uint64]*pendingRequest

	logger    *slog.Logger
	onRequest func(req *wire.Request)
}

// NewCorrelator creates a correlator with the given request timeout.
// A non-positive timeout selects DefaultTimeout.
func NewCorrelator(timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		timeout: timeout,
		pending: make(map[uint64]*pendingRequest),
	}
}

// SetLogger sets the operational logger.
func (c *Correlator) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// OnRequest sets a hook invoked after each request is handed to the link.
func (c *Correlator) OnRequest(fn func(req *wire.Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRequest = fn
}

// Timeout returns the per-request timeout.
func (c *Correlator) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Attach sets the link used for subsequent requests.
func (c *Correlator) Attach(link Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = link
}

// Attached reports whether a link is attached.
func (c *Correlator) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Detach removes the link and fails every pending request with
// ErrConnectionLost. It returns the number of requests failed.
func (c *Correlator) Detach() int {
	c.mu.Lock()
	c.link = nil
	victims := c.pending
	c.pending = make(map[uint64]*pendingRequest)
	for _, p := range victims {
		p.timer.Stop()
	}
	logger := c.logger
	c.mu.Unlock()

	for id, p := range victims {
		p.future.settle(nil, fmt.Errorf("%w: %s (id %d)", ErrConnectionLost, p.future.method, id))
	}
	if logger != nil && len(victims) > 0 {
		logger.Debug("Detach: failed pending requests", "count", len(victims))
	}
	return len(victims)
}

// Call sends a request and returns its future without waiting.
//
// With no link attached the returned future has already failed with
// ErrNotConnected; no identifier is consumed and nothing is sent.
func (c *Correlator) Call(method string, params any) *Future {
	c.mu.Lock()
	if c.link == nil {
		c.mu.Unlock()
		return failedFuture(method, fmt.Errorf("%w: %s", ErrNotConnected, method))
	}

	c.lastID++
	id := c.lastID
	req := &wire.Request{Method: method, Params: params, ID: id}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		c.mu.Unlock()
		return failedFuture(method, err)
	}

	// Register before sending so a fast response always finds its entry.
	p := &pendingRequest{
		future:    newFuture(id, method),
		createdAt: time.Now(),
	}
	p.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	c.pending[id] = p

	link := c.link
	onRequest := c.onRequest
	logger := c.logger
	c.mu.Unlock()

	if err := link.Send(data); err != nil {
		c.settle(id, nil, fmt.Errorf("%w: send %s: %v", ErrConnectionLost, method, err))
		return p.future
	}

	if onRequest != nil {
		onRequest(req)
	}
	if logger != nil {
		logger.Debug("Call: request sent", "id", id, "method", method)
	}
	return p.future
}

// Request sends a request and waits for its outcome.
// If ctx ends first the request is abandoned with ctx's error.
func (c *Correlator) Request(ctx context.Context, method string, params any) (*wire.Response, error) {
	f := c.Call(method, params)
	select {
	case <-f.Done():
	case <-ctx.Done():
		c.settle(f.ID(), nil, ctx.Err())
	}
	return f.Result()
}

// Resolve delivers a response to its pending request.
// It returns false if no request with that identifier is pending.
func (c *Correlator) Resolve(resp *wire.Response) bool {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if !ok {
		return false
	}

	err := resp.Validate()
	if err == nil && resp.Error != nil {
		err = &RemoteError{
			Method:  p.future.method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	if err != nil {
		return c.settle(resp.ID, nil, err)
	}
	return c.settle(resp.ID, resp, nil)
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Inflight reports the method and age of the pending request id.
func (c *Correlator) Inflight(id uint64) (method string, age time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return "", 0, false
	}
	return p.future.method, time.Since(p.createdAt), true
}

// LastID returns the most recently issued identifier.
func (c *Correlator) LastID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// expire fails a request whose timeout fired.
func (c *Correlator) expire(id uint64) {
	c.mu.Lock()
	p, ok := c.pending[id]
	logger := c.logger
	timeout := c.timeout
	c.mu.Unlock()
	if !ok {
		return
	}

	if c.settle(id, nil, fmt.Errorf("%w: %s (id %d) after %v", ErrTimeout, p.future.method, id, timeout)) && logger != nil {
		logger.Debug("expire: request timed out", "id", id, "method", p.future.method,
			"age", time.Since(p.createdAt))
	}
}

// settle removes a pending request and settles its future.
// Returns false if the request was no longer pending.
func (c *Correlator) settle(id uint64, resp *wire.Response, err error) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		p.timer.Stop()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	return p.future.settle(resp, err)
}
