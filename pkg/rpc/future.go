package rpc

import (
	"context"
	"sync"

	"github.com/esp32-mcp/mcp-client-go/pkg/wire"
)

// Future is the eventual outcome of one request.
type Future struct {
	id     uint64
	method string

	once sync.Once
	done chan struct{}
	resp *wire.Response
	err  error
}

func newFuture(id uint64, method string) *Future {
	return &Future{
		id:     id,
		method: method,
		done:   make(chan struct{}),
	}
}

// failedFuture returns a future that is already settled with err.
func failedFuture(method string, err error) *Future {
	f := newFuture(0, method)
	f.settle(nil, err)
	return f
}

// ID returns the request identifier, or 0 if no identifier was allocated.
func (f *Future) ID() uint64 {
	return f.id
}

// Method returns the request method.
func (f *Future) Method() string {
	return f.method
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the future settles and returns its outcome.
func (f *Future) Result() (*wire.Response, error) {
	<-f.done
	return f.resp, f.err
}

// Wait blocks until the future settles or ctx is done.
// Returning on ctx does not settle the future; use Correlator.Request to
// abandon the pending request as well.
func (f *Future) Wait(ctx context.Context) (*wire.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle records the outcome. Only the first call has any effect.
func (f *Future) settle(resp *wire.Response, err error) bool {
	settled := false
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}
