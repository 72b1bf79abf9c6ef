package tangguh

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// cancelRegistry tracks the cancel functions of live cancelable requests.
// A handle is removed when canceled or when its request settles, whichever
// comes first.
type cancelRegistry struct {
	mu      sync.Mutex
	handles map[string]context.CancelFunc
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{handles: make(map[string]context.CancelFunc)}
}

func (r *cancelRegistry) add(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.handles[id] = cancel
	r.mu.Unlock()
}

func (r *cancelRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// cancelAll signals every registered handle and clears the registry.
func (r *cancelRegistry) cancelAll() int {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.handles))
	for _, cancel := range r.handles {
		cancels = append(cancels, cancel)
	}
	r.handles = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

func (r *cancelRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CancelableRequest is an in-flight request with a cooperative cancel handle.
type CancelableRequest struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	resp   *Response
	err    error
}

// Cancel aborts the underlying request. Cancellation is cooperative: state
// already mutated by a resolved attempt is not undone.
func (cr *CancelableRequest) Cancel() {
	cr.cancel()
}

// Wait blocks until the request settles and returns its outcome. A canceled
// request settles with a Canceled error.
func (cr *CancelableRequest) Wait() (*Response, error) {
	<-cr.done
	return cr.resp, cr.err
}

// Done exposes the settlement signal for select loops.
func (cr *CancelableRequest) Done() <-chan struct{} {
	return cr.done
}

// CancelableRequest issues req through the full pipeline and returns a
// handle that can abort it. The handle self-removes from the registry once
// the request settles.
func (c *Client) CancelableRequest(ctx context.Context, req *Request) *CancelableRequest {
	reqCtx, cancel := context.WithCancel(ctx)
	cr := &CancelableRequest{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	cr.cancel = func() {
		c.cancels.remove(cr.id)
		cancel()
	}
	c.cancels.add(cr.id, cr.cancel)

	go func() {
		resp, err := c.do(reqCtx, req)
		c.cancels.remove(cr.id)
		cancel()
		cr.resp = resp
		cr.err = err
		close(cr.done)
	}()

	return cr
}

// CancelAllRequests aborts every registered cancelable request and leaves
// the registry empty.
func (c *Client) CancelAllRequests() {
	n := c.cancels.cancelAll()
	if c.metrics != nil {
		c.metrics.RecordCancellations(n)
	}
	if c.logger != nil && n > 0 {
		c.logger.Info("canceled in-flight requests", "count", n)
	}
}
