package tangguh

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttler enforces a minimum gap between successive dispatches. The last
// dispatch time is shared across all throttled calls on a client.
type throttler struct {
	mu   sync.Mutex
	last time.Time
}

// wait blocks until at least limit has elapsed since the previous dispatch.
// The dispatch slot is reserved under the lock, so concurrent callers are
// spaced out in arrival order rather than all sleeping until the same
// deadline.
func (t *throttler) wait(ctx context.Context, limit time.Duration) error {
	t.mu.Lock()
	now := time.Now()
	var delay time.Duration
	if !t.last.IsZero() {
		if gap := now.Sub(t.last); gap < limit {
			delay = limit - gap
		}
	}
	t.last = now.Add(delay)
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return classifyTransportError(ctx, ctx.Err())
	}
}

// queueEntry is a deferred invocation plus its settlement. The queue owns the
// entry until it has been executed.
type queueEntry struct {
	fn   func() (*Response, error)
	done chan struct{}
	resp *Response
	err  error
}

func newQueueEntry(fn func() (*Response, error)) *queueEntry {
	return &queueEntry{fn: fn, done: make(chan struct{})}
}

func (e *queueEntry) settle(resp *Response, err error) {
	e.resp = resp
	e.err = err
	close(e.done)
}

// requestQueue serializes requests with a minimum inter-request delay.
// Dispatch order is strictly FIFO; the drain loop runs on demand and exits
// once the queue is empty.
type requestQueue struct {
	mu       sync.Mutex
	entries  []*queueEntry
	delay    time.Duration
	limiter  *rate.Limiter
	draining bool

	logger  Logger
	metrics *MetricsCollector
}

func newRequestQueue(delay time.Duration) *requestQueue {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &requestQueue{
		delay:   delay,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Enqueue appends fn and blocks until the drain loop has executed it. The
// caller's context releases only the caller; the queued entry still runs in
// its turn so FIFO spacing is preserved for everyone behind it.
func (q *requestQueue) Enqueue(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	entry := newQueueEntry(fn)

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	depth := len(q.entries)
	if !q.draining {
		q.draining = true
		go q.drain()
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.RecordQueueDepth(depth)
	}

	select {
	case <-entry.done:
		return entry.resp, entry.err
	case <-ctx.Done():
		return nil, classifyTransportError(ctx, ctx.Err())
	}
}

func (q *requestQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		entry := q.entries[0]
		q.entries = q.entries[1:]
		depth := len(q.entries)
		q.mu.Unlock()

		if q.metrics != nil {
			q.metrics.RecordQueueDepth(depth)
		}

		// The limiter only matters across drain restarts: an entry arriving
		// just after the loop exited must still keep its distance from the
		// last dispatch. Within one drain pass the token has already accrued.
		if err := q.limiter.Wait(context.Background()); err != nil {
			entry.settle(nil, classifyTransportError(context.Background(), err))
			continue
		}

		if q.logger != nil {
			q.logger.Debug("dispatching queued request")
		}
		entry.settle(entry.fn())

		// The gap to the next dequeue is measured from completion, so a slow
		// entry never causes the one behind it to fire back to back.
		time.Sleep(q.delay)
	}
}

// depth returns the number of entries not yet handed to the drain loop.
func (q *requestQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
