package tangguh

import "sync"

// offlineEntry is a buffered replay thunk plus its settlement. The thunk
// receives an issued callback and invokes it once the request has been handed
// to the transport (or parked again), so replay can serialize issuance.
type offlineEntry struct {
	fn   func(issued func()) (*Response, error)
	done chan struct{}
	resp *Response
	err  error
}

func (e *offlineEntry) settle(resp *Response, err error) {
	e.resp = resp
	e.err = err
	close(e.done)
}

// offlineQueue buffers replay thunks for requests issued during a
// connectivity outage. Replay dispatches entries in insertion order; only
// completion is concurrent.
type offlineQueue struct {
	mu      sync.Mutex
	entries []*offlineEntry
}

func newOfflineQueue() *offlineQueue {
	return &offlineQueue{}
}

// Enqueue captures a retryable invocation. The caller's promise stays
// pending until the thunk has been replayed.
func (q *offlineQueue) Enqueue(fn func(issued func()) (*Response, error)) *offlineEntry {
	entry := &offlineEntry{fn: fn, done: make(chan struct{})}
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	return entry
}

// Replay issues every queued thunk exactly once. Each entry runs in its own
// goroutine, but the next entry is not started until the previous one has
// reported issuance, so requests reach the transport in insertion order while
// completions stay concurrent. The queue is cleared before issuing so that
// requests failing again while still offline re-enqueue cleanly.
func (q *offlineQueue) Replay() int {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	go func() {
		for _, entry := range entries {
			entry := entry
			issued := make(chan struct{})
			var once sync.Once
			signal := func() { once.Do(func() { close(issued) }) }

			go func() {
				entry.settle(entry.fn(signal))
				// Entries that settled before reaching the transport must
				// not stall the rest of the replay.
				signal()
			}()
			<-issued
		}
	}()
	return len(entries)
}

// depth returns the number of buffered entries.
func (q *offlineQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// onConnectivityChange is the client's single subscription callback.
func (c *Client) onConnectivityChange(online bool) {
	if !online {
		if c.logger != nil {
			c.logger.Warn("connectivity lost, buffering requests")
		}
		return
	}

	replayed := c.offline.Replay()
	if c.metrics != nil {
		c.metrics.RecordOfflineReplay(replayed)
	}
	if c.logger != nil && replayed > 0 {
		c.logger.Info("connectivity restored, replaying queued requests", "count", replayed)
	}
}
