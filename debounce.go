package tangguh

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// debounceEntry is the shared pending result for one key. Every caller in
// the wait window blocks on done and receives the same response.
type debounceEntry struct {
	timer *time.Timer
	issue func() (*Response, error)
	done  chan struct{}
	resp  *Response
	err   error
}

// debouncer collapses rapid repeated calls with the same identity into one
// delayed, shared invocation. A repeated call within the wait window resets
// the pending timer and replaces the scheduled invocation, so exactly one
// request is dispatched, parameterized from the last call.
type debouncer struct {
	mu      sync.Mutex
	entries map[string]*debounceEntry

	// onCoalesce, when set, is invoked for every call that joined an
	// existing pending entry instead of creating its own.
	onCoalesce func(key string)
}

func newDebouncer() *debouncer {
	return &debouncer{entries: make(map[string]*debounceEntry)}
}

// Do schedules issue after wait, coalescing with any live entry for key.
// It blocks until the shared invocation settles or ctx is done; an expired
// context releases only this caller, the shared invocation still runs for
// the others.
func (d *debouncer) Do(ctx context.Context, key string, wait time.Duration, issue func() (*Response, error)) (*Response, error) {
	d.mu.Lock()
	entry, live := d.entries[key]
	if live {
		entry.issue = issue
		entry.timer.Reset(wait)
	} else {
		entry = &debounceEntry{
			issue: issue,
			done:  make(chan struct{}),
		}
		entry.timer = time.AfterFunc(wait, func() { d.fire(key) })
		d.entries[key] = entry
	}
	d.mu.Unlock()

	if live && d.onCoalesce != nil {
		d.onCoalesce(key)
	}

	select {
	case <-entry.done:
		return entry.resp, entry.err
	case <-ctx.Done():
		return nil, classifyTransportError(ctx, ctx.Err())
	}
}

// fire runs the latest scheduled invocation for key and releases waiters.
// The entry is removed before issuing, so calls arriving during the
// invocation start a fresh cycle.
func (d *debouncer) fire(key string) {
	d.mu.Lock()
	entry, ok := d.entries[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.entries, key)
	issue := entry.issue
	d.mu.Unlock()

	entry.resp, entry.err = issue()
	close(entry.done)
}

// pending returns the number of live entries.
func (d *debouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// debounceKey builds a collision-free identity from the target and the
// canonical encoding of its parameters. url.Values.Encode sorts keys, so two
// callers supplying the same parameters in a different order share one entry.
func debounceKey(target string, params url.Values) string {
	if len(params) == 0 {
		return target
	}
	return target + "?" + params.Encode()
}
