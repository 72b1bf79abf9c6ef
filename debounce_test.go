package tangguh

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceSingleInvocation(t *testing.T) {
	d := newDebouncer()
	var calls atomic.Int32

	issue := func() (*Response, error) {
		calls.Add(1)
		return &Response{StatusCode: 200, Body: []byte("shared")}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Response, 5)
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := d.Do(context.Background(), "key", 30*time.Millisecond, issue)
			if err != nil {
				t.Errorf("Do() error: %v", err)
				return
			}
			results[i] = resp
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("Expected exactly one invocation, got %d", got)
	}
	for i, resp := range results {
		if resp != results[0] {
			t.Errorf("caller %d received a different response, expected the shared one", i)
		}
	}
}

func TestDebounceLatestCallWins(t *testing.T) {
	d := newDebouncer()
	var issued atomic.Value

	first := func() (*Response, error) {
		issued.Store("first")
		return &Response{StatusCode: 200}, nil
	}
	second := func() (*Response, error) {
		issued.Store("second")
		return &Response{StatusCode: 200}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Do(context.Background(), "key", 40*time.Millisecond, first)
	}()
	time.Sleep(10 * time.Millisecond)
	_, err := d.Do(context.Background(), "key", 40*time.Millisecond, second)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	<-done

	if got := issued.Load(); got != "second" {
		t.Errorf("Expected the later call's invocation to run, got %v", got)
	}
}

func TestDebounceDistinctKeys(t *testing.T) {
	d := newDebouncer()
	var calls atomic.Int32

	issue := func() (*Response, error) {
		calls.Add(1)
		return &Response{StatusCode: 200}, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Do(context.Background(), key, 20*time.Millisecond, issue)
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 2 {
		t.Errorf("Expected one invocation per key, got %d", got)
	}
}

func TestDebounceEntryRemovedAfterFire(t *testing.T) {
	d := newDebouncer()

	issue := func() (*Response, error) { return &Response{StatusCode: 200}, nil }

	if _, err := d.Do(context.Background(), "key", 10*time.Millisecond, issue); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got := d.pending(); got != 0 {
		t.Errorf("Expected entry removed after fire, pending=%d", got)
	}

	// A fresh call after settlement starts a new cycle.
	if _, err := d.Do(context.Background(), "key", 10*time.Millisecond, issue); err != nil {
		t.Fatalf("second Do() error: %v", err)
	}
}

func TestDebounceCallerContextReleasesOnlyCaller(t *testing.T) {
	d := newDebouncer()
	var calls atomic.Int32

	issue := func() (*Response, error) {
		calls.Add(1)
		return &Response{StatusCode: 200}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Do(ctx, "key", 50*time.Millisecond, issue)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errCh; err == nil {
		t.Error("Expected canceled caller to receive an error")
	}

	// The shared invocation still fires for other interested parties.
	resp, err := d.Do(context.Background(), "key", 50*time.Millisecond, issue)
	if err != nil || resp == nil {
		t.Fatalf("Expected the shared invocation to settle, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected one shared invocation, got %d", got)
	}
}

func TestDebounceKeyCanonicalization(t *testing.T) {
	a := url.Values{}
	a.Set("q", "x")
	a.Set("page", "1")

	b := url.Values{}
	b.Set("page", "1")
	b.Set("q", "x")

	if debounceKey("/users", a) != debounceKey("/users", b) {
		t.Error("Expected parameter order not to affect the key")
	}
	if debounceKey("/users", a) == debounceKey("/posts", a) {
		t.Error("Expected different targets to produce different keys")
	}
	if debounceKey("/users", nil) != "/users" {
		t.Error("Expected bare target for empty params")
	}
}
