package tangguh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingTransport(release <-chan struct{}) TransportFunc {
	return func(ctx context.Context, req *Request) (*Response, error) {
		select {
		case <-release:
			return &Response{StatusCode: 200}, nil
		case <-ctx.Done():
			return nil, classifyTransportError(ctx, ctx.Err())
		}
	}
}

func TestCancelableRequestCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := New(WithTransport(blockingTransport(release)), WithMaxRetries(0))
	defer c.Close()

	cr := c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/slow"})
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, c.cancels.size())

	cr.Cancel()
	resp, err := cr.Wait()

	assert.Nil(t, resp)
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorTypeCanceled, ce.Type)
	assert.True(t, errors.Is(err, ErrCanceled))
	assert.Equal(t, 0, c.cancels.size())
}

func TestCancelableRequestNaturalSettle(t *testing.T) {
	c := New(WithTransport(TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200, Body: []byte(`done`)}, nil
	})))
	defer c.Close()

	cr := c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/fast"})

	select {
	case <-cr.Done():
	case <-time.After(time.Second):
		t.Fatal("request never settled")
	}
	resp, err := cr.Wait()
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 0, c.cancels.size(), "settled request left its handle registered")
}

func TestCancelAllRequests(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := New(WithTransport(blockingTransport(release)), WithMaxRetries(0))
	defer c.Close()

	handles := []*CancelableRequest{
		c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/a"}),
		c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/b"}),
		c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/c"}),
	}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, c.cancels.size())

	c.CancelAllRequests()

	for _, cr := range handles {
		_, err := cr.Wait()
		require.Error(t, err)
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrorTypeCanceled, ce.Type)
	}
	assert.Equal(t, 0, c.cancels.size())
}

func TestCancelAllRequestsLeavesBreakerClosed(t *testing.T) {
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if req.Target == "/ok" {
			return &Response{StatusCode: 200}, nil
		}
		<-ctx.Done()
		return nil, classifyTransportError(ctx, ctx.Err())
	})

	c := New(
		WithTransport(transport),
		WithMaxRetries(0),
		WithCircuitBreaker(3, time.Hour),
	)
	defer c.Close()

	handles := []*CancelableRequest{
		c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/slow"}),
		c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/slow"}),
		c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/slow"}),
	}
	time.Sleep(20 * time.Millisecond)

	c.CancelAllRequests()
	for _, cr := range handles {
		_, err := cr.Wait()
		require.Error(t, err)
	}

	// Caller aborts are not transport failures; a healthy transport stays
	// reachable afterwards.
	open, failures := c.breaker.State()
	assert.False(t, open, "breaker opened from caller cancellations alone")
	assert.Equal(t, 0, failures)

	resp, err := c.Get(context.Background(), "/ok")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestCancelAfterSettleIsHarmless(t *testing.T) {
	c := New(WithTransport(TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})))
	defer c.Close()

	cr := c.CancelableRequest(context.Background(), &Request{Method: "GET", Target: "/fast"})
	resp, err := cr.Wait()
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	cr.Cancel()
	resp2, err2 := cr.Wait()
	assert.Equal(t, resp, resp2)
	assert.NoError(t, err2)
}

func TestCancelRegistryCountsDistinctHandles(t *testing.T) {
	r := newCancelRegistry()

	var fired atomic.Int32
	for _, id := range []string{"a", "b"} {
		r.add(id, func() { fired.Add(1) })
	}
	require.Equal(t, 2, r.size())

	r.remove("a")
	assert.Equal(t, 1, r.size())

	assert.Equal(t, 1, r.cancelAll())
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, r.size())
}
