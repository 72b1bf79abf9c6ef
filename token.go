package tangguh

import (
	"context"
	"sync"
)

// refreshCall is a broadcast-once future shared by every caller that hits an
// authorization failure while one renewal is in flight.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// tokenCoordinator injects the current credential into outgoing requests and
// coordinates single-flight renewal: at most one refresh runs at a time, and
// all concurrent authorization victims wait on its shared outcome.
type tokenCoordinator struct {
	mu       sync.Mutex
	provider TokenProvider
	refresh  TokenRefresher
	current  string
	inflight *refreshCall
}

func newTokenCoordinator(provider TokenProvider, refresh TokenRefresher) *tokenCoordinator {
	return &tokenCoordinator{provider: provider, refresh: refresh}
}

// token returns the credential to attach: the last refreshed token wins,
// otherwise the provider is consulted.
func (tc *tokenCoordinator) token() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.current != "" {
		return tc.current
	}
	if tc.provider != nil {
		return tc.provider()
	}
	return ""
}

// attach injects the current credential, if any, unless the request already
// carries an Authorization header.
func (tc *tokenCoordinator) attach(req *Request) {
	if _, ok := req.Headers["Authorization"]; ok {
		return
	}
	if tok := tc.token(); tok != "" {
		req.Headers["Authorization"] = "Bearer " + tok
	}
}

// canRefresh reports whether a refresher is configured at all.
func (tc *tokenCoordinator) canRefresh() bool {
	return tc != nil && tc.refresh != nil
}

// renew performs or joins the single-flight refresh. The owner return value
// reports whether this caller initiated the renewal; on refresh failure only
// the owner surfaces the renewal error, waiters resubmit with the unchanged
// credential and fail authorization on their own.
//
// The check-then-start sequence holds the lock, so a second caller can never
// slip in between observing no in-flight refresh and registering one.
func (tc *tokenCoordinator) renew(ctx context.Context) (token string, owner bool, err error) {
	tc.mu.Lock()
	if call := tc.inflight; call != nil {
		tc.mu.Unlock()
		select {
		case <-call.done:
			return call.token, false, call.err
		case <-ctx.Done():
			return "", false, classifyTransportError(ctx, ctx.Err())
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	tc.inflight = call
	tc.mu.Unlock()

	tok, refreshErr := tc.refresh(ctx)

	tc.mu.Lock()
	if refreshErr == nil {
		tc.current = tok
	}
	call.token = tok
	call.err = refreshErr
	tc.inflight = nil
	close(call.done)
	tc.mu.Unlock()

	return tok, true, refreshErr
}
