package tangguh

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ambiyansyah-risyal/tangguh/internal/backoff"
)

// Client governs when and how a request reaches the transport: circuit
// breaking, retries with backoff, single-flight credential renewal,
// debouncing, throttling, offline buffering and cooperative cancellation.
// It is safe for concurrent use.
type Client struct {
	transport  Transport
	middleware []Middleware
	httpClient *http.Client
	baseURL    string

	headerMu sync.RWMutex
	headers  map[string]string

	breaker  *CircuitBreaker
	tokens   *tokenCoordinator
	debounce *debouncer
	throttle *throttler
	queue    *requestQueue
	offline  *offlineQueue
	cancels  *cancelRegistry

	observer    ConnectivityObserver
	unsubscribe func()
	closed      atomic.Bool

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoff           backoff.Strategy
	retryCondition    RetryCondition
	timeout           time.Duration
	rateLimitDelay    time.Duration

	circuitThreshold int
	circuitCooldown  time.Duration

	transform    ResponseTransformer
	tokenSource  TokenProvider
	refresher    TokenRefresher
	logger       Logger
	metrics      *MetricsCollector
	requestIDGen func() string

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	c := &Client{
		headers:           make(map[string]string),
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		backoff:           backoff.Exponential{},
		retryCondition:    DefaultRetryCondition,
		timeout:           10 * time.Second,
		rateLimitDelay:    300 * time.Millisecond,
		circuitThreshold:  5,
		circuitCooldown:   60 * time.Second,
		requestIDGen:      uuid.NewString,
		debounce:          newDebouncer(),
		throttle:          &throttler{},
		offline:           newOfflineQueue(),
		cancels:           newCancelRegistry(),
	}

	for _, option := range options {
		option(c)
	}

	if c.transport == nil {
		c.transport = NewHTTPTransport(c.baseURL, c.httpClient)
	}
	c.breaker = NewCircuitBreaker(c.circuitThreshold, c.circuitCooldown)
	c.tokens = newTokenCoordinator(c.tokenSource, c.refresher)
	c.queue = newRequestQueue(c.rateLimitDelay)
	c.queue.logger = c.logger
	c.queue.metrics = c.metrics
	if c.metrics != nil {
		c.debounce.onCoalesce = func(key string) { c.metrics.RecordDebounceCoalesced(key) }
	}
	if c.observer != nil {
		c.unsubscribe = c.observer.Subscribe(c.onConnectivityChange)
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// Close releases the connectivity subscription and rejects further requests.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// SetHeader sets a default header applied to every outgoing request.
func (c *Client) SetHeader(key, value string) {
	c.headerMu.Lock()
	c.headers[key] = value
	c.headerMu.Unlock()
}

// Get performs a GET request against target.
func (c *Client) Get(ctx context.Context, target string) (*Response, error) {
	return c.do(ctx, &Request{Method: http.MethodGet, Target: target})
}

// GetWithParams performs a GET request with query parameters.
func (c *Client) GetWithParams(ctx context.Context, target string, params url.Values) (*Response, error) {
	return c.do(ctx, &Request{Method: http.MethodGet, Target: target, Query: params})
}

// Post performs a POST request; see Request.Body for accepted body kinds.
func (c *Client) Post(ctx context.Context, target string, body any) (*Response, error) {
	return c.do(ctx, &Request{Method: http.MethodPost, Target: target, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, target string, body any) (*Response, error) {
	return c.do(ctx, &Request{Method: http.MethodPut, Target: target, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, target string, body any) (*Response, error) {
	return c.do(ctx, &Request{Method: http.MethodPatch, Target: target, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, target string) (*Response, error) {
	return c.do(ctx, &Request{Method: http.MethodDelete, Target: target})
}

// Do executes a prepared *Request through the full pipeline.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req)
}

// Upload performs a multipart POST with an optional progress callback.
func (c *Client) Upload(ctx context.Context, target string, body *MultipartBody, progress ProgressFunc) (*Response, error) {
	encoded, contentType, err := body.encode()
	if err != nil {
		return nil, &Error{Type: ErrorTypeValidation, Message: "encode multipart body", Cause: err}
	}

	reader := encoded
	if progress != nil {
		if sized, ok := encoded.(interface{ Len() int }); ok {
			reader = newProgressReader(reader, int64(sized.Len()), progress)
		} else {
			reader = newProgressReader(reader, -1, progress)
		}
	}

	return c.do(ctx, &Request{
		Method:  http.MethodPost,
		Target:  target,
		Headers: map[string]string{"Content-Type": contentType},
		Body:    reader,
	})
}

// Download performs a GET request and writes the body to w, returning the
// number of bytes written.
func (c *Client) Download(ctx context.Context, target string, w io.Writer) (int64, error) {
	resp, err := c.Get(ctx, target)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(resp.Body)
	if err != nil {
		return int64(n), &Error{Type: ErrorTypeTransport, Message: "write download body", Cause: err}
	}
	return int64(n), nil
}

// DebounceGet collapses rapid repeated GETs with the same target and
// parameters into one delayed, shared request. Callers arriving within the
// wait window share a single dispatch, parameterized from the last call.
func (c *Client) DebounceGet(ctx context.Context, target string, params url.Values, wait time.Duration) (*Response, error) {
	key := debounceKey(target, params)
	// The shared dispatch must outlive any individual caller's context.
	issueCtx := context.WithoutCancel(ctx)
	return c.debounce.Do(ctx, key, wait, func() (*Response, error) {
		return c.do(issueCtx, &Request{Method: http.MethodGet, Target: target, Query: params})
	})
}

// ThrottleRequest invokes fn once at least limit has elapsed since the
// previous throttled dispatch on this client.
func (c *Client) ThrottleRequest(ctx context.Context, limit time.Duration, fn func() (*Response, error)) (*Response, error) {
	if err := c.throttle.wait(ctx, limit); err != nil {
		return nil, err
	}
	return fn()
}

// EnqueueRequest appends fn to the FIFO rate-limit queue and blocks until
// its turn has run. Dispatches are spaced by the configured rate-limit delay.
func (c *Client) EnqueueRequest(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	return c.queue.Enqueue(ctx, fn)
}

// do is the single-request pipeline entry point with auth retry enabled.
func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	if c.closed.Load() {
		return nil, &Error{Type: ErrorTypeValidation, Message: "client is closed", Cause: ErrClientClosed}
	}
	return c.dispatch(ctx, req, true, nil)
}

// dispatch runs one logical request: breaker gate, offline buffering, token
// injection, then the retry loop over the transport. allowAuthRetry guards
// the single post-refresh resubmission so a stale credential cannot loop.
// issued, when non-nil, is invoked once the request has been handed to the
// transport or parked in the offline queue; replay uses it to serialize
// issuance order.
func (c *Client) dispatch(ctx context.Context, req *Request, allowAuthRetry bool, issued func()) (*Response, error) {
	start := time.Now()
	endpoint := endpointOf(req)

	var requestID string
	if c.logger != nil {
		requestID = c.requestIDGen()
		c.logger.Debug("starting request", "requestID", requestID, "method", req.Method, "target", req.Target)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(req.Method, endpoint)
		defer c.metrics.RecordRequestEnd(req.Method, endpoint)
	}

	if !c.breaker.Allow() {
		if issued != nil {
			issued()
		}
		if c.logger != nil {
			c.logger.Warn("circuit breaker open, rejecting request", "requestID", requestID, "target", req.Target)
		}
		if c.metrics != nil {
			c.metrics.RecordCircuitRejection()
			c.metrics.RecordError(ErrorTypeCircuitOpen, req.Method, endpoint)
		}
		return nil, &Error{Type: ErrorTypeCircuitOpen, Message: "circuit breaker is open", Cause: ErrCircuitOpen}
	}

	if c.observer != nil && !c.observer.Online() {
		if issued != nil {
			issued()
		}
		return c.bufferOffline(ctx, req, allowAuthRetry, requestID)
	}

	prepared := req.clone()
	c.headerMu.RLock()
	for k, v := range c.headers {
		if _, ok := prepared.Headers[k]; !ok {
			prepared.Headers[k] = v
		}
	}
	c.headerMu.RUnlock()
	c.tokens.attach(prepared)

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp *Response
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if c.logger != nil {
				c.logger.Info("retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", c.maxRetries)
			}
			if c.metrics != nil {
				c.metrics.RecordRetry(req.Method, endpoint)
			}
		}

		if attempt == 0 && issued != nil {
			issued()
		}
		resp, err = c.roundTrip(attemptCtx, prepared)

		// A dispatch that died of connectivity loss joins the offline queue
		// instead of surfacing, keeping the caller's promise pending.
		if err != nil && isConnectivityLoss(err) && c.observer != nil && !c.observer.Online() {
			return c.bufferOffline(ctx, req, allowAuthRetry, requestID)
		}

		if err == nil && resp.StatusCode == http.StatusUnauthorized && allowAuthRetry && c.tokens.canRefresh() {
			return c.handleAuthFailure(ctx, req, requestID)
		}

		if attempt < c.maxRetries && c.retryCondition(resp, err) {
			delay := c.retryDelay(resp, attempt)
			if c.logger != nil {
				c.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay)
			}
			if sleepErr := sleep(attemptCtx, delay); sleepErr != nil {
				err = sleepErr
				resp = nil
				break
			}
			continue
		}
		break
	}

	// One breaker update per logical request, from its settled outcome.
	// Caller-initiated cancellation says nothing about transport health, so
	// it counts as neither success nor failure.
	switch {
	case isCancellation(err):
	case err != nil || resp.StatusCode >= 500:
		c.breaker.RecordFailure()
	default:
		c.breaker.RecordSuccess()
	}
	if c.metrics != nil {
		open, _ := c.breaker.State()
		c.metrics.RecordCircuitState(open)
	}

	duration := time.Since(start)
	if c.metrics != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)
	}

	if err != nil {
		var typed *Error
		if e, ok := err.(*Error); ok {
			typed = e
		} else {
			typed = &Error{Type: ErrorTypeTransport, Message: "request failed", Cause: err}
		}
		if c.metrics != nil {
			c.metrics.RecordError(typed.Type, req.Method, endpoint)
		}
		return nil, typed
	}

	if !resp.IsSuccess() {
		statusErr := newStatusError(resp)
		if c.metrics != nil {
			c.metrics.RecordError(statusErr.Type, req.Method, endpoint)
		}
		return nil, statusErr
	}

	if c.transform != nil {
		resp.Body = c.transform(resp.Body)
	}
	if c.logger != nil {
		c.logger.Debug("request settled", "requestID", requestID, "status", resp.StatusCode, "duration", duration)
	}
	return resp, nil
}

// bufferOffline parks the invocation in the offline queue and leaves the
// caller pending until replay. The replay thunk is detached from the
// caller's context so a reconnect long after the original deadline still
// issues the request.
func (c *Client) bufferOffline(ctx context.Context, req *Request, allowAuthRetry bool, requestID string) (*Response, error) {
	replayCtx := context.WithoutCancel(ctx)
	entry := c.offline.Enqueue(func(issued func()) (*Response, error) {
		return c.dispatch(replayCtx, req, allowAuthRetry, issued)
	})

	if c.logger != nil {
		c.logger.Info("offline, request queued for replay", "requestID", requestID, "target", req.Target, "queued", c.offline.depth())
	}
	if c.metrics != nil {
		c.metrics.RecordOfflineDepth(c.offline.depth())
	}

	select {
	case <-entry.done:
		return entry.resp, entry.err
	case <-ctx.Done():
		return nil, classifyTransportError(ctx, ctx.Err())
	}
}

// handleAuthFailure coordinates the single-flight refresh and resubmits the
// original request exactly once with auth retry disabled.
func (c *Client) handleAuthFailure(ctx context.Context, req *Request, requestID string) (*Response, error) {
	if c.logger != nil {
		c.logger.Info("authorization failure, renewing credential", "requestID", requestID)
	}

	_, owner, err := c.tokens.renew(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordTokenRefresh("failure")
		}
		if owner {
			return nil, &Error{Type: ErrorTypeAuthRefresh, Message: "credential refresh failed", Cause: err}
		}
		// Waiters resubmit with the unchanged credential; their own
		// authorization failure surfaces below.
	} else if owner {
		if c.metrics != nil {
			c.metrics.RecordTokenRefresh("success")
		}
		if c.logger != nil {
			c.logger.Info("credential renewed", "requestID", requestID)
		}
	}

	return c.dispatch(ctx, req, false, nil)
}

// roundTrip applies the middleware chain around the transport.
func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if len(c.middleware) == 0 {
		return c.transport.Do(ctx, req)
	}

	current := c.transport
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := current
		current = TransportFunc(func(ctx context.Context, r *Request) (*Response, error) {
			return mw(ctx, r, next)
		})
	}
	return current.Do(ctx, req)
}

// isConnectivityLoss reports whether an error is a network-level failure
// attributable to lack of connectivity, as opposed to a timeout or an abort.
func isConnectivityLoss(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrorTypeTransport
}

// isCancellation reports whether an error is a caller-side abort.
func isCancellation(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrorTypeCanceled
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return classifyTransportError(ctx, ctx.Err())
	}
}

func endpointOf(req *Request) string {
	if req.Target == "" {
		return "unknown"
	}
	return req.Target
}
