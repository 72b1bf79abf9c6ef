package tangguh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Request describes an outbound request before it is handed to the transport.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE, ...).
	Method string
	// Target is appended to the client's base URL. It may be a full URL if
	// no base URL is configured.
	Target string
	// Headers are request-specific headers, merged over the client defaults.
	Headers map[string]string
	// Query are URL query parameters.
	Query url.Values
	// Body is the request body. Accepts io.Reader, []byte, string,
	// *MultipartBody, or any value that will be JSON-encoded. A plain
	// io.Reader is consumed on the first attempt and cannot be replayed
	// across retries; the other kinds re-encode per attempt.
	Body any
}

// clone returns a shallow copy with its own header map so the pipeline can
// inject headers without mutating the caller's request.
func (r *Request) clone() *Request {
	out := *r
	out.Headers = make(map[string]string, len(r.Headers)+2)
	for k, v := range r.Headers {
		out.Headers[k] = v
	}
	return &out
}

// Response is the settled result of a request. The body has been fully read.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Header holds the response headers.
	Header http.Header
	// Body is the raw response body.
	Body []byte
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Transport performs one request attempt. Implementations return an error
// only for failures that prevented a response (network, timeout,
// cancellation); any received HTTP response is returned with a nil error and
// classified further up the pipeline.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a transport call for cross-cutting concerns.
type Middleware func(ctx context.Context, req *Request, next Transport) (*Response, error)

// TokenProvider returns the current credential, or "" when none is held.
type TokenProvider func() string

// TokenRefresher renews the credential, returning the new token.
type TokenRefresher func(ctx context.Context) (string, error)

// ResponseTransformer rewrites a successful response body before it is
// returned to the caller.
type ResponseTransformer func(body []byte) []byte

// RetryCondition determines whether a settled attempt should be retried.
type RetryCondition func(resp *Response, err error) bool

// ProgressFunc receives upload progress: bytes sent so far and the total.
type ProgressFunc func(sent, total int64)

// ConnectivityObserver reports connectivity transitions. The client
// subscribes once at construction and unsubscribes on Close.
type ConnectivityObserver interface {
	// Online reports the current connectivity state.
	Online() bool
	// Subscribe registers fn for state transitions and returns an
	// unsubscribe function.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Option represents a configuration option.
type Option func(*Client)
