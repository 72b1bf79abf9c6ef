package tangguh

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ambiyansyah-risyal/tangguh/internal/backoff"
)

// WithBaseURL sets the base URL prepended to relative request targets.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the http.Client backing the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport injects a custom transport, replacing the HTTP default.
// This is also the mock seam for tests.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithMiddleware appends middleware around the transport.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff caps the delay between retries.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the geometric growth factor of the retry delay.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (clamped to [0, 1]).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy replaces the default exponential-jitter strategy.
func WithBackoffStrategy(s backoff.Strategy) Option {
	return func(c *Client) {
		c.backoff = s
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithTimeout sets the per-request time budget, retries included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithCircuitBreaker configures the consecutive-failure threshold and the
// cooldown after which an open breaker self-closes.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Client) {
		c.circuitThreshold = threshold
		c.circuitCooldown = cooldown
	}
}

// WithTokenProvider sets the source of the current credential.
func WithTokenProvider(fn TokenProvider) Option {
	return func(c *Client) {
		c.tokenSource = fn
	}
}

// WithTokenRefresher enables single-flight credential renewal on
// authorization failures.
func WithTokenRefresher(fn TokenRefresher) Option {
	return func(c *Client) {
		c.refresher = fn
	}
}

// WithRateLimitDelay sets the minimum spacing of the FIFO request queue.
func WithRateLimitDelay(d time.Duration) Option {
	return func(c *Client) {
		c.rateLimitDelay = d
	}
}

// WithResponseTransformer rewrites successful response bodies before they
// reach the caller.
func WithResponseTransformer(fn ResponseTransformer) Option {
	return func(c *Client) {
		c.transform = fn
	}
}

// WithConnectivityObserver injects the connectivity signal the offline
// queue reacts to. Without an observer the client assumes it is online.
func WithConnectivityObserver(obs ConnectivityObserver) Option {
	return func(c *Client) {
		c.observer = obs
	}
}

// WithLogger enables debug logging through the given logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with the console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithMetrics enables Prometheus metrics on a collector-owned registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithHeader sets a default header at construction time.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithRequestIDGenerator replaces the request ID generator used for log
// correlation.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error describing every violation found.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.maxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.initialBackoff <= 0 {
		problems = append(problems, "initialBackoff must be positive")
	}
	if c.maxBackoff < c.initialBackoff {
		problems = append(problems, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.backoffMultiplier <= 0 {
		problems = append(problems, "backoffMultiplier must be positive")
	}
	if c.jitter < 0 || c.jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	if c.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.rateLimitDelay <= 0 {
		problems = append(problems, "rateLimitDelay must be positive")
	}
	if c.circuitThreshold <= 0 {
		problems = append(problems, "circuit breaker threshold must be positive")
	}
	if c.circuitCooldown <= 0 {
		problems = append(problems, "circuit breaker cooldown must be positive")
	}
	if c.transport == nil {
		problems = append(problems, "transport cannot be nil")
	}
	for i, mw := range c.middleware {
		if mw == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	if len(problems) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}
