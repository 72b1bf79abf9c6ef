// Package tangguh provides a resilient request/response client that governs
// when and how a request actually reaches the transport:
//
//   - Circuit breaker gating every dispatch on recent failure history
//   - Retries with exponential backoff + jitter (Retry-After aware)
//   - Single-flight credential refresh shared by all concurrent 401 victims
//   - Debouncing of duplicate idempotent requests (one shared in-flight result)
//   - Throttling and a FIFO rate-limit queue with minimum inter-request spacing
//   - Offline queue that buffers requests during connectivity loss and replays
//     them on reconnect
//   - Cancelable request handles with cancel-one / cancel-all semantics
//   - Batch execution and page walking built on the same pipeline
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - The transport is an injected capability, trivially swapped for a mock
//   - Safe concurrent use of a single *Client instance
//   - Prometheus metrics and lightweight structured debug logging
//
// Typical usage:
//
//	client := tangguh.New(
//	    tangguh.WithBaseURL("https://api.example.com"),
//	    tangguh.WithMaxRetries(3),
//	    tangguh.WithCircuitBreaker(5, time.Minute),
//	    tangguh.WithTokenProvider(store.Token),
//	    tangguh.WithTokenRefresher(store.Refresh),
//	)
//	resp, err := client.Get(ctx, "/users")
//
// Every error surfaced to callers is a *Error carrying a message, the HTTP
// status where one exists, and the raw response body; see IsTransient and the
// ErrorType constants for classification.
package tangguh
