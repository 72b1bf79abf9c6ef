package tangguh

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryCondition retries transport-level failures and transient HTTP
// responses (429 and 5xx). Circuit-open and cancellation failures never reach
// this condition; they bypass the retry loop entirely.
func DefaultRetryCondition(resp *Response, err error) bool {
	if err != nil {
		return IsTransient(err)
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == 429 || resp.StatusCode >= 500
}

// retryDelay picks the wait before the next attempt: an explicit Retry-After
// from the server wins, otherwise the configured backoff strategy.
func (c *Client) retryDelay(resp *Response, attempt int) time.Duration {
	if resp != nil {
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			return d
		}
	}
	return c.backoff.Delay(attempt, c.initialBackoff, c.maxBackoff, c.backoffMultiplier, c.jitter)
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms, capped at
// one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		d := time.Duration(seconds) * time.Second
		if d > time.Hour {
			d = time.Hour
		}
		return d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d > 0 && d <= time.Hour {
			return d
		}
	}

	return 0
}
