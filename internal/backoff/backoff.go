// Package backoff provides the delay calculations used between retry
// attempts. Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before the retry following the given attempt
// number (0-based).
type Strategy interface {
	Delay(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential grows the delay geometrically with the attempt number and adds
// uniform jitter: delay = initial * multiplier^attempt * (1 + jitter*rand).
type Exponential struct{}

func (Exponential) Delay(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30 // overflow guard
	}

	d := time.Duration(float64(initial) * Pow(multiplier, attempt))
	if d < 0 || d > max {
		d = max
	}

	jitter = clamp(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(d) * jitter * rand.Float64())
		if d+extra > max {
			d = max
		} else {
			d += extra
		}
	}
	return d
}

// Decorrelated implements AWS-style decorrelated jitter: a random delay in
// [initial, min(max, initial*3^attempt)]. It spreads coordinated retries
// more evenly than exponential jitter under heavy contention.
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, initial, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initial
	}
	if attempt > 10 {
		attempt = 10 // overflow guard
	}

	base := float64(initial)
	upper := base * Pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < base {
		upper = base
	}

	d := time.Duration(base + rand.Float64()*(upper-base))
	if d < 0 || d > max {
		d = max
	}
	return d
}

// Pow computes base^exponent by repeated multiplication; attempts are small
// so this beats pulling in math.Pow's edge cases.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

func clamp(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}
