// Package backoff computes retry-delay schedules for async atoms.
package backoff

import (
	"math"
	"time"
)

// Delay returns the wait after a failed attempt, where attempt is the
// zero-based index of the attempt that failed: base × multiplier^attempt.
// A multiplier <= 0 is treated as 1 (constant delay). The result
// saturates rather than overflowing.
func Delay(base time.Duration, multiplier float64, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	if attempt < 0 {
		attempt = 0
	}
	d := float64(base) * math.Pow(multiplier, float64(attempt))
	if d >= float64(math.MaxInt64) || math.IsInf(d, 1) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Schedule returns the full wait sequence for attempts retries.
func Schedule(base time.Duration, multiplier float64, attempts int) []time.Duration {
	if attempts <= 0 {
		return nil
	}
	out := make([]time.Duration, attempts)
	for i := range out {
		out[i] = Delay(base, multiplier, i)
	}
	return out
}
