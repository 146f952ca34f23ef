package worker

import (
	"time"

	"github.com/yourusername/webhookrelay/internal/jitter"
)

// backoffDelay computes the delay before dispatching attempt n+1,
// given that attempt n (1-based) just failed:
//
//	delay(n) = min(cap, base * 2^(n-1)) * (1 + jitter)
//
// where jitter is uniform in [-0.5, 0.5). Rounded to the nearest
// second since not every queue implementation accepts fractional
// delays.
func backoffDelay(n int, base, cap_ time.Duration, src jitter.Source) time.Duration {
	nominal := base << uint(n-1)
	if nominal > cap_ || nominal <= 0 {
		nominal = cap_
	}
	jitterFactor := 1 + (src.Float64() - 0.5)
	delay := time.Duration(float64(nominal) * jitterFactor)
	return delay.Round(time.Second)
}
