package resilience

import (
	"math/rand"
	"time"
)

// RetryPolicy is the shared backoff shape used for the worker requeue
// delay, the proxy rate-limit cool-off, and scheduler recovery attempts
// (bus reconnect and leader-election retries use their own delays).
// Exponential with a cap
// and a bounded attempt count, plus optional jitter to avoid thundering
// herds when many tasks fail at once.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
	Jitter      float64 // fraction of the computed delay, e.g. 0.1 = +/-10%
}

// DefaultRetryPolicy matches the scheduler recovery backoff named in the
// spec: 60s base, doubling, capped at 10 minutes, 10 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   60 * time.Second,
		Factor:      2.0,
		Cap:         10 * time.Minute,
		MaxAttempts: 10,
		Jitter:      0.1,
	}
}

// WorkerRequeuePolicy matches the dispatch worker's requeue schedule:
// rate-limited, upstream 5xx, and transport failures are requeued with
// attempt+1 after 1s, 2s, 4s, up to a cap of 3 attempts before the
// worker gives up and publishes a failed CheckResult.
func WorkerRequeuePolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   1 * time.Second,
		Factor:      2.0,
		Cap:         4 * time.Second,
		MaxAttempts: 3,
	}
}

// Delay returns the backoff for the given zero-based attempt number,
// with jitter applied. Callers stop retrying once attempt >= MaxAttempts.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d > float64(p.Cap) {
			d = float64(p.Cap)
			break
		}
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt has used up the policy's budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
