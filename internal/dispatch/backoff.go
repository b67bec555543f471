package dispatch

import (
	"math/rand"
	"time"
)

// BackoffStrategy computes the wait before the next retry attempt.
// attempt is the zero-based index of the attempt that just failed.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ConstantBackoff waits the same interval between every attempt. It is
// the default policy: one second between attempts, matching the
// documented dispatch behavior.
type ConstantBackoff struct {
	Interval time.Duration
}

func (b ConstantBackoff) Next(int) time.Duration {
	return b.Interval
}

// LinearBackoff waits Step after the first failure, 2*Step after the
// second, and so on, capped at Max.
type LinearBackoff struct {
	Step time.Duration
	Max  time.Duration
}

func (b LinearBackoff) Next(attempt int) time.Duration {
	wait := time.Duration(attempt+1) * b.Step
	if b.Max > 0 && wait > b.Max {
		wait = b.Max
	}
	return wait
}

// ExponentialBackoff doubles the wait after each failure, capped at Max,
// with optional proportional jitter to avoid synchronised retries.
// Jitter is a fraction of the computed wait (0.2 = up to ±20%).
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	wait := b.Initial
	for i := 0; i < attempt; i++ {
		wait *= 2
		if b.Max > 0 && wait >= b.Max {
			wait = b.Max
			break
		}
	}
	if b.Max > 0 && wait > b.Max {
		wait = b.Max
	}
	if b.Jitter > 0 {
		delta := (rand.Float64()*2 - 1) * b.Jitter * float64(wait)
		wait += time.Duration(delta)
		if wait < 0 {
			wait = 0
		}
	}
	return wait
}

// DefaultBackoff returns the default constant one-second strategy.
func DefaultBackoff() BackoffStrategy {
	return ConstantBackoff{Interval: time.Second}
}
