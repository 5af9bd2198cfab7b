package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy computes retry decisions from an attempt count and an error class.
// It is pure and stateless; attempt counters live in the caller.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     float64
	MaxDelay    time.Duration

	// Jitter returns a uniform draw from [0,1). Left nil it uses the
	// shared PRNG; tests inject a deterministic source.
	Jitter func() float64
}

// DefaultPolicy mirrors the production retry envelope: up to 10 attempts,
// exponential delays 2s, 4s, 8s, ... capped at 60s, with full jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		BaseDelay:   2 * time.Second,
		Backoff:     2.0,
		MaxDelay:    60 * time.Second,
	}
}

// Decision is the outcome of one Decide call.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide returns abort for fatal errors regardless of attempt, abort once
// the attempt budget is spent, and otherwise a jittered backoff delay.
// attempt is 1-based: the count of attempts already made.
func (p Policy) Decide(attempt int, class Class) Decision {
	if class == ClassFatal {
		return Decision{}
	}
	if attempt > p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.delay(attempt)}
}

// delay applies full jitter: a uniform draw from [0, rawDelay(attempt)].
// Full jitter decorrelates simultaneous retries across tasks.
func (p Policy) delay(attempt int) time.Duration {
	raw := p.rawDelay(attempt)
	if raw <= 0 {
		return 0
	}
	draw := p.Jitter
	if draw == nil {
		draw = rand.Float64
	}
	return time.Duration(draw() * float64(raw))
}

// rawDelay is the pre-jitter exponential delay:
// min(MaxDelay, BaseDelay * Backoff^(attempt-1)).
func (p Policy) rawDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Backoff, float64(attempt-1))
	if limit := float64(p.MaxDelay); d > limit {
		d = limit
	}
	return time.Duration(d)
}
