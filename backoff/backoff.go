// Package backoff provides retry delay strategies. The retry policy never
// waits less than a job's own floor (the larger of its job delay and minimum
// interval); a strategy can only stretch the delay beyond that floor.
//
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n. Attempt 1 is the
// first retry, which follows the first recorded failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Floor returns max(floor, s.Delay(attempt)). A nil strategy yields floor.
func Floor(s Strategy, attempt int, floor time.Duration) time.Duration {
	if s == nil {
		return floor
	}
	return max(floor, s.Delay(attempt))
}

// ── None ──────────────────────────────────────────

// None adds nothing to the job's floor.
type None struct{}

// Delay always returns zero.
func (None) Delay(int) time.Duration { return 0 }

// ── Constant ──────────────────────────────────────

// Constant returns the same delay for every attempt.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns Interval.
func (c *Constant) Delay(int) time.Duration { return c.Interval }

// ── Linear ────────────────────────────────────────

// Linear grows by Step per attempt, capped at Max when Max > 0.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

// NewLinear creates a linear strategy.
func NewLinear(step, maxDelay time.Duration) *Linear {
	return &Linear{Step: step, Max: maxDelay}
}

// Delay returns Step*attempt, capped.
func (l *Linear) Delay(attempt int) time.Duration {
	return capped(l.Step*time.Duration(attempt), l.Max)
}

// ── Exponential ───────────────────────────────────

// Exponential doubles from Initial each attempt, capped at Max when Max > 0.
// With Jitter set, the delay is drawn uniformly from [0, capped base].
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns Initial*2^(attempt-1), capped, optionally jittered.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if e.Jitter {
		base *= rand.Float64() //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(base)
}

func capped(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// DefaultStrategy is None: retries wait exactly the job's floor.
func DefaultStrategy() Strategy { return None{} }
