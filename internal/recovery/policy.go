package recovery

import (
	"math"
	"math/rand"
	"time"
)

// Policy is an immutable retry configuration. Delay grows exponentially with
// the attempt number, capped at MaxDelay, optionally jittered to avoid
// synchronized retry storms across concurrent callers.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// AICallPolicy is the preset for AI provider calls: retries are costly per
// call, so fewer attempts with longer delays, capped near tens of seconds.
func AICallPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 3.0,
		Jitter:        true,
	}
}

// NetworkPolicy is the preset for plain network calls: transient blips
// recover fast, so more attempts with shorter delays and a smaller cap.
func NetworkPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Delay computes the backoff before retrying after the given zero-based
// attempt: min(BaseDelay * BackoffFactor^attempt, MaxDelay), multiplied by a
// uniform [0.5, 1.0) factor when jitter is enabled.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter {
		d *= 0.5 + rand.Float64()/2 //nolint:gosec // G404: jitter needs no cryptographic randomness
	}
	return time.Duration(d)
}
