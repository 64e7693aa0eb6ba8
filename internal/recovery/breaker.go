package recovery

import (
	"sync"
	"time"
)

// State is a circuit breaker's observable state.
type State string

// Breaker states.
const (
	StateClosed          State = "closed"
	StateOpen            State = "open"
	StateHalfOpen        State = "half_open"
	StateHalfOpenProbing State = "half_open_probing"
)

// Breaker is a per-operation fail-fast state machine. Each instance has
// independent state guarded by its own mutex. The mutex guards only state
// reads and writes, never the (possibly slow) underlying call, so a slow
// probe cannot block other callers' fast-fail checks.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
	open            bool
	probing         bool
}

// NewBreaker creates a breaker for the named operation. It opens after
// threshold consecutive failures and admits a single probe call once
// resetTimeout has elapsed since the last failure.
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Name returns the operation name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current observable state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.probing:
		return StateHalfOpenProbing
	case !b.open:
		return StateClosed
	case time.Since(b.lastFailureTime) >= b.resetTimeout:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

// Call runs fn through the breaker. When the breaker is open (or another
// caller's probe is in flight) fn is never invoked and a CircuitOpenError is
// returned; the underlying operation's error type never leaks from a
// rejection.
func (b *Breaker) Call(fn func() error) error {
	probe, err := b.begin()
	if err != nil {
		return err
	}

	// Underlying call runs outside the state mutex.
	callErr := fn()
	b.record(probe, callErr)
	return callErr
}

// begin admits or rejects one call. When the reset timeout has elapsed on an
// open breaker, exactly one caller wins the probe slot atomically; everyone
// else is rejected like OPEN until the probe resolves.
func (b *Breaker) begin() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return false, nil
	}
	if b.probing {
		return false, &CircuitOpenError{Operation: b.name}
	}

	remaining := b.resetTimeout - time.Since(b.lastFailureTime)
	if remaining > 0 {
		return false, &CircuitOpenError{Operation: b.name, RetryAfter: remaining}
	}

	b.probing = true
	return true, nil
}

// record applies one call outcome to breaker state.
func (b *Breaker) record(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
		if callErr == nil {
			b.open = false
			b.failureCount = 0
			return
		}
		// Failed probe reopens and restarts the reset timer.
		b.lastFailureTime = time.Now()
		return
	}

	if callErr == nil {
		b.failureCount = 0
		return
	}

	b.failureCount++
	b.lastFailureTime = time.Now()
	if b.failureCount >= b.threshold {
		b.open = true
	}
}

// Snapshot reports breaker state for diagnostics.
type Snapshot struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// Snapshot returns a point-in-time copy of the breaker's state.
func (b *Breaker) Snapshot() Snapshot {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        state,
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailureTime,
	}
}
