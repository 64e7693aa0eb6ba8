package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fundscout/scout/pkg/errlog"
)

// Action is one downstream call executed under recovery.
type Action func(ctx context.Context) (any, error)

const (
	// historyPerOperation bounds the rolling error history per operation.
	historyPerOperation = 100
	// historyTTL bounds how long history records stay summarizable.
	historyTTL = 24 * time.Hour
)

// Manager composes classification, retry, circuit breaking, and fallbacks
// into a single call wrapper. Construct one at startup and pass it to every
// consumer; there is no ambient instance. Breaker and history state are
// process-local and never persisted: every process starts with closed
// breakers and an empty history.
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	fallbacks map[string]Action

	history *errlog.Log
	sleep   func(ctx context.Context, d time.Duration) error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSleeper overrides the retry sleep (used in tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) { m.sleep = sleep }
}

// NewManager creates an empty recovery manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		breakers:  make(map[string]*Breaker),
		fallbacks: make(map[string]Action),
		history:   errlog.New(historyPerOperation, historyTTL),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RegisterBreaker installs a circuit breaker for the named operation.
// One-time startup wiring; re-registering replaces the breaker.
func (m *Manager) RegisterBreaker(name string, threshold int, resetTimeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[name] = NewBreaker(name, threshold, resetTimeout)
}

// RegisterFallback installs a fallback action for the named operation.
func (m *Manager) RegisterFallback(name string, fn Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[name] = fn
}

func (m *Manager) breaker(name string) *Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

func (m *Manager) fallback(name string) Action {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallbacks[name]
}

// Execute runs action for the named operation under the full recovery stack:
// through the operation's circuit breaker (if registered), retried per
// policy when the classified error recommends it, falling back to the
// operation's registered fallback when recommended, and otherwise returning
// the original error. Circuit-open rejections are never retried.
//
// A fallback's own failure propagates as its own error, not the original.
// Callers needing a hard total deadline wrap ctx themselves; Execute's only
// waiting is the sum of retry delays.
func (m *Manager) Execute(ctx context.Context, operation string, action Action, policy Policy) (any, error) {
	for attempt := 0; ; attempt++ {
		result, err := m.invoke(ctx, operation, action)
		if err == nil {
			return result, nil
		}

		var openErr *CircuitOpenError
		if errors.As(err, &openErr) {
			m.record(&errlog.Record{
				Operation: operation,
				Category:  string(CategorySystem),
				Severity:  string(SeverityHigh),
				Message:   err.Error(),
			})
			if fb := m.fallback(operation); fb != nil {
				slog.Warn("circuit open, using fallback", "operation", operation)
				return fb(ctx)
			}
			return nil, err
		}

		info := Classify(err, operation, nil)
		m.record(&errlog.Record{
			ID:        info.ID,
			Operation: operation,
			Category:  string(info.Category),
			Severity:  string(info.Severity),
			Message:   info.Message,
		})

		if info.HasAction(ActionRetry) && attempt+1 < policy.MaxAttempts {
			slog.Debug("retrying operation",
				"operation", operation, "attempt", attempt+1, "category", info.Category)
			if sleepErr := m.sleep(ctx, policy.Delay(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if info.HasAction(ActionFallback) {
			if fb := m.fallback(operation); fb != nil {
				slog.Warn("using fallback after unrecoverable failure",
					"operation", operation, "category", info.Category)
				return fb(ctx)
			}
		}

		return nil, err
	}
}

// invoke runs the action through the operation's breaker when one is registered.
func (m *Manager) invoke(ctx context.Context, operation string, action Action) (any, error) {
	b := m.breaker(operation)
	if b == nil {
		return action(ctx)
	}

	var result any
	err := b.Call(func() error {
		r, callErr := action(ctx)
		result = r
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) record(r *errlog.Record) {
	r.Timestamp = time.Now().UTC()
	m.history.Append(*r)
}

// Summary aggregates the rolling error history for observability only;
// nothing reads it for control flow.
type Summary struct {
	WindowHours float64        `json:"window_hours"`
	Total       int            `json:"total"`
	ByCategory  map[string]int `json:"by_category,omitempty"`
	BySeverity  map[string]int `json:"by_severity,omitempty"`
	ByOperation map[string]int `json:"by_operation,omitempty"`
}

// ErrorSummary aggregates history records within the window by category,
// severity, and operation.
func (m *Manager) ErrorSummary(window time.Duration) Summary {
	records := m.history.Since(time.Now().Add(-window))

	s := Summary{
		WindowHours: window.Hours(),
		Total:       len(records),
		ByCategory:  make(map[string]int),
		BySeverity:  make(map[string]int),
		ByOperation: make(map[string]int),
	}
	for _, r := range records {
		s.ByCategory[r.Category]++
		s.BySeverity[r.Severity]++
		s.ByOperation[r.Operation]++
	}
	return s
}

// BreakerSnapshots returns point-in-time state for every registered breaker,
// sorted by name.
func (m *Manager) BreakerSnapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(m.breakers))
	for _, b := range m.breakers {
		snaps = append(snaps, b.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}
