// Package lock guarantees at most one in-flight discovery operation per
// entity, across goroutines and OS processes sharing one filesystem.
//
// Two layers compose the guarantee: a process-local per-entity mutex stops
// intra-process thundering herds before they touch the disk, and an
// exclusive-create lock file arbitrates between processes. Lock files record
// the holder pid and acquisition time so crashed holders can be detected and
// reclaimed.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// defaultStaleAfter is the hard age ceiling beyond which a lock is
	// reclaimable even when the holder pid still appears alive.
	defaultStaleAfter = 30 * time.Minute

	// unverifiableStaleAfter is the shorter ceiling used when holder
	// liveness cannot be probed on this platform. Biases toward eventual
	// reclaim rather than permanent deadlock.
	unverifiableStaleAfter = 5 * time.Minute

	// defaultPollInterval is the cooperative sleep between acquisition attempts.
	defaultPollInterval = 100 * time.Millisecond
)

// errLockBusy signals one failed acquisition attempt inside the poll loop.
var errLockBusy = errors.New("discovery lock busy")

// LivenessProbe reports whether a pid is running. ok is false when the
// platform cannot tell, in which case staleness falls back to the shorter
// age ceiling.
type LivenessProbe func(pid int) (alive bool, ok bool)

// Manager hands out per-entity discovery leases backed by lock files in dir.
type Manager struct {
	dir          string
	staleAfter   time.Duration
	pollInterval time.Duration
	probe        LivenessProbe

	mu       sync.Mutex
	entities map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithStaleAfter overrides the hard staleness ceiling.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) { m.staleAfter = d }
}

// WithPollInterval overrides the acquisition poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithLivenessProbe overrides the pid liveness probe (used in tests).
func WithLivenessProbe(p LivenessProbe) Option {
	return func(m *Manager) { m.probe = p }
}

// NewManager creates a lock manager rooted at dir. The directory must exist.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:          dir,
		staleAfter:   defaultStaleAfter,
		pollInterval: defaultPollInterval,
		probe:        pidAlive,
		entities:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LockPath returns the lock file path for an entity.
func (m *Manager) LockPath(entityID string) string {
	return filepath.Join(m.dir, entityID+"_discovery.lock")
}

// entityMutex returns the process-local mutex for an entity, creating it on
// first use. Mutexes are never removed; the per-entity footprint is one mutex.
func (m *Manager) entityMutex(entityID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.entities[entityID]
	if !ok {
		em = &sync.Mutex{}
		m.entities[entityID] = em
	}
	return em
}

// Acquire obtains the discovery lock for an entity, polling until timeout.
// A timeout <= 0 attempts exactly once. Failure to acquire within the
// timeout returns LockTimeoutError.
func (m *Manager) Acquire(ctx context.Context, entityID string, timeout time.Duration) (*Lease, error) {
	if entityID == "" {
		return nil, errors.New("entity ID is required")
	}

	// First attempt happens unconditionally so timeout=0 still means
	// "take it if free right now".
	lease, err := m.tryAcquire(entityID)
	if err == nil {
		return lease, nil
	}
	if !errors.Is(err, errLockBusy) {
		return nil, err
	}
	if timeout <= 0 {
		return nil, &LockTimeoutError{EntityID: entityID, Timeout: timeout, Holder: m.holderHint(entityID)}
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = retry.Do(pollCtx, retry.NewConstant(m.pollInterval), func(ctx context.Context) error {
		l, tryErr := m.tryAcquire(entityID)
		if tryErr == nil {
			lease = l
			return nil
		}
		if errors.Is(tryErr, errLockBusy) {
			return retry.RetryableError(tryErr)
		}
		return tryErr
	})
	if err == nil {
		return lease, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errLockBusy) {
		return nil, &LockTimeoutError{EntityID: entityID, Timeout: timeout, Holder: m.holderHint(entityID)}
	}
	return nil, err
}

// tryAcquire performs one full acquisition attempt: local mutex, then
// exclusive file creation, with stale-lock reclaim in between.
func (m *Manager) tryAcquire(entityID string) (*Lease, error) {
	local := m.entityMutex(entityID)
	if !local.TryLock() {
		return nil, errLockBusy
	}

	path := m.LockPath(entityID)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // G304: path derived from trusted locks dir
		if err == nil {
			record := formatLockRecord(os.Getpid(), time.Now())
			if _, werr := f.WriteString(record); werr != nil {
				_ = f.Close()
				_ = os.Remove(path)
				local.Unlock()
				return nil, fmt.Errorf("write lock file %s: %w", path, werr)
			}
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				local.Unlock()
				return nil, fmt.Errorf("close lock file %s: %w", path, cerr)
			}
			return &Lease{manager: m, entityID: entityID, path: path, local: local}, nil
		}
		if !os.IsExist(err) {
			local.Unlock()
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		// Another holder. Reclaim if stale, otherwise report busy.
		if !m.isStale(path) {
			local.Unlock()
			return nil, errLockBusy
		}

		slog.Warn("reclaiming stale discovery lock", "entity_id", entityID, "path", path)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			local.Unlock()
			return nil, fmt.Errorf("remove stale lock file %s: %w", path, rmErr)
		}
		// A competitor may have removed and re-created the file first;
		// the next O_EXCL attempt resolves the race either way.
	}
}

// holderHint best-effort reads the current holder for error context.
func (m *Manager) holderHint(entityID string) string {
	rec, err := readLockRecord(m.LockPath(entityID))
	if err != nil {
		return ""
	}
	return fmt.Sprintf("pid %d since %s", rec.PID, rec.AcquiredAt.Format(time.RFC3339))
}

// Held reports whether a non-stale lock file exists for the entity.
// It does not consult the session store; callers needing ground truth
// should use the lifecycle tracker's InProgress.
func (m *Manager) Held(entityID string) bool {
	path := m.LockPath(entityID)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return !m.isStale(path)
}

// ReleaseEntity best-effort removes a leaked lock file for an entity without
// going through a lease. Used by lifecycle cleanup when the holding process
// is gone. Missing files are fine.
func (m *Manager) ReleaseEntity(entityID string) error {
	if err := os.Remove(m.LockPath(entityID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the entity's discovery lock, releasing it on
// every exit path.
func (m *Manager) WithLock(ctx context.Context, entityID string, timeout time.Duration, fn func() error) error {
	lease, err := m.Acquire(ctx, entityID, timeout)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release() }()
	return fn()
}

// Lease represents a held discovery lock. Release is idempotent.
type Lease struct {
	manager  *Manager
	entityID string
	path     string

	mu       sync.Mutex
	local    *sync.Mutex
	released bool
}

// EntityID returns the entity this lease locks.
func (l *Lease) EntityID() string { return l.entityID }

// Release deletes the lock file, then releases the local mutex, in that
// order, so no other local goroutine can race into file-lock acquisition
// before this process's critical section is fully closed. Releasing an
// already-released lease is a no-op.
func (l *Lease) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	var rmErr error
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		rmErr = fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	l.local.Unlock()
	return rmErr
}
