// Package discovery tracks the start/complete/fail lifecycle of discovery
// sessions, gated by the per-entity lock manager. Only this package writes
// session records or a profile's discovery-status fields.
package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fundscout/scout/internal/lock"
	"github.com/fundscout/scout/internal/models"
	"github.com/fundscout/scout/internal/store"
)

const (
	// defaultLockTimeout keeps contended starts failing fast instead of
	// queueing indefinitely behind a long-running discovery.
	defaultLockTimeout = 10 * time.Second

	// nextDiscoveryInterval is how far out the next recommended discovery
	// is scheduled after a completed session.
	nextDiscoveryInterval = 30 * 24 * time.Hour

	supersededReason = "superseded by new session"
)

// Tracker coordinates discovery session lifecycles for all entities.
// Between Start returning and Complete/Fail being called, no other Start for
// the same entity can succeed; the entity's lock is held for the whole
// operation.
type Tracker struct {
	db          *sql.DB
	locks       *lock.Manager
	lockTimeout time.Duration

	mu     sync.Mutex
	leases map[string]*lock.Lease

	staleRepairs atomic.Int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLockTimeout overrides the lock acquisition timeout used by Start.
func WithLockTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.lockTimeout = d }
}

// NewTracker creates a lifecycle tracker over the given store and lock manager.
func NewTracker(db *sql.DB, locks *lock.Manager, opts ...Option) *Tracker {
	t := &Tracker{
		db:          db,
		locks:       locks,
		lockTimeout: defaultLockTimeout,
		leases:      make(map[string]*lock.Lease),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a new discovery session for an entity. It acquires the
// entity's discovery lock (failing with LockTimeoutError under contention),
// fails any lingering in-progress sessions as superseded, persists the new
// session, and marks the profile in_progress.
func (t *Tracker) Start(ctx context.Context, entityID string, tracks []string) (*models.Session, error) {
	session, _, err := t.start(ctx, entityID, tracks)
	return session, err
}

// start is Start plus the acquired lease, so scoped callers can limit their
// cleanup to the lease this call created.
func (t *Tracker) start(ctx context.Context, entityID string, tracks []string) (*models.Session, *lock.Lease, error) {
	if _, err := store.GetProfile(t.db, entityID); err != nil {
		return nil, nil, err
	}

	lease, err := t.locks.Acquire(ctx, entityID, t.lockTimeout)
	if err != nil {
		return nil, nil, err
	}

	var session *models.Session
	err = store.Transact(t.db, func(tx *sql.Tx) error {
		// The lock does not stop a session leaked by a crashed holder
		// from still reading as in_progress; fail it before starting.
		superseded, txErr := store.SupersedeInProgressSessionsTx(tx, entityID, supersededReason)
		if txErr != nil {
			return txErr
		}
		if superseded > 0 {
			slog.Warn("superseded lingering discovery sessions",
				"entity_id", entityID, "count", superseded)
		}

		session, txErr = store.CreateSessionTx(tx, entityID, tracks)
		if txErr != nil {
			return txErr
		}

		return store.SetDiscoveryStatusTx(tx, entityID, models.DiscoveryStatusInProgress)
	})
	if err != nil {
		_ = lease.Release()
		return nil, nil, fmt.Errorf("failed to start discovery for %s: %w", entityID, err)
	}

	t.mu.Lock()
	t.leases[entityID] = lease
	t.mu.Unlock()

	slog.Info("discovery started",
		"entity_id", entityID, "session_id", session.ID, "tracks", len(tracks))
	return session, lease, nil
}

// Complete records a session's successful outcome: result counts, execution
// time, the profile's last-discovery metadata, and the next recommended
// discovery 30 days out. The entity's lock is released, or any leaked lock
// file cleaned up best-effort when another process started the session.
func (t *Tracker) Complete(ctx context.Context, sessionID string, results models.SessionResults) error {
	var entityID string
	err := store.Transact(t.db, func(tx *sql.Tx) error {
		id, txErr := store.CompleteSessionTx(tx, sessionID, results)
		if txErr != nil {
			return txErr
		}
		entityID = id

		next := time.Now().Add(nextDiscoveryInterval)
		return store.RecordDiscoveryOutcomeTx(tx, entityID, models.DiscoveryStatusCompleted,
			results.OpportunitiesFound, next)
	})
	if err != nil {
		return fmt.Errorf("failed to complete discovery session %s: %w", sessionID, err)
	}

	t.releaseEntity(entityID)
	slog.Info("discovery completed",
		"entity_id", entityID, "session_id", sessionID,
		"opportunities", results.OpportunitiesFound, "tracks_executed", results.TracksExecuted)
	return nil
}

// Fail records a session's failure detail and marks the profile failed, with
// the same lock cleanup as Complete.
func (t *Tracker) Fail(ctx context.Context, sessionID string, errorMessages []string) error {
	var entityID string
	err := store.Transact(t.db, func(tx *sql.Tx) error {
		id, txErr := store.FailSessionTx(tx, sessionID, errorMessages)
		if txErr != nil {
			return txErr
		}
		entityID = id

		return store.SetDiscoveryStatusTx(tx, entityID, models.DiscoveryStatusFailed)
	})
	if err != nil {
		return fmt.Errorf("failed to fail discovery session %s: %w", sessionID, err)
	}

	t.releaseEntity(entityID)
	slog.Info("discovery failed",
		"entity_id", entityID, "session_id", sessionID, "errors", len(errorMessages))
	return nil
}

// releaseEntity releases a lease held by this process, or best-effort
// removes a leaked lock file when the session was started elsewhere.
func (t *Tracker) releaseEntity(entityID string) {
	t.mu.Lock()
	lease, held := t.leases[entityID]
	delete(t.leases, entityID)
	t.mu.Unlock()

	if held {
		_ = lease.Release()
		return
	}
	if err := t.locks.ReleaseEntity(entityID); err != nil {
		slog.Warn("failed to clean leaked lock file", "entity_id", entityID, "error", err)
	}
}

// releaseLease releases exactly the given lease, dropping its table entry
// only while it is still the one recorded for the entity. Complete and Fail
// may already have released it; a second release is a no-op, and a successor
// session's lease or lock file is never touched.
func (t *Tracker) releaseLease(entityID string, lease *lock.Lease) {
	t.mu.Lock()
	if t.leases[entityID] == lease {
		delete(t.leases, entityID)
	}
	t.mu.Unlock()

	_ = lease.Release()
}

// InProgress reports whether a discovery is in flight for the entity:
// a non-stale lock file exists, or an in_progress session exists (ground
// truth). A profile whose persisted status still says in_progress with
// neither backing it is a stale status artifact and is repaired to
// completed. The repair is logged and counted rather than silent, but it
// still infers success for an unknown outcome; see StaleRepairs.
func (t *Tracker) InProgress(ctx context.Context, entityID string) (bool, error) {
	if t.locks.Held(entityID) {
		return true, nil
	}

	n, err := store.CountInProgressSessions(t.db, entityID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	repaired, err := store.RepairStaleDiscoveryStatus(t.db, entityID)
	if err != nil {
		return false, err
	}
	if repaired {
		t.staleRepairs.Add(1)
		slog.Warn("repaired stale in_progress discovery status",
			"entity_id", entityID, "reason", "no lock file or in_progress session found")
	}
	return false, nil
}

// StaleRepairs returns how many stale in_progress statuses this process has
// repaired. Observability only.
func (t *Tracker) StaleRepairs() int64 {
	return t.staleRepairs.Load()
}

// RunFunc executes the discovery pipeline for a started session and returns
// its results.
type RunFunc func(ctx context.Context, session *models.Session) (models.SessionResults, error)

// Run is the scoped-acquisition helper: Start, run fn, then Complete or Fail
// depending on fn's outcome, with the lock guaranteed released on every exit
// path. The returned session reflects the terminal record.
func (t *Tracker) Run(ctx context.Context, entityID string, tracks []string, fn RunFunc) (*models.Session, error) {
	session, lease, err := t.start(ctx, entityID, tracks)
	if err != nil {
		return nil, err
	}

	// Complete/Fail release the lease on their success paths; this covers
	// a panic in fn or a store failure inside Complete/Fail. Scoped to the
	// lease acquired above so a successor session started in the window
	// after Complete/Fail is left untouched.
	defer t.releaseLease(entityID, lease)

	results, runErr := fn(ctx, session)
	if runErr != nil {
		if failErr := t.Fail(ctx, session.ID, []string{runErr.Error()}); failErr != nil {
			slog.Error("failed to record discovery failure",
				"session_id", session.ID, "error", failErr)
		}
		return nil, runErr
	}

	if err := t.Complete(ctx, session.ID, results); err != nil {
		return nil, err
	}
	return store.GetSession(t.db, session.ID)
}
