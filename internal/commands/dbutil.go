package commands

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/fundscout/scout/internal/app"
	"github.com/fundscout/scout/internal/discovery"
	"github.com/fundscout/scout/internal/lock"
	"github.com/fundscout/scout/internal/recovery"
	"github.com/fundscout/scout/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

func openDB() (*DB, func(), error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.InitDBWithPath(dbPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

func withDB(fn func(db *DB) error) error {
	db, closeDB, err := openDB()
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	type codedError interface {
		ErrorCode() string
		SuggestedAction() string
	}
	var coded codedError
	if errors.As(err, &coded) {
		attrs = append(attrs, "code", coded.ErrorCode(), "suggested_action", coded.SuggestedAction())
	}
	slog.Error("command error", attrs...)
	return printedError{err: err}
}

// newLockManager builds the per-entity lock manager from effective settings.
func newLockManager() (*lock.Manager, error) {
	dir, err := app.GetLocksDir()
	if err != nil {
		return nil, err
	}
	ls := app.EffectiveLockSettings()
	return lock.NewManager(dir,
		lock.WithStaleAfter(time.Duration(ls.StaleMinutes)*time.Minute)), nil
}

// newTracker builds the session lifecycle tracker over an open store handle.
func newTracker(db *DB) (*discovery.Tracker, error) {
	locks, err := newLockManager()
	if err != nil {
		return nil, err
	}
	ls := app.EffectiveLockSettings()
	return discovery.NewTracker(db, locks,
		discovery.WithLockTimeout(time.Duration(ls.TimeoutSeconds)*time.Second)), nil
}

// newRecoveryManager builds the recovery manager with breakers declared in config.
func newRecoveryManager() *recovery.Manager {
	m := recovery.NewManager()
	s, err := app.LoadSettings()
	if err != nil {
		return m
	}
	for _, b := range s.Breakers {
		if b.Name == "" || b.Threshold <= 0 || b.ResetTimeoutSeconds <= 0 {
			slog.Warn("skipping invalid breaker config", "name", b.Name)
			continue
		}
		m.RegisterBreaker(b.Name, b.Threshold, time.Duration(b.ResetTimeoutSeconds)*time.Second)
	}
	return m
}
