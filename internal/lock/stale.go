package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lock file wire format, one line:
//
//	locked_by_pid:<pid>_time:<iso8601>
//
// File existence is the sole signal of a held file-lock; the content exists
// for diagnosis and staleness checks.

const (
	lockPIDPrefix = "locked_by_pid:"
	lockTimeSep   = "_time:"
)

// Record describes the holder of a lock file.
type Record struct {
	PID        int
	AcquiredAt time.Time
}

func formatLockRecord(pid int, t time.Time) string {
	return fmt.Sprintf("%s%d%s%s\n", lockPIDPrefix, pid, lockTimeSep, t.UTC().Format(time.RFC3339))
}

func readLockRecord(path string) (*Record, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path derived from trusted locks dir
	if err != nil {
		return nil, err
	}

	line := strings.TrimSpace(string(b))
	rest, ok := strings.CutPrefix(line, lockPIDPrefix)
	if !ok {
		return nil, fmt.Errorf("malformed lock file %s: %q", path, line)
	}
	pidStr, timeStr, ok := strings.Cut(rest, lockTimeSep)
	if !ok {
		return nil, fmt.Errorf("malformed lock file %s: %q", path, line)
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("malformed lock pid in %s: %w", path, err)
	}
	acquiredAt, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return nil, fmt.Errorf("malformed lock time in %s: %w", path, err)
	}

	return &Record{PID: pid, AcquiredAt: acquiredAt}, nil
}

// isStale decides whether the lock file at path may be reclaimed.
// A lock is stale when its age exceeds the hard ceiling, or its recorded
// holder pid is provably not running. When liveness cannot be verified the
// shorter ceiling applies rather than treating the holder as alive forever.
func (m *Manager) isStale(path string) bool {
	rec, err := readLockRecord(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already reclaimed by a competitor.
			return false
		}
		// Unreadable or corrupt lock files age out by mtime.
		fi, statErr := os.Stat(path)
		if statErr != nil {
			return false
		}
		return time.Since(fi.ModTime()) > m.staleAfter
	}

	age := time.Since(rec.AcquiredAt)

	alive, ok := m.probe(rec.PID)
	if ok {
		if !alive {
			return true
		}
		return age > m.staleAfter
	}
	return age > unverifiableStaleAfter
}

// Info describes one lock file for diagnostics.
type Info struct {
	EntityID   string    `json:"entity_id"`
	Path       string    `json:"path"`
	PID        int       `json:"pid,omitempty"`
	AcquiredAt time.Time `json:"acquired_at,omitempty"`
	Stale      bool      `json:"stale"`
}

// ScanLocks lists all lock files under the manager's directory.
func (m *Manager) ScanLocks() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read locks dir %s: %w", m.dir, err)
	}

	var infos []Info
	for _, e := range entries {
		name := e.Name()
		entityID, ok := strings.CutSuffix(name, "_discovery.lock")
		if !ok || e.IsDir() {
			continue
		}
		path := m.LockPath(entityID)
		info := Info{EntityID: entityID, Path: path, Stale: m.isStale(path)}
		if rec, recErr := readLockRecord(path); recErr == nil {
			info.PID = rec.PID
			info.AcquiredAt = rec.AcquiredAt
		}
		infos = append(infos, info)
	}
	return infos, nil
}
