package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), opts...)
}

func TestAcquireRelease(t *testing.T) {
	m := newTestManager(t)

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "org-1", lease.EntityID())

	// Lock file exists and records this process.
	assert.True(t, m.Held("org-1"))
	rec, err := readLockRecord(m.LockPath("org-1"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.WithinDuration(t, time.Now(), rec.AcquiredAt, 5*time.Second)

	require.NoError(t, lease.Release())
	assert.False(t, m.Held("org-1"))
	_, err = os.Stat(m.LockPath("org-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireZeroTimeoutFailsFastWhenHeld(t *testing.T) {
	m := newTestManager(t)

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	defer func() { _ = lease.Release() }()

	start := time.Now()
	_, err = m.Acquire(context.Background(), "org-1", 0)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, elapsed, time.Second)

	var lt *LockTimeoutError
	require.True(t, errors.As(err, &lt))
	assert.Equal(t, "org-1", lt.EntityID)
	assert.Contains(t, lt.Holder, "pid")
}

func TestAcquireTimesOutUnderContention(t *testing.T) {
	m := newTestManager(t, WithPollInterval(5*time.Millisecond))

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	defer func() { _ = lease.Release() }()

	_, err = m.Acquire(context.Background(), "org-1", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	m := newTestManager(t, WithPollInterval(5*time.Millisecond))

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lease.Release()
	}()

	second, err := m.Acquire(context.Background(), "org-1", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquireDistinctEntitiesIndependent(t *testing.T) {
	m := newTestManager(t)

	l1, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	defer func() { _ = l1.Release() }()

	l2, err := m.Acquire(context.Background(), "org-2", 0)
	require.NoError(t, err)
	defer func() { _ = l2.Release() }()
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	m := newTestManager(t)

	const workers = 16
	var wg sync.WaitGroup
	var acquired int32
	var mu sync.Mutex
	var leases []*Lease

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(context.Background(), "org-1", 0)
			if err == nil {
				mu.Lock()
				acquired++
				leases = append(leases, lease)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired)
	for _, l := range leases {
		require.NoError(t, l.Release())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	m := newTestManager(t)

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)

	require.NoError(t, lease.Release())
	require.NoError(t, lease.Release())

	// Entity is acquirable again after double release.
	again, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestStaleLockFromDeadHolderIsReclaimed(t *testing.T) {
	deadProbe := func(pid int) (bool, bool) { return false, true }
	m := newTestManager(t, WithLivenessProbe(deadProbe))

	// A previous holder crashed without removing its lock file.
	path := m.LockPath("org-1")
	require.NoError(t, os.WriteFile(path, []byte(formatLockRecord(999999, time.Now())), 0o644))

	assert.False(t, m.Held("org-1"))

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.NoError(t, lease.Release())
}

func TestFreshLockFromLiveHolderIsNotReclaimed(t *testing.T) {
	aliveProbe := func(pid int) (bool, bool) { return true, true }
	m := newTestManager(t, WithLivenessProbe(aliveProbe))

	path := m.LockPath("org-1")
	require.NoError(t, os.WriteFile(path, []byte(formatLockRecord(999999, time.Now())), 0o644))

	assert.True(t, m.Held("org-1"))

	_, err := m.Acquire(context.Background(), "org-1", 0)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestLiveHolderLockAgesOutPastCeiling(t *testing.T) {
	aliveProbe := func(pid int) (bool, bool) { return true, true }
	m := newTestManager(t, WithLivenessProbe(aliveProbe), WithStaleAfter(time.Minute))

	// Acquired two minutes ago by a pid that still looks alive.
	path := m.LockPath("org-1")
	require.NoError(t, os.WriteFile(path, []byte(formatLockRecord(999999, time.Now().Add(-2*time.Minute))), 0o644))

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.NoError(t, lease.Release())
}

func TestUnverifiableHolderUsesShortCeiling(t *testing.T) {
	unknownProbe := func(pid int) (bool, bool) { return false, false }
	m := newTestManager(t, WithLivenessProbe(unknownProbe))

	path := m.LockPath("org-1")

	// Fresh lock with unverifiable holder stays held.
	require.NoError(t, os.WriteFile(path, []byte(formatLockRecord(999999, time.Now())), 0o644))
	assert.True(t, m.Held("org-1"))

	// Past the five minute unverifiable ceiling it becomes reclaimable,
	// even though the default ceiling is thirty minutes.
	require.NoError(t, os.WriteFile(path, []byte(formatLockRecord(999999, time.Now().Add(-6*time.Minute))), 0o644))
	assert.False(t, m.Held("org-1"))
}

func TestWithLockReleasesOnError(t *testing.T) {
	m := newTestManager(t)

	boom := errors.New("boom")
	err := m.WithLock(context.Background(), "org-1", 0, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// Lock must be free again even though fn failed.
	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	require.NoError(t, lease.Release())
}

func TestReleaseEntity(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.ReleaseEntity("org-1"))

	path := m.LockPath("org-1")
	require.NoError(t, os.WriteFile(path, []byte(formatLockRecord(999999, time.Now())), 0o644))
	require.NoError(t, m.ReleaseEntity("org-1"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestScanLocks(t *testing.T) {
	deadProbe := func(pid int) (bool, bool) { return false, true }
	m := newTestManager(t, WithLivenessProbe(deadProbe))

	lease, err := m.Acquire(context.Background(), "org-1", 0)
	require.NoError(t, err)
	defer func() { _ = lease.Release() }()

	infos, err := m.ScanLocks()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "org-1", infos[0].EntityID)
	assert.Equal(t, os.Getpid(), infos[0].PID)
	// The dead-pid probe makes even our own lock read as stale.
	assert.True(t, infos[0].Stale)
}

func TestAcquireEmptyEntity(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Acquire(context.Background(), "", 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)
}
