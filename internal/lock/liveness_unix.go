//go:build !windows

package lock

import (
	"errors"
	"syscall"
)

// pidAlive probes a pid with signal 0. ESRCH means provably dead; EPERM means
// the process exists but belongs to another user, which counts as alive.
// Any other error leaves liveness unverified.
func pidAlive(pid int) (alive bool, ok bool) {
	if pid <= 0 {
		return false, true
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true, true
	}
	if errors.Is(err, syscall.ESRCH) {
		return false, true
	}
	if errors.Is(err, syscall.EPERM) {
		return true, true
	}
	return false, false
}
