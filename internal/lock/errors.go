package lock

import (
	"errors"
	"fmt"
	"time"

	"github.com/fundscout/scout/internal/models"
)

// ErrLockTimeout is returned when a discovery lock cannot be acquired within
// the caller's timeout. It means "try later", not "failed".
var ErrLockTimeout = errors.New("timed out waiting for discovery lock")

// LockTimeoutError replaces ErrLockTimeout with structured context.
type LockTimeoutError struct {
	EntityID string
	Timeout  time.Duration
	Holder   string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for discovery lock on %s", e.Timeout, e.EntityID)
}
func (e *LockTimeoutError) ErrorCode() string { return "LOCK_TIMEOUT" }
func (e *LockTimeoutError) Context() map[string]string {
	ctx := map[string]string{
		"entity_id": e.EntityID,
		"timeout":   e.Timeout.String(),
	}
	if e.Holder != "" {
		ctx["holder"] = e.Holder
	}
	return ctx
}
func (e *LockTimeoutError) SuggestedAction() string {
	return "another discovery is running for this entity; retry after it finishes"
}
func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }

// Interface guard: command-layer error reporting depends on this.
var _ models.RecoverableError = (*LockTimeoutError)(nil)
