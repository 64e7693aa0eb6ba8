package store

import (
	"errors"

	"github.com/fundscout/scout/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained so store
// callers don't need a separate models import for type assertions.
type RecoverableError = models.RecoverableError

// ErrSessionNotFound is returned when a session lookup by ID finds no row.
var ErrSessionNotFound = errors.New("discovery session not found")

// ErrProfileNotFound is returned when a profile lookup by entity ID finds no row.
var ErrProfileNotFound = errors.New("org profile not found")

// SessionNotFoundError carries the session ID that failed to resolve.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string     { return "discovery session not found" }
func (e *SessionNotFoundError) ErrorCode() string { return "SESSION_NOT_FOUND" }
func (e *SessionNotFoundError) Context() map[string]string {
	return map[string]string{"session_id": e.SessionID}
}
func (e *SessionNotFoundError) SuggestedAction() string {
	return "scout discover status --entity <entity-id> to list known sessions"
}
func (e *SessionNotFoundError) Is(target error) bool { return target == ErrSessionNotFound }

// ProfileNotFoundError carries the entity ID that failed to resolve.
type ProfileNotFoundError struct {
	EntityID string
}

func (e *ProfileNotFoundError) Error() string     { return "org profile not found" }
func (e *ProfileNotFoundError) ErrorCode() string { return "PROFILE_NOT_FOUND" }
func (e *ProfileNotFoundError) Context() map[string]string {
	return map[string]string{"entity_id": e.EntityID}
}
func (e *ProfileNotFoundError) SuggestedAction() string {
	return "scout profile add --entity <entity-id> --name <name> to register the profile"
}
func (e *ProfileNotFoundError) Is(target error) bool { return target == ErrProfileNotFound }

// Interface guards.
var (
	_ RecoverableError = (*SessionNotFoundError)(nil)
	_ RecoverableError = (*ProfileNotFoundError)(nil)
)
