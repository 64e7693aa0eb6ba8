package models

import (
	"strings"
	"time"
)

// ID Strategy:
// - Sessions use string IDs (distributed generation, e.g., "sess_1234567890_a3f9")
// - Profiles are keyed by caller-supplied entity IDs (e.g., "org-42")
//
// Session history is append-only: rows are created on start and only ever
// transition forward to completed/failed. Nothing deletes them.

// SessionStatus represents the current state of a discovery session.
type SessionStatus string

// Session status constants.
const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// IsTerminal returns true if the session has reached a final state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// DiscoveryStatus represents the discovery state recorded on a profile.
type DiscoveryStatus string

// Discovery status constants.
const (
	DiscoveryStatusIdle       DiscoveryStatus = "idle"
	DiscoveryStatusInProgress DiscoveryStatus = "in_progress"
	DiscoveryStatusCompleted  DiscoveryStatus = "completed"
	DiscoveryStatusFailed     DiscoveryStatus = "failed"
)

// Session represents one execution attempt of the discovery pipeline for an entity.
type Session struct {
	ID                 string        `json:"id"`
	EntityID           string        `json:"entity_id"`
	Status             SessionStatus `json:"status"`
	Tracks             []string      `json:"tracks,omitempty"`
	TracksExecuted     int           `json:"tracks_executed"`
	OpportunitiesFound int           `json:"opportunities_found"`
	ErrorMessages      []string      `json:"error_messages,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	ExecutionTime      float64       `json:"execution_time_seconds,omitempty"`
}

// IsInProgress returns true if the session has started but not yet finished.
func (s *Session) IsInProgress() bool {
	return s.Status == SessionStatusInProgress
}

// TrackList joins tracks for storage as a single column.
func TrackList(tracks []string) string {
	return strings.Join(tracks, ",")
}

// SplitTracks parses a stored track list back into its elements.
func SplitTracks(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// OrgProfile represents an organization profile, the entity discovery runs against.
type OrgProfile struct {
	EntityID                 string          `json:"entity_id"`
	Name                     string          `json:"name"`
	DiscoveryStatus          DiscoveryStatus `json:"discovery_status"`
	LastDiscoveryDate        *time.Time      `json:"last_discovery_date,omitempty"`
	NextRecommendedDiscovery *time.Time      `json:"next_recommended_discovery,omitempty"`
	OpportunityCount         int             `json:"opportunity_count"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// DiscoveryInProgress returns true if the profile's persisted status says a
// discovery is running. This is advisory; the lock file and session table are
// the ground truth.
func (p *OrgProfile) DiscoveryInProgress() bool {
	return p.DiscoveryStatus == DiscoveryStatusInProgress
}

// SessionResults carries the outcome counters recorded on completion.
type SessionResults struct {
	TracksExecuted     int     `json:"tracks_executed"`
	OpportunitiesFound int     `json:"opportunities_found"`
	ExecutionTime      float64 `json:"execution_time_seconds"`
}
