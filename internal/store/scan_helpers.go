package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fundscout/scout/internal/models"
)

// scanNullString converts sql.NullString to string (empty if NULL)
func scanNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanNullTime converts sql.NullTime to *time.Time (nil if NULL)
func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// sessionRowScanner encapsulates the common session row scanning logic.
type sessionRowScanner struct {
	session       models.Session
	tracks        string
	errorMessages sql.NullString
	completedAt   sql.NullTime
	execTime      sql.NullFloat64
}

func (s *sessionRowScanner) scan(row interface {
	Scan(dest ...any) error
}) error {
	return row.Scan(
		&s.session.ID,
		&s.session.EntityID,
		&s.session.Status,
		&s.tracks,
		&s.session.TracksExecuted,
		&s.session.OpportunitiesFound,
		&s.errorMessages,
		&s.session.StartedAt,
		&s.completedAt,
		&s.execTime,
	)
}

func (s *sessionRowScanner) hydrate() {
	s.session.Tracks = models.SplitTracks(s.tracks)
	s.session.CompletedAt = scanNullTime(s.completedAt)
	if s.execTime.Valid {
		s.session.ExecutionTime = s.execTime.Float64
	}
	if raw := scanNullString(s.errorMessages); raw != "" {
		// Error messages are stored as a JSON array; a corrupt column
		// degrades to the raw text rather than failing the read.
		var msgs []string
		if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
			msgs = []string{raw}
		}
		s.session.ErrorMessages = msgs
	}
}

// scanSessionRow scans and hydrates a session from a single row.
func scanSessionRow(row interface {
	Scan(dest ...any) error
}) (*models.Session, error) {
	scanner := &sessionRowScanner{}
	if err := scanner.scan(row); err != nil {
		return nil, err
	}
	scanner.hydrate()
	return &scanner.session, nil
}

// profileRowScanner encapsulates the common profile row scanning logic.
type profileRowScanner struct {
	profile  models.OrgProfile
	lastDate sql.NullTime
	nextDate sql.NullTime
}

func (s *profileRowScanner) scan(row interface {
	Scan(dest ...any) error
}) error {
	return row.Scan(
		&s.profile.EntityID,
		&s.profile.Name,
		&s.profile.DiscoveryStatus,
		&s.lastDate,
		&s.nextDate,
		&s.profile.OpportunityCount,
		&s.profile.CreatedAt,
		&s.profile.UpdatedAt,
	)
}

func (s *profileRowScanner) hydrate() {
	s.profile.LastDiscoveryDate = scanNullTime(s.lastDate)
	s.profile.NextRecommendedDiscovery = scanNullTime(s.nextDate)
}

// scanProfileRow scans and hydrates a profile from a single row.
func scanProfileRow(row interface {
	Scan(dest ...any) error
}) (*models.OrgProfile, error) {
	scanner := &profileRowScanner{}
	if err := scanner.scan(row); err != nil {
		return nil, err
	}
	scanner.hydrate()
	return &scanner.profile, nil
}
