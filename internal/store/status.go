package store

import (
	"context"
	"database/sql"
	"fmt"
)

// StatusCounts holds summary counts for sessions and profiles.
type StatusCounts struct {
	Sessions SessionStatusCounts `json:"sessions"`
	Profiles ProfileStatusCounts `json:"profiles"`
}

// SessionStatusCounts breaks down session counts by status.
type SessionStatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// ProfileStatusCounts breaks down profile counts by discovery status.
type ProfileStatusCounts struct {
	Idle       int `json:"idle"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// GetStatusCounts retrieves all status counts in a single atomic query with retry.
func GetStatusCounts(db *sql.DB) (*StatusCounts, error) {
	counts := &StatusCounts{}

	err := RetryWithBackoff(func() error {
		return db.QueryRowContext(context.Background(), `
			SELECT
				COALESCE((SELECT SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) FROM discovery_sessions), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END) FROM discovery_sessions), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) FROM discovery_sessions), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) FROM discovery_sessions), 0),
				(SELECT COUNT(*) FROM discovery_sessions),
				COALESCE((SELECT SUM(CASE WHEN discovery_status = 'idle' THEN 1 ELSE 0 END) FROM org_profiles), 0),
				COALESCE((SELECT SUM(CASE WHEN discovery_status = 'in_progress' THEN 1 ELSE 0 END) FROM org_profiles), 0),
				COALESCE((SELECT SUM(CASE WHEN discovery_status = 'completed' THEN 1 ELSE 0 END) FROM org_profiles), 0),
				COALESCE((SELECT SUM(CASE WHEN discovery_status = 'failed' THEN 1 ELSE 0 END) FROM org_profiles), 0),
				(SELECT COUNT(*) FROM org_profiles)
		`).Scan(
			&counts.Sessions.Pending,
			&counts.Sessions.InProgress,
			&counts.Sessions.Completed,
			&counts.Sessions.Failed,
			&counts.Sessions.Total,
			&counts.Profiles.Idle,
			&counts.Profiles.InProgress,
			&counts.Profiles.Completed,
			&counts.Profiles.Failed,
			&counts.Profiles.Total,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}

	return counts, nil
}
