package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fundscout/scout/internal/models"
)

const sessionColumns = `id, entity_id, status, tracks, tracks_executed, opportunities_found,
	error_messages, started_at, completed_at, execution_time_seconds`

// CreateSessionTx inserts a new in-progress discovery session for an entity.
// Callers must hold the entity's discovery lock; the store does not re-check.
func CreateSessionTx(tx *sql.Tx, entityID string, tracks []string) (*models.Session, error) {
	if entityID == "" {
		return nil, errors.New("entity ID is required")
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        generatePrefixedID("sess"),
		EntityID:  entityID,
		Status:    models.SessionStatusInProgress,
		Tracks:    tracks,
		StartedAt: now,
	}

	_, err := tx.ExecContext(context.Background(), `
		INSERT INTO discovery_sessions (id, entity_id, status, tracks, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.EntityID, session.Status, models.TrackList(tracks), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetSession loads a session by ID.
func GetSession(db *sql.DB, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	row := db.QueryRowContext(context.Background(),
		`SELECT `+sessionColumns+` FROM discovery_sessions WHERE id = ?`, sessionID)
	session, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &SessionNotFoundError{SessionID: sessionID}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// ListSessions returns the most recent sessions for an entity, newest first.
// Pass entityID="" for all entities. limit <= 0 defaults to 50.
func ListSessions(db *sql.DB, entityID string, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + sessionColumns + ` FROM discovery_sessions`
	args := []any{}
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		s, scanErr := scanSessionRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CountInProgressSessions returns the number of in-progress sessions for an entity.
func CountInProgressSessions(db *sql.DB, entityID string) (int, error) {
	if entityID == "" {
		return 0, errors.New("entity ID is required")
	}

	var n int
	err := db.QueryRowContext(context.Background(), `
		SELECT COUNT(*) FROM discovery_sessions WHERE entity_id = ? AND status = 'in_progress'
	`, entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count in-progress sessions: %w", err)
	}
	return n, nil
}

// SupersedeInProgressSessionsTx fails any lingering in-progress sessions for
// an entity before a new one starts. Returns the number of sessions failed.
func SupersedeInProgressSessionsTx(tx *sql.Tx, entityID, reason string) (int64, error) {
	if entityID == "" {
		return 0, errors.New("entity ID is required")
	}

	msgs, err := json.Marshal([]string{reason})
	if err != nil {
		return 0, fmt.Errorf("failed to encode supersede reason: %w", err)
	}

	res, err := tx.ExecContext(context.Background(), `
		UPDATE discovery_sessions
		SET status = 'failed',
		    error_messages = ?,
		    completed_at = CURRENT_TIMESTAMP
		WHERE entity_id = ? AND status = 'in_progress'
	`, string(msgs), entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede sessions: %w", err)
	}

	return res.RowsAffected()
}

// CompleteSessionTx transitions a session to completed and records its results.
// Sessions only ever move forward: completing an already-terminal session is
// rejected with SessionNotFoundError-style semantics (no row matches).
func CompleteSessionTx(tx *sql.Tx, sessionID string, results models.SessionResults) (entityID string, err error) {
	if sessionID == "" {
		return "", errors.New("session ID is required")
	}

	if scanErr := tx.QueryRowContext(context.Background(),
		`SELECT entity_id FROM discovery_sessions WHERE id = ?`, sessionID).Scan(&entityID); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", &SessionNotFoundError{SessionID: sessionID}
		}
		return "", fmt.Errorf("failed to load session: %w", scanErr)
	}

	res, err := tx.ExecContext(context.Background(), `
		UPDATE discovery_sessions
		SET status = 'completed',
		    tracks_executed = ?,
		    opportunities_found = ?,
		    execution_time_seconds = ?,
		    completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_progress')
	`, results.TracksExecuted, results.OpportunitiesFound, results.ExecutionTime, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to complete session: %w", err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check rows affected: %w", err)
	}
	if ra == 0 {
		return "", fmt.Errorf("session %s already finished: %w", sessionID, ErrSessionTerminal)
	}

	return entityID, nil
}

// ErrSessionTerminal is returned when a terminal session is completed or failed again.
var ErrSessionTerminal = errors.New("session already in a terminal state")

// FailSessionTx transitions a session to failed and records the error messages.
func FailSessionTx(tx *sql.Tx, sessionID string, errorMessages []string) (entityID string, err error) {
	if sessionID == "" {
		return "", errors.New("session ID is required")
	}

	if scanErr := tx.QueryRowContext(context.Background(),
		`SELECT entity_id FROM discovery_sessions WHERE id = ?`, sessionID).Scan(&entityID); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", &SessionNotFoundError{SessionID: sessionID}
		}
		return "", fmt.Errorf("failed to load session: %w", scanErr)
	}

	msgs, err := json.Marshal(errorMessages)
	if err != nil {
		return "", fmt.Errorf("failed to encode error messages: %w", err)
	}

	res, err := tx.ExecContext(context.Background(), `
		UPDATE discovery_sessions
		SET status = 'failed',
		    error_messages = ?,
		    completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_progress')
	`, string(msgs), sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to fail session: %w", err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check rows affected: %w", err)
	}
	if ra == 0 {
		return "", fmt.Errorf("session %s already finished: %w", sessionID, ErrSessionTerminal)
	}

	return entityID, nil
}
