package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fundscout/scout/internal/models"
)

const profileColumns = `entity_id, name, discovery_status, last_discovery_date,
	next_recommended_discovery, opportunity_count, created_at, updated_at`

// CreateProfile registers a new org profile with idle discovery status.
func CreateProfile(db *sql.DB, entityID, name string) (*models.OrgProfile, error) {
	if entityID == "" {
		return nil, errors.New("entity ID is required")
	}
	if name == "" {
		return nil, errors.New("profile name is required")
	}

	err := RetryWithBackoff(func() error {
		_, execErr := db.ExecContext(context.Background(), `
			INSERT INTO org_profiles (entity_id, name) VALUES (?, ?)
		`, entityID, name)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return GetProfile(db, entityID)
}

// GetProfile loads a profile by entity ID.
func GetProfile(db *sql.DB, entityID string) (*models.OrgProfile, error) {
	if entityID == "" {
		return nil, errors.New("entity ID is required")
	}

	row := db.QueryRowContext(context.Background(),
		`SELECT `+profileColumns+` FROM org_profiles WHERE entity_id = ?`, entityID)
	profile, err := scanProfileRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ProfileNotFoundError{EntityID: entityID}
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// ListProfiles returns profiles ordered by entity ID. limit <= 0 defaults to 100.
func ListProfiles(db *sql.DB, limit int) ([]*models.OrgProfile, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(context.Background(),
		`SELECT `+profileColumns+` FROM org_profiles ORDER BY entity_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*models.OrgProfile
	for rows.Next() {
		p, scanErr := scanProfileRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SetDiscoveryStatusTx updates the persisted discovery status for an entity.
// Only the lifecycle tracker writes this column.
func SetDiscoveryStatusTx(tx *sql.Tx, entityID string, status models.DiscoveryStatus) error {
	if entityID == "" {
		return errors.New("entity ID is required")
	}

	res, err := tx.ExecContext(context.Background(), `
		UPDATE org_profiles
		SET discovery_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE entity_id = ?
	`, status, entityID)
	if err != nil {
		return fmt.Errorf("failed to set discovery status: %w", err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if ra == 0 {
		return &ProfileNotFoundError{EntityID: entityID}
	}
	return nil
}

// RecordDiscoveryOutcomeTx writes the terminal discovery metadata for an entity:
// final status, last discovery date, next recommended discovery, and the
// opportunity count from the finished session.
func RecordDiscoveryOutcomeTx(tx *sql.Tx, entityID string, status models.DiscoveryStatus, opportunities int, next time.Time) error {
	if entityID == "" {
		return errors.New("entity ID is required")
	}

	res, err := tx.ExecContext(context.Background(), `
		UPDATE org_profiles
		SET discovery_status = ?,
		    last_discovery_date = CURRENT_TIMESTAMP,
		    next_recommended_discovery = ?,
		    opportunity_count = opportunity_count + ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE entity_id = ?
	`, status, next.UTC(), opportunities, entityID)
	if err != nil {
		return fmt.Errorf("failed to record discovery outcome: %w", err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if ra == 0 {
		return &ProfileNotFoundError{EntityID: entityID}
	}
	return nil
}

// RepairStaleDiscoveryStatus flips a profile's persisted in_progress status to
// completed. Used when neither a lock file nor an in-progress session backs
// the persisted status. Returns true if a repair happened.
//
// The CAS on discovery_status makes concurrent repairs and races with a real
// start benign: whichever writes first wins, the other affects zero rows.
func RepairStaleDiscoveryStatus(db *sql.DB, entityID string) (bool, error) {
	if entityID == "" {
		return false, errors.New("entity ID is required")
	}

	var repaired bool
	err := RetryWithBackoff(func() error {
		res, execErr := db.ExecContext(context.Background(), `
			UPDATE org_profiles
			SET discovery_status = 'completed', updated_at = CURRENT_TIMESTAMP
			WHERE entity_id = ? AND discovery_status = 'in_progress'
		`, entityID)
		if execErr != nil {
			return execErr
		}
		ra, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		repaired = ra > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to repair discovery status: %w", err)
	}
	return repaired, nil
}
