package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundscout/scout/internal/models"
)

func createTestSession(t *testing.T, db *sql.DB, entityID string, tracks []string) *models.Session {
	t.Helper()

	var session *models.Session
	err := Transact(db, func(tx *sql.Tx) error {
		s, txErr := CreateSessionTx(tx, entityID, tracks)
		session = s
		return txErr
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

func TestCreateSession(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)

	session := createTestSession(t, db, "org-1", []string{"government", "foundation"})

	assert.Regexp(t, `^sess_\d+`, session.ID)
	assert.Equal(t, "org-1", session.EntityID)
	assert.Equal(t, models.SessionStatusInProgress, session.Status)
	assert.True(t, session.IsInProgress())
	assert.Equal(t, []string{"government", "foundation"}, session.Tracks)

	loaded, err := GetSession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, session.Tracks, loaded.Tracks)
	assert.Nil(t, loaded.CompletedAt)
}

func TestCreateSessionUnknownEntity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := Transact(db, func(tx *sql.Tx) error {
		_, txErr := CreateSessionTx(tx, "missing", nil)
		return txErr
	})
	// Foreign key on entity_id rejects sessions for unknown profiles.
	assert.Error(t, err)
}

func TestGetSessionNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	session, err := GetSession(db, "sess_nope")
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)
	_, err = CreateProfile(db, "org-2", "Globex")
	require.NoError(t, err)

	s1 := createTestSession(t, db, "org-1", []string{"government"})
	s2 := createTestSession(t, db, "org-1", []string{"foundation"})
	createTestSession(t, db, "org-2", []string{"corporate"})

	sessions, err := ListSessions(db, "org-1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	// Newest first; same-timestamp rows fall back to ID order.
	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, ids)

	all, err := ListSessions(db, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCompleteSession(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)
	session := createTestSession(t, db, "org-1", []string{"government"})

	results := models.SessionResults{TracksExecuted: 1, OpportunitiesFound: 5, ExecutionTime: 12.5}
	var entityID string
	err = Transact(db, func(tx *sql.Tx) error {
		id, txErr := CompleteSessionTx(tx, session.ID, results)
		entityID = id
		return txErr
	})
	require.NoError(t, err)
	assert.Equal(t, "org-1", entityID)

	loaded, err := GetSession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, loaded.Status)
	assert.True(t, loaded.Status.IsTerminal())
	assert.Equal(t, 1, loaded.TracksExecuted)
	assert.Equal(t, 5, loaded.OpportunitiesFound)
	assert.InDelta(t, 12.5, loaded.ExecutionTime, 0.001)
	require.NotNil(t, loaded.CompletedAt)
}

func TestCompleteSessionTwice(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)
	session := createTestSession(t, db, "org-1", nil)

	err = Transact(db, func(tx *sql.Tx) error {
		_, txErr := CompleteSessionTx(tx, session.ID, models.SessionResults{})
		return txErr
	})
	require.NoError(t, err)

	err = Transact(db, func(tx *sql.Tx) error {
		_, txErr := CompleteSessionTx(tx, session.ID, models.SessionResults{})
		return txErr
	})
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestFailSession(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)
	session := createTestSession(t, db, "org-1", nil)

	msgs := []string{"track government: timeout", "track foundation: rate limited"}
	err = Transact(db, func(tx *sql.Tx) error {
		_, txErr := FailSessionTx(tx, session.ID, msgs)
		return txErr
	})
	require.NoError(t, err)

	loaded, err := GetSession(db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, loaded.Status)
	assert.Equal(t, msgs, loaded.ErrorMessages)
	require.NotNil(t, loaded.CompletedAt)
}

func TestFailSessionNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := Transact(db, func(tx *sql.Tx) error {
		_, txErr := FailSessionTx(tx, "sess_nope", []string{"boom"})
		return txErr
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSupersedeInProgressSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)

	s1 := createTestSession(t, db, "org-1", nil)
	s2 := createTestSession(t, db, "org-1", nil)

	var superseded int64
	err = Transact(db, func(tx *sql.Tx) error {
		n, txErr := SupersedeInProgressSessionsTx(tx, "org-1", "superseded by new session")
		superseded = n
		return txErr
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), superseded)

	for _, id := range []string{s1.ID, s2.ID} {
		loaded, loadErr := GetSession(db, id)
		require.NoError(t, loadErr)
		assert.Equal(t, models.SessionStatusFailed, loaded.Status)
		assert.Equal(t, []string{"superseded by new session"}, loaded.ErrorMessages)
	}

	n, err := CountInProgressSessions(db, "org-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountInProgressSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)

	n, err := CountInProgressSessions(db, "org-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	createTestSession(t, db, "org-1", nil)
	createTestSession(t, db, "org-1", nil)

	n, err = CountInProgressSessions(db, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetStatusCounts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateProfile(db, "org-1", "Acme")
	require.NoError(t, err)
	_, err = CreateProfile(db, "org-2", "Globex")
	require.NoError(t, err)

	session := createTestSession(t, db, "org-1", nil)
	createTestSession(t, db, "org-2", nil)

	err = Transact(db, func(tx *sql.Tx) error {
		_, txErr := CompleteSessionTx(tx, session.ID, models.SessionResults{})
		return txErr
	})
	require.NoError(t, err)

	counts, err := GetStatusCounts(db)
	require.NoError(t, err)

	assert.Equal(t, 2, counts.Sessions.Total)
	assert.Equal(t, 1, counts.Sessions.InProgress)
	assert.Equal(t, 1, counts.Sessions.Completed)
	assert.Equal(t, 2, counts.Profiles.Total)
	assert.Equal(t, 2, counts.Profiles.Idle)
}
