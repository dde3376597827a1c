package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceSetOnlineClearsLastSeen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPresenceRepo(db)

	mock.ExpectQuery(`INSERT INTO user_presence`).
		WithArgs(1, true, nil).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "is_online", "last_seen_at"}).AddRow(1, true, nil))

	p, err := repo.SetOnline(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Nil(t, p.LastSeenAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceSetOfflineRecordsLastSeen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPresenceRepo(db)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO user_presence`).
		WithArgs(1, false, at).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "is_online", "last_seen_at"}).AddRow(1, false, at))

	p, err := repo.SetOffline(context.Background(), 1, at)
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
	require.NotNil(t, p.LastSeenAt)
	assert.True(t, at.Equal(*p.LastSeenAt))
}

func TestPresenceUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPresenceRepo(db)

	mock.ExpectQuery(`INSERT INTO user_presence`).WillReturnError(&pq.Error{Code: "23503"})

	_, err := repo.SetOnline(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetPresenceDefaultsToOffline(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPresenceRepo(db)

	mock.ExpectQuery(`FROM user_presence`).WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"user_id", "is_online", "last_seen_at"}))

	p, err := repo.GetPresence(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.UserID)
	assert.False(t, p.IsOnline)
}

func TestGetUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE id`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "email", "display_name", "avatar_url", "phone"}).
			AddRow(1, nil, "ann@example.com", "Ann", nil, nil))
	mock.ExpectQuery(`FROM users WHERE id`).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	u, err := repo.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName)

	_, err = repo.GetUser(context.Background(), 2)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResetOnline(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPresenceRepo(db)

	mock.ExpectExec(`UPDATE user_presence SET is_online = FALSE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ResetOnline(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
