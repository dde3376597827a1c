package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"realtime-chat/internal/models"
)

// PresenceRepository persists the durable online flag of users.
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID int64) (models.Presence, error)
	SetOffline(ctx context.Context, userID int64, at time.Time) (models.Presence, error)
	GetPresence(ctx context.Context, userID int64) (models.Presence, error)
	ResetOnline(ctx context.Context, at time.Time) (int64, error)
}

type PresenceRepo struct {
	db *sqlx.DB
}

func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// SetOnline marks the user online and clears last_seen_at.
func (r *PresenceRepo) SetOnline(ctx context.Context, userID int64) (models.Presence, error) {
	return r.upsert(ctx, userID, true, nil)
}

// SetOffline marks the user offline with last_seen_at set to at.
func (r *PresenceRepo) SetOffline(ctx context.Context, userID int64, at time.Time) (models.Presence, error) {
	return r.upsert(ctx, userID, false, &at)
}

func (r *PresenceRepo) upsert(ctx context.Context, userID int64, online bool, lastSeen *time.Time) (models.Presence, error) {
	var p models.Presence
	err := r.db.QueryRowxContext(ctx, `INSERT INTO user_presence (user_id, is_online, last_seen_at) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET is_online = EXCLUDED.is_online, last_seen_at = EXCLUDED.last_seen_at
        RETURNING user_id, is_online, last_seen_at`, userID, online, lastSeen).StructScan(&p)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Presence{}, ErrUserNotFound
		}
		return models.Presence{}, storeError("set presence", err)
	}
	return p, nil
}

// GetPresence returns the stored presence. Users never seen are offline.
func (r *PresenceRepo) GetPresence(ctx context.Context, userID int64) (models.Presence, error) {
	var p models.Presence
	err := r.db.GetContext(ctx, &p, `SELECT user_id, is_online, last_seen_at FROM user_presence WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Presence{UserID: userID}, nil
	}
	if err != nil {
		return models.Presence{}, storeError("get presence", err)
	}
	return p, nil
}

// ResetOnline marks every online user offline. Run once at startup, before any
// connection is accepted.
func (r *PresenceRepo) ResetOnline(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE user_presence SET is_online = FALSE, last_seen_at = $1 WHERE is_online`, at)
	if err != nil {
		return 0, storeError("reset presence", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("reset presence", err)
	}
	return n, nil
}
