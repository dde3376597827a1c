package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-chat/internal/models"
)

// UserRepository reads the local mirror of identity records.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	ListUsers(ctx context.Context, userIDs []int64) ([]models.User, error)
}

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser returns ErrUserNotFound for unknown ids.
func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT id, external_id, email, display_name, avatar_url, phone FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, storeError("get user", err)
	}
	return u, nil
}

// ListUsers returns the known users among userIDs ordered by id. Unknown ids
// are skipped.
func (r *UserRepo) ListUsers(ctx context.Context, userIDs []int64) ([]models.User, error) {
	users := make([]models.User, 0, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}
	if err := r.db.SelectContext(ctx, &users, `SELECT id, external_id, email, display_name, avatar_url, phone
        FROM users WHERE id = ANY($1) ORDER BY id`, pq.Array(userIDs)); err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}
