package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"betterlox/internal/domain"
)

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// ListForSync returns up to limit users, least recently synced first.
func (s *UserStore) ListForSync(ctx context.Context, limit int) ([]domain.User, error) {
	query := `
		SELECT id, username, last_synced_at
		FROM users
		ORDER BY last_synced_at ASC NULLS FIRST, id
		LIMIT $1`

	var users []domain.User
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &users, query, limit)
	return users, err
}

func (s *UserStore) Get(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &user,
		`SELECT id, username, last_synced_at FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET last_synced_at = $1 WHERE id = $2`, at, id)
	return err
}
