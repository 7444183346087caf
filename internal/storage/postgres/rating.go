package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"betterlox/internal/domain"
)

type RatingStore struct {
	db *sqlx.DB
}

func NewRatingStore(db *sqlx.DB) *RatingStore {
	return &RatingStore{db: db}
}

func (s *RatingStore) Upsert(ctx context.Context, rating *domain.Rating) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	query := `
		INSERT INTO ratings (
			user_id, external_id, movie_id, stars, rewatch,
			watched_at, published_at, last_modified
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (user_id, external_id) DO UPDATE SET
			movie_id = EXCLUDED.movie_id,
			stars = EXCLUDED.stars,
			rewatch = EXCLUDED.rewatch,
			watched_at = EXCLUDED.watched_at,
			last_modified = EXCLUDED.last_modified,
			updated_at = now()
		WHERE ratings.last_modified < EXCLUDED.last_modified
		RETURNING id`

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		rating.UserID,
		rating.ExternalID,
		rating.Movie.ID,
		rating.Stars,
		rating.Rewatch,
		rating.WatchedAt,
		rating.PublishedAt,
		rating.LastModified,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM ratings WHERE user_id = $1 AND external_id = $2",
			rating.UserID, rating.ExternalID,
		).Scan(&id)
	}

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *RatingStore) GetExistingByUserAndExternalIDs(ctx context.Context, userID string, ids []string) (map[string]time.Time, error) {
	if len(ids) == 0 {
		return make(map[string]time.Time), nil
	}

	query := `SELECT external_id, last_modified FROM ratings WHERE user_id = $1 AND external_id = ANY($2)`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var extID string
		var lastMod time.Time
		if err := rows.Scan(&extID, &lastMod); err != nil {
			return nil, err
		}
		result[extID] = lastMod
	}

	return result, rows.Err()
}

func (s *RatingStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n,
		`SELECT COUNT(*) FROM ratings WHERE user_id = $1`, userID)
	return n, err
}
