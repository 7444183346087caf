package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"betterlox/internal/domain"
)

type MovieStore struct {
	db *sqlx.DB
}

func NewMovieStore(db *sqlx.DB) *MovieStore {
	return &MovieStore{db: db}
}

func (s *MovieStore) UpsertBatch(ctx context.Context, movies []domain.Movie) error {
	if len(movies) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO movies (id, title, year, slug) VALUES ")
	valueArgs := make([]interface{}, 0, len(movies)*4)

	for i, m := range movies {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		sb.WriteString("($" + strconv.Itoa(n+1) + ", $" + strconv.Itoa(n+2) +
			", $" + strconv.Itoa(n+3) + ", $" + strconv.Itoa(n+4) + ")")
		valueArgs = append(valueArgs, m.ID, m.Title, m.Year, m.Slug)
	}
	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		year = EXCLUDED.year,
		slug = EXCLUDED.slug`)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

func (s *MovieStore) GetByIDs(ctx context.Context, ids []int64) ([]domain.Movie, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var movies []domain.Movie
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &movies,
		`SELECT id, title, year, slug FROM movies WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return movies, err
}
