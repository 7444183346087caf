package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"betterlox/internal/domain"
)

type CursorStore struct {
	db *sqlx.DB
}

func NewCursorStore(db *sqlx.DB) *CursorStore {
	return &CursorStore{db: db}
}

func (s *CursorStore) Get(ctx context.Context, subjectID string) (*domain.SubjectCursor, error) {
	var cursor domain.SubjectCursor
	query := `
		SELECT id, subject_id, last_synced_at, last_entry_id, total_synced
		FROM sync_cursors
		WHERE subject_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &cursor, query, subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty cursor for users never synced
		return &domain.SubjectCursor{SubjectID: subjectID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (s *CursorStore) Update(ctx context.Context, cursor *domain.SubjectCursor) error {
	query := `
		INSERT INTO sync_cursors (subject_id, last_synced_at, last_entry_id, total_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_entry_id = EXCLUDED.last_entry_id,
			total_synced = EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		cursor.SubjectID,
		cursor.LastSyncedAt,
		cursor.LastEntryID,
		cursor.TotalSynced,
	)
	return err
}
