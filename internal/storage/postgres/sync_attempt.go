package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"betterlox/internal/domain"
)

const attemptColumns = `id, subject_id, type, status, start_date, end_date,
	last_page_processed, notes, result_summary, created_at`

type SyncAttemptStore struct {
	db *sqlx.DB
}

func NewSyncAttemptStore(db *sqlx.DB) *SyncAttemptStore {
	return &SyncAttemptStore{db: db}
}

func (s *SyncAttemptStore) Create(ctx context.Context, subjectID string, syncType domain.SyncType, status domain.SyncStatus) (*domain.SyncAttempt, error) {
	if status != domain.SyncStatusQueued && status != domain.SyncStatusRequested {
		return nil, fmt.Errorf("create attempt with status %s: %w", status, domain.ErrInvalidTransition)
	}

	query := `
		INSERT INTO sync_attempts (id, subject_id, type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + attemptColumns

	var attempt domain.SyncAttempt
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &attempt, query,
		uuid.New(),
		subjectID,
		syncType,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert sync attempt: %w", err)
	}
	return &attempt, nil
}

// Update applies u to the attempt inside a row-locking transaction. Terminal rows are never changed.
func (s *SyncAttemptStore) Update(ctx context.Context, id uuid.UUID, u domain.AttemptUpdate) (*domain.SyncAttempt, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.SyncStatus
	err = tx.GetContext(ctx, &current, `SELECT status FROM sync_attempts WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update attempt %s: %w", id, domain.ErrAttemptNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock sync attempt: %w", err)
	}

	if current.IsTerminal() {
		return nil, fmt.Errorf("update attempt %s: %w", id, domain.ErrAttemptFinalized)
	}
	if u.Status != nil && *u.Status != current && !current.CanTransitionTo(*u.Status) {
		return nil, fmt.Errorf("update attempt %s from %s to %s: %w", id, current, *u.Status, domain.ErrInvalidTransition)
	}

	sets, args := updateClauses(u)

	var attempt domain.SyncAttempt
	if len(sets) == 0 {
		err = tx.GetContext(ctx, &attempt, `SELECT `+attemptColumns+` FROM sync_attempts WHERE id = $1`, id)
	} else {
		args = append(args, id)
		query := `UPDATE sync_attempts SET ` + strings.Join(sets, ", ") +
			` WHERE id = $` + strconv.Itoa(len(args)) +
			` RETURNING ` + attemptColumns
		err = tx.GetContext(ctx, &attempt, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("update sync attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sync attempt: %w", err)
	}
	return &attempt, nil
}

func updateClauses(u domain.AttemptUpdate) ([]string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.StartDate != nil {
		add("start_date", *u.StartDate)
	}
	if u.EndDate != nil {
		add("end_date", *u.EndDate)
	}
	if u.LastPageProcessed != nil {
		add("last_page_processed", *u.LastPageProcessed)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.ResultSummary != nil {
		add("result_summary", *u.ResultSummary)
	}

	return sets, args
}

func (s *SyncAttemptStore) Get(ctx context.Context, id uuid.UUID) (*domain.SyncAttempt, error) {
	var attempt domain.SyncAttempt
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &attempt,
		`SELECT `+attemptColumns+` FROM sync_attempts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListBySubject returns the most recent attempts for subjectID, newest first.
func (s *SyncAttemptStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SyncAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM sync_attempts
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	attempts := []domain.SyncAttempt{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &attempts, query, subjectID, limit)
	return attempts, err
}
