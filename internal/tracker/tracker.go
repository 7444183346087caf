// Package tracker wraps sync work with a persisted attempt record that always ends
// in COMPLETE or FAILED once the work has been started.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"betterlox/internal/domain"
	"betterlox/internal/metrics"
)

// WorkFunc is the unit of work tracked by a Runner. Returning an error marks the attempt FAILED.
type WorkFunc func(ctx context.Context, progress Progress) (domain.SyncResult, error)

type Runner struct {
	store   AttemptStore
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithTimeout fails the attempt when work has not returned within d.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

func NewRunner(store AttemptStore, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track creates a QUEUED attempt for subjectID, runs work and returns the finalized record.
// Work failures are reported through the record's status; the returned error is only ever
// a *PersistenceError.
func (r *Runner) Track(ctx context.Context, subjectID string, syncType domain.SyncType, work WorkFunc) (*domain.SyncAttempt, error) {
	attempt, err := r.store.Create(ctx, subjectID, syncType, domain.SyncStatusQueued)
	if err != nil {
		r.logger.Error("failed to create sync attempt",
			"subject_id", subjectID,
			"type", syncType,
			"error", err,
		)
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	return r.execute(ctx, attempt, work)
}

// Request creates a REQUESTED attempt to be run later with Execute.
func (r *Runner) Request(ctx context.Context, subjectID string, syncType domain.SyncType) (*domain.SyncAttempt, error) {
	attempt, err := r.store.Create(ctx, subjectID, syncType, domain.SyncStatusRequested)
	if err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	r.logger.Info("sync attempt requested",
		"attempt_id", attempt.ID,
		"subject_id", subjectID,
		"type", syncType,
	)

	return attempt, nil
}

// Execute runs work for an attempt previously created by Request.
func (r *Runner) Execute(ctx context.Context, attempt *domain.SyncAttempt, work WorkFunc) (*domain.SyncAttempt, error) {
	if !attempt.Status.CanTransitionTo(domain.SyncStatusInProgress) {
		return attempt, fmt.Errorf("execute attempt %s in status %s: %w", attempt.ID, attempt.Status, ErrInvalidTransition)
	}

	return r.execute(ctx, attempt, work)
}

func (r *Runner) execute(ctx context.Context, attempt *domain.SyncAttempt, work WorkFunc) (*domain.SyncAttempt, error) {
	started := r.now()
	status := domain.SyncStatusInProgress

	updated, err := r.store.Update(ctx, attempt.ID, domain.AttemptUpdate{
		Status:    &status,
		StartDate: &started,
	})
	if err != nil {
		r.logger.Error("failed to start sync attempt", "attempt_id", attempt.ID, "error", err)
		return attempt, &PersistenceError{Op: "start", AttemptID: attempt.ID, Err: err}
	}

	r.logger.Info("sync attempt started",
		"attempt_id", updated.ID,
		"subject_id", updated.SubjectID,
		"type", updated.Type,
	)

	return r.run(ctx, updated, started, work)
}

func (r *Runner) run(ctx context.Context, attempt *domain.SyncAttempt, started time.Time, work WorkFunc) (final *domain.SyncAttempt, err error) {
	var (
		result  domain.SyncResult
		workErr error
	)

	defer func() {
		if p := recover(); p != nil {
			workErr = fmt.Errorf("sync work panicked: %v", p)
		}
		final, err = r.finalize(ctx, attempt, started, result, workErr)
	}()

	progress := &attemptProgress{store: r.store, id: attempt.ID}
	result, workErr = r.callWork(ctx, progress, work)

	return attempt, nil
}

func (r *Runner) callWork(ctx context.Context, progress Progress, work WorkFunc) (domain.SyncResult, error) {
	if r.timeout <= 0 {
		return work(ctx, progress)
	}

	workCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result domain.SyncResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var o outcome
		defer func() {
			if p := recover(); p != nil {
				o.err = fmt.Errorf("sync work panicked: %v", p)
			}
			done <- o
		}()
		o.result, o.err = work(workCtx, progress)
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-workCtx.Done():
		if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
			return domain.SyncResult{}, fmt.Errorf("sync work timed out after %s: %w", r.timeout, workCtx.Err())
		}
		return domain.SyncResult{}, fmt.Errorf("sync work interrupted: %w", workCtx.Err())
	}
}

func (r *Runner) finalize(ctx context.Context, attempt *domain.SyncAttempt, started time.Time, result domain.SyncResult, workErr error) (*domain.SyncAttempt, error) {
	ended := r.now()
	if ended.Before(started) {
		ended = started
	}

	update := domain.AttemptUpdate{EndDate: &ended}
	status := domain.SyncStatusComplete
	if workErr != nil {
		status = domain.SyncStatusFailed
		notes := workErr.Error()
		update.Notes = &notes
	} else {
		update.ResultSummary = &result
	}
	update.Status = &status

	metrics.ObserveAttempt(string(attempt.Type), string(status), ended.Sub(started))

	// The record must reach a terminal state even when the caller's context is already done.
	updated, err := r.store.Update(context.WithoutCancel(ctx), attempt.ID, update)
	if err != nil {
		r.logger.Error("failed to finalize sync attempt",
			"attempt_id", attempt.ID,
			"status", status,
			"error", err,
		)
		final := *attempt
		update.Apply(&final)
		return &final, &PersistenceError{Op: "finish", AttemptID: attempt.ID, Err: err}
	}

	if workErr != nil {
		r.logger.Warn("sync attempt failed",
			"attempt_id", updated.ID,
			"subject_id", updated.SubjectID,
			"error", workErr,
		)
	} else {
		r.logger.Info("sync attempt completed",
			"attempt_id", updated.ID,
			"subject_id", updated.SubjectID,
			"synced_count", result.SyncedCount,
			"duration", ended.Sub(started),
		)
	}

	return updated, nil
}

type attemptProgress struct {
	store AttemptStore
	id    uuid.UUID
}

func (p *attemptProgress) Page(ctx context.Context, page int) error {
	if _, err := p.store.Update(ctx, p.id, domain.AttemptUpdate{LastPageProcessed: &page}); err != nil {
		return fmt.Errorf("record page progress: %w", err)
	}
	return nil
}

func (p *attemptProgress) Note(ctx context.Context, note string) error {
	if _, err := p.store.Update(ctx, p.id, domain.AttemptUpdate{Notes: &note}); err != nil {
		return fmt.Errorf("record note: %w", err)
	}
	return nil
}
