package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"betterlox/internal/config"
	"betterlox/internal/domain"
	"betterlox/internal/metrics"
	"betterlox/internal/source/activity"
	"betterlox/internal/tracker"
)

// ItemType names what a sync run writes.
const ItemType = "ratings"

type SyncService struct {
	source    Source
	ratings   RatingStore
	movies    MovieStore
	cursors   CursorStore
	users     UserStore
	attempts  AttemptReader
	txManager TransactionManager
	publisher Publisher
	tracker   Tracker
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewSyncService(
	source Source,
	ratings RatingStore,
	movies MovieStore,
	cursors CursorStore,
	users UserStore,
	attempts AttemptReader,
	txManager TransactionManager,
	publisher Publisher,
	tracker Tracker,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		ratings:   ratings,
		movies:    movies,
		cursors:   cursors,
		users:     users,
		attempts:  attempts,
		txManager: txManager,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
	}
}

// SyncAll runs a tracked sync for up to limit users, least recently synced first.
func (s *SyncService) SyncAll(ctx context.Context, limit int, syncType domain.SyncType) (*domain.RunSummary, error) {
	users, err := s.users.ListForSync(ctx, s.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("list users for sync: %w", err)
	}

	summary := &domain.RunSummary{
		ItemType: ItemType,
		SyncType: syncType,
		Users:    len(users),
		Attempts: make([]domain.SyncAttempt, 0, len(users)),
	}

	var (
		mu       sync.Mutex
		errCount int
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	for _, user := range users {
		user := user
		g.Go(func() error {
			attempt, err := s.SyncUser(gctx, user, syncType)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errCount++
				if firstErr == nil {
					firstErr = err
				}
				s.logger.Error("sync user failed", "user_id", user.ID, "error", err)
			}
			if attempt != nil {
				summary.Attempts = append(summary.Attempts, *attempt)
				switch attempt.Status {
				case domain.SyncStatusComplete:
					summary.Completed++
					if attempt.ResultSummary != nil {
						summary.Synced += attempt.ResultSummary.SyncedCount
					}
				case domain.SyncStatusFailed:
					summary.Failed++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("sync run finished",
		"type", syncType,
		"users", summary.Users,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"synced", summary.Synced,
	)

	if len(users) > 0 && errCount == len(users) {
		return summary, fmt.Errorf("sync all users: %w", firstErr)
	}
	return summary, nil
}

// SyncUser runs one tracked sync for user. Sync failures are reported in the attempt's status.
func (s *SyncService) SyncUser(ctx context.Context, user domain.User, syncType domain.SyncType) (*domain.SyncAttempt, error) {
	return s.tracker.Track(ctx, user.ID, syncType, s.work(user, syncType))
}

// RequestAll creates REQUESTED attempts for up to limit users and hands them to the queue.
func (s *SyncService) RequestAll(ctx context.Context, limit int, syncType domain.SyncType) (*domain.RunSummary, error) {
	if s.publisher == nil {
		return nil, errors.New("deferred sync requires a publisher")
	}

	users, err := s.users.ListForSync(ctx, s.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("list users for sync: %w", err)
	}

	summary := &domain.RunSummary{
		ItemType: ItemType,
		SyncType: syncType,
		Users:    len(users),
		Deferred: true,
		Attempts: make([]domain.SyncAttempt, 0, len(users)),
	}

	for _, user := range users {
		attempt, err := s.tracker.Request(ctx, user.ID, syncType)
		if err != nil {
			return summary, fmt.Errorf("request sync for %s: %w", user.ID, err)
		}
		if err := s.publisher.PublishSyncRequest(ctx, attempt); err != nil {
			return summary, fmt.Errorf("publish sync request %s: %w", attempt.ID, err)
		}
		summary.Attempts = append(summary.Attempts, *attempt)
	}

	s.logger.Info("sync requests queued", "type", syncType, "count", len(summary.Attempts))

	return summary, nil
}

// HandleSyncRequest executes a REQUESTED attempt taken off the queue.
func (s *SyncService) HandleSyncRequest(ctx context.Context, attemptID uuid.UUID) (*domain.SyncAttempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt %s: %w", attemptID, err)
	}

	user, err := s.users.Get(ctx, attempt.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", attempt.SubjectID, err)
	}

	return s.tracker.Execute(ctx, attempt, s.work(*user, attempt.Type))
}

func (s *SyncService) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.SyncAttempt, error) {
	return s.attempts.Get(ctx, id)
}

func (s *SyncService) ListAttempts(ctx context.Context, subjectID string, limit int) ([]domain.SyncAttempt, error) {
	return s.attempts.ListBySubject(ctx, subjectID, s.limit(limit))
}

func (s *SyncService) work(user domain.User, syncType domain.SyncType) tracker.WorkFunc {
	return func(ctx context.Context, progress tracker.Progress) (domain.SyncResult, error) {
		stats, err := s.syncRatings(ctx, user, syncType, progress)
		if err != nil {
			return domain.SyncResult{}, err
		}

		metrics.AddSyncedItems(string(syncType), stats.New+stats.Updated)

		return domain.SyncResult{
			SyncedCount: stats.New + stats.Updated,
			Metadata: map[string]any{
				"type":      ItemType,
				"fetched":   stats.Fetched,
				"new":       stats.New,
				"updated":   stats.Updated,
				"skipped":   stats.Skipped,
				"errors":    stats.Errors,
				"published": stats.Published,
				"pages":     stats.Pages,
			},
		}, nil
	}
}

func (s *SyncService) syncRatings(ctx context.Context, user domain.User, syncType domain.SyncType, progress tracker.Progress) (*domain.SyncStats, error) {
	startTime := time.Now()
	logger := s.logger.With("user_id", user.ID, "type", syncType)

	cursor, err := s.cursors.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}

	opts := activity.FetchOptions{MaxPages: s.config.MaxPagesFull}
	if syncType == domain.SyncTypeRecent {
		opts.MaxPages = s.config.MaxPagesRecent
		opts.Since = cursor.LastSyncedAt
	}

	stats := &domain.SyncStats{SubjectID: user.ID}
	opts.OnPage = func(ctx context.Context, page int) error {
		stats.Pages = page + 1
		return progress.Page(ctx, page)
	}

	logger.Info("starting sync", "max_pages", opts.MaxPages, "since", opts.Since)

	ratings, err := s.source.FetchRatings(ctx, user.ID, user.Username, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch ratings: %w", err)
	}

	toSync, err := s.filterForSync(ctx, user.ID, ratings)
	if err != nil {
		return nil, fmt.Errorf("filter for sync: %w", err)
	}

	stats.Fetched = len(ratings)
	stats.Skipped = len(ratings) - len(toSync)

	for i := range toSync {
		rating := &toSync[i]
		isNew, err := s.saveRating(ctx, rating)
		if err != nil {
			logger.Warn("failed to save rating", "external_id", rating.ExternalID, "error", err)
			stats.Errors++
			continue
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, rating, isNew); err != nil {
				stats.Errors++
			} else {
				stats.Published++
			}
		}

		if isNew {
			stats.New++
		} else {
			stats.Updated++
		}
	}

	if err := s.updateCursor(ctx, cursor, ratings, stats); err != nil {
		return stats, fmt.Errorf("update cursor: %w", err)
	}

	stats.Duration = time.Since(startTime)

	logger.Info("sync completed",
		"new", stats.New,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) filterForSync(ctx context.Context, userID string, ratings []domain.Rating) ([]domain.Rating, error) {
	if len(ratings) == 0 {
		return nil, nil
	}

	externalIDs := make([]string, len(ratings))
	for i, r := range ratings {
		externalIDs[i] = r.ExternalID
	}

	existing, err := s.ratings.GetExistingByUserAndExternalIDs(ctx, userID, externalIDs)
	if err != nil {
		return nil, err
	}

	var toSync []domain.Rating
	for _, rating := range ratings {
		existingLastMod, exists := existing[rating.ExternalID]

		if !exists || rating.LastModified.After(existingLastMod) {
			toSync = append(toSync, rating)
		}
	}

	return toSync, nil
}

func (s *SyncService) saveRating(ctx context.Context, rating *domain.Rating) (bool, error) {
	existing, err := s.ratings.GetExistingByUserAndExternalIDs(ctx, rating.UserID, []string{rating.ExternalID})
	if err != nil {
		return false, err
	}
	isNew := len(existing) == 0

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.movies.UpsertBatch(txCtx, []domain.Movie{rating.Movie}); err != nil {
			return fmt.Errorf("upsert movie: %w", err)
		}

		id, err := s.ratings.Upsert(txCtx, rating)
		if err != nil {
			return fmt.Errorf("upsert rating: %w", err)
		}
		rating.ID = id

		return nil
	})

	return isNew, err
}

func (s *SyncService) updateCursor(ctx context.Context, cursor *domain.SubjectCursor, ratings []domain.Rating, stats *domain.SyncStats) error {
	now := time.Now()

	var newest time.Time
	for _, r := range ratings {
		if r.PublishedAt.After(newest) {
			newest = r.PublishedAt
			cursor.LastEntryID = r.ExternalID
		}
	}
	if newest.After(cursor.LastSyncedAt) {
		cursor.LastSyncedAt = newest
	}
	cursor.TotalSynced += int64(stats.New + stats.Updated)

	if err := s.cursors.Update(ctx, cursor); err != nil {
		return err
	}
	return s.users.MarkSynced(ctx, cursor.SubjectID, now)
}

func (s *SyncService) limit(limit int) int {
	if limit <= 0 {
		return s.config.DefaultLimit
	}
	return limit
}

func (s *SyncService) concurrency() int {
	if s.config.Concurrency <= 0 {
		return 1
	}
	return s.config.Concurrency
}
