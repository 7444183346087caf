package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"betterlox/internal/domain"
	"betterlox/internal/source/activity"
	"betterlox/internal/tracker"
)

type RatingStore interface {
	Upsert(ctx context.Context, rating *domain.Rating) (int64, error)
	GetExistingByUserAndExternalIDs(ctx context.Context, userID string, ids []string) (map[string]time.Time, error)
}

type MovieStore interface {
	UpsertBatch(ctx context.Context, movies []domain.Movie) error
}

type CursorStore interface {
	Get(ctx context.Context, subjectID string) (*domain.SubjectCursor, error)
	Update(ctx context.Context, cursor *domain.SubjectCursor) error
}

type UserStore interface {
	ListForSync(ctx context.Context, limit int) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

type AttemptReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.SyncAttempt, error)
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SyncAttempt, error)
}

type Source interface {
	ID() string
	Name() string
	FetchRatings(ctx context.Context, userID, username string, opts activity.FetchOptions) ([]domain.Rating, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, rating *domain.Rating, isNew bool) error
	PublishSyncRequest(ctx context.Context, attempt *domain.SyncAttempt) error
	Close() error
}

type Tracker interface {
	Track(ctx context.Context, subjectID string, syncType domain.SyncType, work tracker.WorkFunc) (*domain.SyncAttempt, error)
	Request(ctx context.Context, subjectID string, syncType domain.SyncType) (*domain.SyncAttempt, error)
	Execute(ctx context.Context, attempt *domain.SyncAttempt, work tracker.WorkFunc) (*domain.SyncAttempt, error)
}
