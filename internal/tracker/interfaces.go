package tracker

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/google/uuid"

	"betterlox/internal/domain"
)

// AttemptStore persists SyncAttempt records. It is the only storage the runner touches.
type AttemptStore interface {
	Create(ctx context.Context, subjectID string, syncType domain.SyncType, status domain.SyncStatus) (*domain.SyncAttempt, error)
	Update(ctx context.Context, id uuid.UUID, update domain.AttemptUpdate) (*domain.SyncAttempt, error)
}

// Progress lets in-flight work record how far it got.
type Progress interface {
	Page(ctx context.Context, page int) error
	Note(ctx context.Context, note string) error
}
