package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/google/uuid"

	"betterlox/internal/domain"
)

// SyncService is the part of the sync service exposed over HTTP.
type SyncService interface {
	SyncAll(ctx context.Context, limit int, syncType domain.SyncType) (*domain.RunSummary, error)
	RequestAll(ctx context.Context, limit int, syncType domain.SyncType) (*domain.RunSummary, error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*domain.SyncAttempt, error)
	ListAttempts(ctx context.Context, subjectID string, limit int) ([]domain.SyncAttempt, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}
