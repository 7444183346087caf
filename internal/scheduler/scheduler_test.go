package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"betterlox/internal/domain"
)

type triggerFunc func(ctx context.Context) (*domain.RunSummary, error)

func (f triggerFunc) Trigger(ctx context.Context) (*domain.RunSummary, error) {
	return f(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyAndOnSchedule(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := triggerFunc(func(context.Context) (*domain.RunSummary, error) {
		if calls.Add(1) >= 2 {
			cancel()
		}
		return &domain.RunSummary{ItemType: "ratings", Synced: 3}, nil
	})

	s := NewScheduler(trigger, "@every 1s", time.Second, discardLogger())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestScheduler_FailureDoesNotStop(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := triggerFunc(func(context.Context) (*domain.RunSummary, error) {
		if calls.Add(1) >= 2 {
			cancel()
		}
		return nil, errors.New("connection refused")
	})

	s := NewScheduler(trigger, "@every 1s", time.Second, discardLogger())
	err := s.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	trigger := triggerFunc(func(context.Context) (*domain.RunSummary, error) {
		t.Fatal("trigger should not run")
		return nil, nil
	})

	s := NewScheduler(trigger, "not a schedule", time.Second, discardLogger())
	err := s.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse schedule")
}

func TestScheduler_PassesTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deadline time.Time
	trigger := triggerFunc(func(c context.Context) (*domain.RunSummary, error) {
		deadline, _ = c.Deadline()
		cancel()
		return &domain.RunSummary{}, nil
	})

	s := NewScheduler(trigger, "@every 1h", 2*time.Second, discardLogger())
	_ = s.Start(ctx)

	assert.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, 2*time.Second)
}
