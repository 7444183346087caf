package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"betterlox/internal/domain"
	"betterlox/internal/metrics"
	"betterlox/internal/retry"
)

const (
	SourceID   = "activity"
	SourceName = "Letterboxd Activity"

	watchedDateLayout = "2006-01-02"
)

var ErrUserNotFound = errors.New("activity feed user not found")

// Config holds activity feed configuration.
type Config struct {
	BaseURL           string
	PageSize          int
	Timeout           time.Duration
	MaxRetries        int
	RetryUnit         time.Duration
	RequestsPerSecond float64
	BreakerTimeout    time.Duration
}

// FetchOptions bound a single user's fetch.
type FetchOptions struct {
	MaxPages int
	// Since stops paging once a page contains only entries published at or before it.
	Since time.Time
	// OnPage is called after each page has been fetched.
	OnPage func(ctx context.Context, page int) error
}

// Source reads a user's rating activity from the remote feed.
type Source struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	maxRetries int
	retryUnit  time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*APIResponse]
	logger     *slog.Logger
}

// New creates a new activity feed source.
func New(cfg Config, logger *slog.Logger) *Source {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	logger = logger.With("source", SourceID)

	breaker := gobreaker.NewCircuitBreaker[*APIResponse](gobreaker.Settings{
		Name:        "activity-feed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUserNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.SetBreakerState(name, float64(to))
		},
	})

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:    cfg.BaseURL,
		pageSize:   cfg.PageSize,
		maxRetries: cfg.MaxRetries,
		retryUnit:  cfg.RetryUnit,
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    breaker,
		logger:     logger,
	}
}

func (s *Source) ID() string {
	return SourceID
}

func (s *Source) Name() string {
	return SourceName
}

// FetchRatings pages through username's activity feed and returns its rating entries.
// On a page failure it returns the entries gathered so far together with the error.
func (s *Source) FetchRatings(ctx context.Context, userID, username string, opts FetchOptions) ([]domain.Rating, error) {
	var all []Entry

	for page := 0; page < opts.MaxPages; page++ {
		resp, err := s.fetchPage(ctx, username, page)
		if err != nil {
			return s.transform(userID, all), fmt.Errorf("fetch page %d: %w", page, err)
		}

		all = append(all, resp.Entries...)

		s.logger.Debug("fetched page",
			"username", username,
			"page", page,
			"entries", len(resp.Entries),
			"total", len(all),
		)

		if opts.OnPage != nil {
			if err := opts.OnPage(ctx, page); err != nil {
				return s.transform(userID, all), err
			}
		}

		if page >= resp.PageInfo.NumPages-1 || s.reachedSince(resp.Entries, opts.Since) {
			break
		}
	}

	return s.transform(userID, all), nil
}

func (s *Source) reachedSince(entries []Entry, since time.Time) bool {
	if since.IsZero() || len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		published, err := time.Parse(time.RFC3339, e.Published)
		if err != nil || published.After(since) {
			return false
		}
	}
	return true
}

func (s *Source) fetchPage(ctx context.Context, username string, page int) (*APIResponse, error) {
	u := fmt.Sprintf("%s/users/%s/activity?pageSize=%d&page=%d",
		s.baseURL, url.PathEscape(username), s.pageSize, page)

	return retry.Do(ctx, s.maxRetries, func(ctx context.Context) (*APIResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return s.breaker.Execute(func() (*APIResponse, error) {
			return s.doRequest(ctx, u)
		})
	},
		retry.WithUnit(s.retryUnit),
		retry.WithOnRetry(func(a retry.Attempt) {
			metrics.IncRetry("fetch_page")
			s.logger.Warn("request failed, retrying",
				"page", page,
				"retry", a.Retry,
				"backoff", a.Delay,
				"error", a.Err,
			)
		}),
	)
}

func (s *Source) doRequest(ctx context.Context, url string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "BetterloxSync/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, nil
}

func (s *Source) transform(userID string, entries []Entry) []domain.Rating {
	ratings := make([]domain.Rating, 0, len(entries))

	for _, e := range entries {
		publishedAt, err := time.Parse(time.RFC3339, e.Published)
		if err != nil {
			s.logger.Warn("failed to parse published date",
				"entry_id", e.ID,
				"published", e.Published,
			)
			continue
		}

		rating := domain.Rating{
			UserID:     userID,
			ExternalID: e.ID,
			Movie: domain.Movie{
				ID:    e.Film.ID,
				Title: e.Film.Title,
				Year:  e.Film.Year,
				Slug:  e.Film.Slug,
			},
			Stars:        e.Rating,
			Rewatch:      e.Rewatch,
			PublishedAt:  publishedAt,
			LastModified: time.UnixMilli(e.LastModified),
		}
		if e.LastModified == 0 {
			rating.LastModified = publishedAt
		}

		if e.WatchedDate != nil {
			if watched, err := time.Parse(watchedDateLayout, *e.WatchedDate); err == nil {
				rating.WatchedAt = &watched
			}
		}

		ratings = append(ratings, rating)
	}

	return ratings
}
