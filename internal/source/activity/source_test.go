package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"betterlox/internal/retry"
)

type SourceTestSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestSourceTestSuite(t *testing.T) {
	suite.Run(t, new(SourceTestSuite))
}

func (s *SourceTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *SourceTestSuite) newSource(baseURL string) *Source {
	return New(Config{
		BaseURL:    baseURL,
		PageSize:   2,
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryUnit:  time.Millisecond,
	}, s.logger)
}

func entry(id string, published time.Time) Entry {
	year := 1999
	watched := published.Format(watchedDateLayout)
	return Entry{
		ID:           id,
		Film:         Film{ID: 603, Title: "The Matrix", Year: &year, Slug: "the-matrix"},
		Rating:       4.5,
		WatchedDate:  &watched,
		Published:    published.Format(time.RFC3339),
		LastModified: published.UnixMilli(),
	}
}

func writePage(w http.ResponseWriter, page, numPages int, entries ...Entry) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(APIResponse{
		PageInfo: PageInfo{Page: page, NumPages: numPages, PageSize: 2, NumEntries: len(entries)},
		Entries:  entries,
	})
}

func (s *SourceTestSuite) TestFetchRatings_Pages() {
	now := time.Now().UTC().Truncate(time.Second)
	var seenPages []int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/users/alice/activity", r.URL.Path)
		s.Equal("2", r.URL.Query().Get("pageSize"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		writePage(w, page, 2, entry(fmt.Sprintf("e%d", page), now))
	}))
	defer srv.Close()

	ratings, err := s.newSource(srv.URL).FetchRatings(context.Background(), "u1", "alice", FetchOptions{
		MaxPages: 5,
		OnPage: func(_ context.Context, page int) error {
			seenPages = append(seenPages, page)
			return nil
		},
	})

	s.Require().NoError(err)
	s.Require().Len(ratings, 2)
	s.Equal([]int{0, 1}, seenPages)
	s.Equal("u1", ratings[0].UserID)
	s.Equal("e0", ratings[0].ExternalID)
	s.Equal(int64(603), ratings[0].Movie.ID)
	s.Equal(4.5, ratings[0].Stars)
	s.True(now.Equal(ratings[0].PublishedAt))
	s.NotNil(ratings[0].WatchedAt)
}

func (s *SourceTestSuite) TestFetchRatings_StopsAtSince() {
	since := time.Now().UTC().Truncate(time.Second)
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writePage(w, 0, 10, entry("old", since.Add(-time.Hour)))
	}))
	defer srv.Close()

	ratings, err := s.newSource(srv.URL).FetchRatings(context.Background(), "u1", "alice", FetchOptions{
		MaxPages: 10,
		Since:    since,
	})

	s.NoError(err)
	s.Len(ratings, 1)
	s.Equal(int32(1), atomic.LoadInt32(&requests))
}

func (s *SourceTestSuite) TestFetchRatings_RetriesFlakyPage() {
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writePage(w, 0, 1, entry("e0", time.Now()))
	}))
	defer srv.Close()

	ratings, err := s.newSource(srv.URL).FetchRatings(context.Background(), "u1", "alice", FetchOptions{MaxPages: 1})

	s.NoError(err)
	s.Len(ratings, 1)
	s.Equal(int32(3), atomic.LoadInt32(&requests))
}

func (s *SourceTestSuite) TestFetchRatings_ExhaustsRetries() {
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ratings, err := s.newSource(srv.URL).FetchRatings(context.Background(), "u1", "alice", FetchOptions{MaxPages: 3})

	s.Error(err)
	s.Empty(ratings)
	s.True(errors.Is(err, retry.ErrRetryBudgetExhausted))
	s.Contains(err.Error(), "fetch page 0")
	s.Contains(err.Error(), "unexpected status: 500")
	s.Equal(int32(3), atomic.LoadInt32(&requests))
}

func (s *SourceTestSuite) TestFetchRatings_UserNotFound() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := s.newSource(srv.URL).FetchRatings(context.Background(), "u1", "ghost", FetchOptions{MaxPages: 1})

	s.ErrorIs(err, ErrUserNotFound)
}

func (s *SourceTestSuite) TestFetchRatings_KeepsPartialResultsOnFailure() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writePage(w, 0, 3, entry("e0", time.Now()), entry("e1", time.Now()))
	}))
	defer srv.Close()

	ratings, err := s.newSource(srv.URL).FetchRatings(context.Background(), "u1", "alice", FetchOptions{MaxPages: 3})

	s.Error(err)
	s.Len(ratings, 2)
}

func (s *SourceTestSuite) TestTransform_SkipsBadDates() {
	src := s.newSource("http://unused")
	good := entry("good", time.Now())
	bad := entry("bad", time.Now())
	bad.Published = "yesterday"
	noMod := entry("nomod", time.Now())
	noMod.LastModified = 0

	ratings := src.transform("u1", []Entry{good, bad, noMod})

	s.Require().Len(ratings, 2)
	s.Equal("good", ratings[0].ExternalID)
	s.Equal(ratings[1].PublishedAt, ratings[1].LastModified)
}
