package trigger

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"betterlox/internal/domain"
)

type ClientTestSuite struct {
	suite.Suite
	server  *httptest.Server
	handler http.HandlerFunc
	logger  *slog.Logger
}

func (s *ClientTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler(w, r)
	}))
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) client(cfg Config) *Client {
	cfg.URL = s.server.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return New(cfg, s.logger)
}

func (s *ClientTestSuite) TestTrigger_Success() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/api/admin/sync", r.URL.Path)
		s.Equal("5", r.URL.Query().Get("limit"))
		s.Equal("RECENT", r.URL.Query().Get("type"))
		s.Empty(r.URL.Query().Get("defer"))
		s.Empty(r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"synced":7,"type":"ratings","syncType":"RECENT","users":2,"completed":2,"failed":0,"attempts":[]}`))
	}

	summary, err := s.client(Config{Limit: 5}).Trigger(context.Background())

	s.Require().NoError(err)
	s.Equal(7, summary.Synced)
	s.Equal("ratings", summary.ItemType)
	s.Equal(domain.SyncTypeRecent, summary.SyncType)
	s.Equal(2, summary.Completed)
}

func (s *ClientTestSuite) TestTrigger_DeferAndToken() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal("true", r.URL.Query().Get("defer"))
		s.Equal("FULL", r.URL.Query().Get("type"))
		s.Equal("Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"synced":0,"type":"ratings","deferred":true,"attempts":[]}`))
	}

	summary, err := s.client(Config{
		Limit:    1,
		SyncType: domain.SyncTypeFull,
		Defer:    true,
		Token:    "secret",
	}).Trigger(context.Background())

	s.Require().NoError(err)
	s.True(summary.Deferred)
}

func (s *ClientTestSuite) TestTrigger_ServerErrorMessage() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"list users for sync: connection refused"}`))
	}

	_, err := s.client(Config{}).Trigger(context.Background())

	s.Require().Error(err)
	s.Contains(err.Error(), "500")
	s.Contains(err.Error(), "connection refused")
}

func (s *ClientTestSuite) TestTrigger_ServerErrorWithoutBody() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := s.client(Config{}).Trigger(context.Background())

	s.Require().Error(err)
	s.Contains(err.Error(), "502")
}

func (s *ClientTestSuite) TestTrigger_InvalidJSON() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}

	_, err := s.client(Config{}).Trigger(context.Background())

	s.Require().Error(err)
	s.Contains(err.Error(), "decode response")
}

func (s *ClientTestSuite) TestTrigger_ContextCancelled() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.client(Config{}).Trigger(ctx)

	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)
}
