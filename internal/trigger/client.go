package trigger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"betterlox/internal/domain"
)

const syncPath = "/api/admin/sync"

type Config struct {
	URL      string
	Limit    int
	SyncType domain.SyncType
	Defer    bool
	Token    string
	Timeout  time.Duration
}

// Client asks a running syncer to start a batch sync over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.SyncType == "" {
		cfg.SyncType = domain.SyncTypeRecent
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "trigger"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Trigger(ctx context.Context) (*domain.RunSummary, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	c.logger.Debug("triggering sync", "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("sync endpoint returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("sync endpoint returned %d", resp.StatusCode)
	}

	var summary domain.RunSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &summary, nil
}

func (c *Client) endpoint() (string, error) {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse trigger url: %w", err)
	}

	u := base.JoinPath(syncPath)
	q := u.Query()
	if c.cfg.Limit > 0 {
		q.Set("limit", strconv.Itoa(c.cfg.Limit))
	}
	q.Set("type", string(c.cfg.SyncType))
	if c.cfg.Defer {
		q.Set("defer", "true")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
