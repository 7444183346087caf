package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"betterlox/internal/domain"
)

type Handler struct {
	service SyncService
	db      Pinger
	logger  *slog.Logger
}

func NewHandler(service SyncService, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		db:      db,
		logger:  logger.With("component", "api"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// TriggerSync handles POST /api/admin/sync?limit=N&type=RECENT&defer=true.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	syncType := domain.SyncTypeRecent
	if v := r.URL.Query().Get("type"); v != "" {
		syncType = domain.SyncType(v)
		if !syncType.Valid() {
			h.writeError(w, http.StatusBadRequest, errors.New("invalid sync type "+strconv.Quote(v)))
			return
		}
	}

	deferred, _ := strconv.ParseBool(r.URL.Query().Get("defer"))

	var summary *domain.RunSummary
	if deferred {
		summary, err = h.service.RequestAll(r.Context(), limit, syncType)
	} else {
		summary, err = h.service.SyncAll(r.Context(), limit, syncType)
	}
	if err != nil {
		h.logger.Error("sync request failed", "type", syncType, "deferred", deferred, "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// ListAttempts handles GET /api/sync-attempts?subject=ID&limit=N.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("subject is required"))
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	attempts, err := h.service.ListAttempts(r.Context(), subject, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if attempts == nil {
		attempts = []domain.SyncAttempt{}
	}

	h.writeJSON(w, http.StatusOK, attempts)
}

// GetAttempt handles GET /api/sync-attempts/{id}.
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid attempt id"))
		return
	}

	attempt, err := h.service.GetAttempt(r.Context(), id)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key + " " + strconv.Quote(v))
	}
	return n, nil
}
