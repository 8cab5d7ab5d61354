package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/adapt"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// profileCacheTTL bounds staleness of cached profile snapshots.
const profileCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	engine  *engine.Engine
	repo    domain.Repository
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		engine:  eng,
		repo:    repo,
		cache:   cache,
		version: version,
	}
}

// ScoreRequest is the request body for POST /transactions/score.
type ScoreRequest struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ScoreTransaction handles POST /transactions/score requests.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId is required",
		})
		return
	}
	if req.Location == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "location is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	input := domain.TransactionInput{
		ID:        req.ID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Location:  req.Location,
		Timestamp: req.Timestamp,
	}

	result, err := h.engine.Score(ctx, input)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidProfileState) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("scoring failed", "user_id", req.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ConfirmRequest is the request body for POST /transactions/{id}/confirm.
type ConfirmRequest struct {
	Outcome string `json:"outcome"`
}

// ConfirmTransaction handles POST /transactions/{id}/confirm requests.
func (h *Handler) ConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	outcome := domain.Status(req.Outcome)
	if err := h.engine.Confirm(ctx, txID, outcome); err != nil {
		switch {
		case errors.Is(err, adapt.ErrInvalidOutcome):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "outcome must be legit or fraud",
			})
		case errors.Is(err, engine.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
		default:
			slog.Error("confirmation failed", "tx_id", txID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "confirmation failed",
			})
		}
		return
	}

	// Drop the stale snapshot; the next profile read refills it.
	if h.cache != nil {
		if tx, ok := h.engine.GetTransaction(txID); ok {
			if err := h.cache.InvalidateProfile(ctx, tx.UserID); err != nil {
				slog.Error("failed to invalidate profile cache", "user_id", tx.UserID, "error", err)
			}
		}
	}

	tx, _ := h.engine.GetTransaction(txID)
	writeJSON(w, http.StatusOK, tx)
}

// GetTransaction retrieves a scored transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, ok := h.engine.GetTransaction(txID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListProfiles returns all user profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.engine.ListProfiles()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// GetProfile retrieves a user profile by ID, preferring the cache.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if h.cache != nil {
		cached, err := h.cache.GetProfile(ctx, userID)
		if err != nil {
			slog.Error("profile cache read failed", "user_id", userID, "error", err)
		}
		if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	p, ok := h.engine.GetProfile(userID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "profile not found",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetProfile(ctx, &p, profileCacheTTL); err != nil {
			slog.Error("profile cache write failed", "user_id", userID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, p)
}

// ListAlerts returns alerts raised since the optional "since" timestamp.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}

	alerts, err := h.repo.ListAlerts(ctx, since)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetPolicy returns the current alert policy expression.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": h.engine.Policy().Expression(),
	})
}

// UpdatePolicyRequest is the request body for PUT /policy.
type UpdatePolicyRequest struct {
	Expression string `json:"expression"`
}

// UpdatePolicy replaces the alert policy expression. The new expression
// is compiled before installation; invalid expressions leave the old
// policy in place.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req UpdatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "expression is required",
		})
		return
	}

	if err := h.engine.Policy().SetExpression(req.Expression); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid policy expression: " + err.Error(),
		})
		return
	}

	slog.Info("alert policy updated", "expression", req.Expression)
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": req.Expression,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
