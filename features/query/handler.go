package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"groundwork/internal/fault"
	"groundwork/internal/middleware"
	"groundwork/internal/retrieval"
)

// Engine is the query pipeline this handler fronts.
type Engine interface {
	Answer(ctx context.Context, req retrieval.AskRequest) (*retrieval.Answer, error)
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

type askRequest struct {
	Question        string                 `json:"question"`
	TopK            int                    `json:"top_k"`
	MinScore        *float32               `json:"min_score"`
	Filters         map[string]interface{} `json:"filters"`
	IncludeMetadata bool                   `json:"include_metadata"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}

	ans, err := h.engine.Answer(ctx, retrieval.AskRequest{
		Question:        req.Question,
		TopK:            req.TopK,
		MinScore:        req.MinScore,
		Filters:         req.Filters,
		IncludeMetadata: req.IncludeMetadata,
	})
	if err != nil {
		if errors.Is(err, fault.ErrValidation) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		if fault.IsTransient(err) {
			slog.ErrorContext(ctx, "query failed on upstream provider", "error", err)
			h.writeError(ctx, w, "UPSTREAM_UNAVAILABLE", "upstream provider unavailable", http.StatusServiceUnavailable)
			return
		}
		slog.ErrorContext(ctx, "query failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": ans}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
