package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"jurisense/backend/internal/middleware"
)

type JobCounter interface {
	Count(ctx context.Context) (int, error)
}

type EmbeddingCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	jobs       JobCounter
	embeddings EmbeddingCounter
}

func NewHandler(j JobCounter, e EmbeddingCounter) *Handler {
	return &Handler{jobs: j, embeddings: e}
}

type StatsResponse struct {
	FailedJobs       int `json:"failed_jobs"`
	CachedEmbeddings int `json:"cached_embeddings"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	jCount, err := h.jobs.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count failed jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count failed jobs", http.StatusInternalServerError)
		return
	}

	eCount, err := h.embeddings.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count cached embeddings", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count cached embeddings", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		FailedJobs:       jCount,
		CachedEmbeddings: eCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
