package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jurisense/backend/internal/extractor"
	"jurisense/backend/internal/middleware"
	"jurisense/backend/internal/pipeline"
)

const (
	DefaultMaxUploadBytes = 50 << 20
	keepAliveInterval     = 15 * time.Second
)

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(s *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{service: s, maxUploadBytes: maxUploadBytes}
}

// Analyze runs an analysis inline. Clients sending Accept: text/event-stream
// receive progress events followed by a result or error event.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, overrides, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.stream(w, r, file, overrides)
		return
	}

	result, err := h.service.Analyze(ctx, file, overrides, nil)
	if err != nil {
		h.writeAnalysisError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Enqueue queues an analysis for the background worker.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, overrides, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	jobID, err := h.service.Enqueue(ctx, file, overrides)
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue analysis", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"job_id": jobID}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request) (extractor.File, pipeline.Options, bool) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large or malformed form", http.StatusBadRequest)
		return extractor.File{}, pipeline.Options{}, false
	}

	src, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return extractor.File{}, pipeline.Options{}, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to read file", http.StatusBadRequest)
		return extractor.File{}, pipeline.Options{}, false
	}

	var overrides pipeline.Options
	if v := r.FormValue("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "top_k must be a positive integer", http.StatusBadRequest)
			return extractor.File{}, pipeline.Options{}, false
		}
		overrides.TopK = n
	}
	if v := r.FormValue("timeout_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "timeout_ms must be a positive integer", http.StatusBadRequest)
			return extractor.File{}, pipeline.Options{}, false
		}
		overrides.Timeout = time.Duration(n) * time.Millisecond
	}

	file := extractor.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return file, overrides, true
}

type streamOutcome struct {
	result *pipeline.DocumentAnalysis
	err    error
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, file extractor.File, overrides pipeline.Options) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates := make(chan pipeline.ProgressUpdate, 64)
	done := make(chan streamOutcome, 1)

	go func() {
		result, err := h.service.Analyze(ctx, file, overrides, func(u pipeline.ProgressUpdate) {
			select {
			case updates <- u:
			default:
				slog.WarnContext(ctx, "dropping progress update, client is slow", "phase", u.Phase)
			}
		})
		done <- streamOutcome{result: result, err: err}
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case u := <-updates:
			writeEvent(w, "progress", u)
			flusher.Flush()
		case out := <-done:
			// Progress stops before the analyzer returns, so drain what is left.
			for drained := false; !drained; {
				select {
				case u := <-updates:
					writeEvent(w, "progress", u)
				default:
					drained = true
				}
			}
			if out.err != nil {
				code, _ := classify(out.err)
				writeEvent(w, "error", map[string]string{"code": code, "message": out.err.Error()})
			} else {
				writeEvent(w, "result", out.result)
			}
			flusher.Flush()
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			slog.InfoContext(ctx, "analysis stream closed by client")
			return
		}
	}
}

func writeEvent(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// classify maps an analysis failure to an error code and HTTP status.
func classify(err error) (string, int) {
	var stageErr *pipeline.StageError
	switch {
	case errors.As(err, &stageErr) && stageErr.Timeout:
		return "TIMEOUT", http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return "CANCELLED", 499
	case errors.As(err, &stageErr) && (stageErr.Stage == pipeline.PhaseReading || stageErr.Stage == pipeline.PhaseChunking):
		return "UNREADABLE_DOCUMENT", http.StatusUnprocessableEntity
	case errors.As(err, &stageErr):
		return "BACKEND_ERROR", http.StatusBadGateway
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
}

func (h *Handler) writeAnalysisError(ctx context.Context, w http.ResponseWriter, err error) {
	code, status := classify(err)
	slog.ErrorContext(ctx, "analysis failed", "error", err, "code", code)
	h.writeError(ctx, w, code, err.Error(), status)
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
