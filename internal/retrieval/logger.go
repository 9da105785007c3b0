package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogEntry records one retrieval for offline relevance review. Chunks
// lists the chunk indices handed to the summary, best match first.
type QueryLogEntry struct {
	Timestamp     time.Time     `json:"timestamp"`
	RunID         string        `json:"run_id,omitempty"`
	DocID         string        `json:"doc_id"`
	Query         string        `json:"query"`
	Index         string        `json:"index"`
	Reranked      bool          `json:"reranked"`
	TopK          int           `json:"top_k"`
	NumChunks     int           `json:"num_chunks"`
	Chunks        []int         `json:"chunks"`
	BestScore     float64       `json:"best_score"`
	Duration      time.Duration `json:"duration_ns"`
	LatencyMs     int64         `json:"latency_ms"`
	CorrelationID string        `json:"correlation_id"`
}

// newQueryLogEntry summarizes the hits of one retrieval.
func newQueryLogEntry(docID string, topK, numChunks int, hits []Hit) QueryLogEntry {
	e := QueryLogEntry{DocID: docID, TopK: topK, NumChunks: numChunks, Chunks: make([]int, len(hits))}
	for i, h := range hits {
		e.Chunks[i] = h.ChunkIndex
		if i == 0 || h.Score > e.BestScore {
			e.BestScore = h.Score
		}
	}
	return e
}

type QueryLogger struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{writer: w}
}

// NewFileQueryLogger appends JSON lines to path and mirrors them on stdout.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	cleanPath := filepath.Clean(path)
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, f)
	return NewQueryLogger(mw), nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	entry.Timestamp = time.Now()
	if entry.Chunks == nil {
		entry.Chunks = []int{}
	}
	entry.LatencyMs = entry.Duration.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.writer).Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}
