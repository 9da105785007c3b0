package retrieval

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestQueryLogger_ThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	logger := NewQueryLogger(&buf)

	concurrency := 50
	iterations := 100
	var wg sync.WaitGroup

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				logger.Log(QueryLogEntry{
					DocID:    "doc",
					Query:    "test",
					Duration: time.Millisecond,
				})
			}
		}()
	}
	wg.Wait()

	decoder := json.NewDecoder(&buf)
	count := 0
	for decoder.More() {
		var entry QueryLogEntry
		if err := decoder.Decode(&entry); err != nil {
			t.Fatalf("Failed to decode entry %d: %v", count, err)
		}
		if entry.LatencyMs != 1 {
			t.Fatalf("expected latency 1ms, got %d", entry.LatencyMs)
		}
		count++
	}

	expected := concurrency * iterations
	if count != expected {
		t.Errorf("Expected %d entries, got %d", expected, count)
	}
}

func TestNewFileQueryLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "retrieval.jsonl")
	logger, err := NewFileQueryLogger(path)
	if err != nil {
		t.Fatalf("NewFileQueryLogger: %v", err)
	}
	logger.Log(QueryLogEntry{DocID: "abc", Chunks: []int{4, 0}})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry QueryLogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.DocID != "abc" || len(entry.Chunks) != 2 || entry.Chunks[0] != 4 {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestQueryLogger_EmptyChunksEncodeAsArray(t *testing.T) {
	var buf bytes.Buffer
	NewQueryLogger(&buf).Log(QueryLogEntry{DocID: "empty"})

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chunks, ok := raw["chunks"].([]any); !ok || len(chunks) != 0 {
		t.Errorf("expected empty chunks array, got %v", raw["chunks"])
	}
}
