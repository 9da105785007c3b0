package job

import (
	"encoding/json"
	"time"
)

// HandlerAnalysis identifies failures recorded by the analysis worker.
const HandlerAnalysis = "analysis-worker"

// Job is a failed background task kept for inspection and manual retry.
type Job struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
