package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrStageTimeout           = errors.New("stage timed out")
)

// StageError tags a fatal failure with the stage it happened in.
type StageError struct {
	Stage   Phase
	Timeout bool
	Err     error
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timeout while %s", e.Stage, activity(e.Stage))
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func activity(stage Phase) string {
	switch stage {
	case PhaseReading:
		return "reading the document"
	case PhaseChunking:
		return "splitting the document"
	case PhaseEmbedding:
		return "generating embeddings"
	case PhaseRetrieving:
		return "retrieving relevant passages"
	case PhaseExtractingTerms:
		return "extracting terms"
	case PhaseExtractingClauses:
		return "extracting clauses"
	case PhaseSummarizing:
		return "generating the summary"
	default:
		return string(stage)
	}
}
