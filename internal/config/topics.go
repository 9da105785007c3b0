package config

const (
	// TopicAnalyzeTask is the NSQ topic for queued document analyses.
	TopicAnalyzeTask = "analyze.task"

	// TopicAnalyzeProgress carries per-phase progress updates of running analyses.
	TopicAnalyzeProgress = "analyze.progress"

	// TopicAnalyzeResult carries the final analysis or its failure.
	TopicAnalyzeResult = "analyze.result"
)

// Topics lists every topic the service publishes or consumes.
var Topics = []string{TopicAnalyzeTask, TopicAnalyzeProgress, TopicAnalyzeResult}
