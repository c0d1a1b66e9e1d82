package events

// Run-level event names emitted once per processing run.
const (
	PostTranscriptionReveal = "post_transcription_reveal"
	PostTranscriptionFailed = "post_transcription_failed"
	DashboardRefresh        = "dashboard_refresh"
)

// Suffixes for per-stage lifecycle events. The full event name is the
// stage name followed by the suffix, e.g. "summary_ready".
const (
	SuffixStarted = "_started"
	SuffixReady   = "_ready"
	SuffixFailed  = "_failed"
)

// StageStarted returns the started event name for a stage.
func StageStarted(stage string) string { return stage + SuffixStarted }

// StageReady returns the ready event name for a stage.
func StageReady(stage string) string { return stage + SuffixReady }

// StageFailed returns the failed event name for a stage.
func StageFailed(stage string) string { return stage + SuffixFailed }
