package model

import "time"

// Task is one end-to-end request to process a creator's video feed:
// enumerate the feed, download each video's audio, transcribe it, and
// persist the transcripts.
type Task struct {
	ID           string `json:"id"`
	Owner        string `json:"owner,omitempty"`
	TargetURL    string `json:"target_url"`
	MaxVideos    int    `json:"max_videos"`
	Language     string `json:"language,omitempty"`
	WhisperModel string `json:"whisper_model,omitempty"`

	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	CurrentStage string `json:"current_stage,omitempty"`

	TotalDiscovered int `json:"total_discovered"`
	Processed       int `json:"processed"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`

	// Progress is 0-100 once enumeration has completed.
	Progress           int    `json:"progress"`
	EstimatedRemaining int    `json:"estimated_remaining,omitempty"`
	ResultFile         string `json:"result_file,omitempty"`
	LastError          string `json:"last_error,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Terminal reasons attached to failed or cancelled tasks.
const (
	ReasonResourceUnavailable = "resource_unavailable"
	ReasonEnumerationFailed   = "enumeration_failed"
	ReasonCancelled           = "cancelled"
	ReasonTimeout             = "timeout"
)

// Stage labels surfaced through Task.CurrentStage.
const (
	StageInitializing = "initializing"
	StageEnumerating  = "enumerating"
	StageProcessing   = "processing"
	StageFinalizing   = "finalizing"
)

// UpdateProgress recomputes the aggregate counters, the percentage, and the
// estimated remaining seconds from the per-video averages so far.
func (t *Task) UpdateProgress(processed, succeeded, failed int, now time.Time) {
	t.Processed = processed
	t.Succeeded = succeeded
	t.Failed = failed
	if t.TotalDiscovered > 0 {
		t.Progress = processed * 100 / t.TotalDiscovered
	}
	if !t.StartedAt.IsZero() && processed > 0 {
		elapsed := now.Sub(t.StartedAt).Seconds()
		perVideo := elapsed / float64(processed)
		t.EstimatedRemaining = int(perVideo * float64(t.TotalDiscovered-processed))
	}
	t.UpdatedAt = now
}

// CountersConsistent reports whether processed = succeeded + failed and
// processed never exceeds the discovered total.
func (t *Task) CountersConsistent() bool {
	return t.Processed == t.Succeeded+t.Failed && t.Processed <= t.TotalDiscovered
}
