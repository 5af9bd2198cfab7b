package model

import "time"

// MaxRetryErrors bounds the per-video attempt history; older entries drop
// first so the most recent attempts are always visible.
const MaxRetryErrors = 20

// AttemptError is one recorded attempt of the currently active stage.
type AttemptError struct {
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// VideoRecord tracks a single discovered video through the
// download/transcribe stages. Records are owned exclusively by their task's
// pipeline and are never deleted by it.
type VideoRecord struct {
	TaskID    string `json:"task_id"`
	VideoID   string `json:"video_id"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`

	Status string `json:"status"`

	// RetryCount counts attempts of the active stage only; it resets when
	// the record moves to the next stage.
	RetryCount  int            `json:"retry_count"`
	RetryErrors []AttemptError `json:"retry_errors,omitempty"`

	Transcript   string `json:"transcript,omitempty"`
	AudioPath    string `json:"audio_path,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	DiscoveredAt  time.Time `json:"discovered_at"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitzero"`
	CompletedAt   time.Time `json:"completed_at,omitzero"`
}

// RecordAttempt appends one attempt outcome to the bounded history and
// advances the stage-local retry counter.
func (v *VideoRecord) RecordAttempt(attempt int, kind, message string, at time.Time) {
	v.RetryCount = attempt
	v.LastAttemptAt = at
	v.ErrorKind = kind
	v.ErrorMessage = message
	v.RetryErrors = append(v.RetryErrors, AttemptError{
		Attempt:   attempt,
		Timestamp: at,
		Kind:      kind,
		Message:   message,
	})
	if n := len(v.RetryErrors); n > MaxRetryErrors {
		v.RetryErrors = v.RetryErrors[n-MaxRetryErrors:]
	}
}

// BeginStage resets the stage-local attempt bookkeeping when the record
// moves to a new stage.
func (v *VideoRecord) BeginStage() {
	v.RetryCount = 0
	v.ErrorKind = ""
	v.ErrorMessage = ""
}
