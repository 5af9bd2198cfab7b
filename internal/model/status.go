package model

import "fmt"

// Task statuses. Terminal statuses are reached exactly once; there is no
// transition back to pending or running afterwards.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// Video processing statuses.
const (
	VideoQueued       = "queued"
	VideoDownloading  = "downloading"
	VideoTranscribing = "transcribing"
	VideoDone         = "done"
	VideoFailed       = "failed"
)

var taskTransitions = map[string]map[string]bool{
	"": {
		TaskPending: true,
	},
	TaskPending: {
		TaskPending:   true,
		TaskRunning:   true,
		TaskCancelled: true, // cancelled before a worker picked it up
		TaskFailed:    true,
	},
	TaskRunning: {
		TaskRunning:   true,
		TaskPending:   true, // interrupted worker process, re-queued on recovery
		TaskCompleted: true,
		TaskFailed:    true,
		TaskCancelled: true,
	},
	TaskCompleted: {
		TaskCompleted: true,
	},
	TaskFailed: {
		TaskFailed: true,
	},
	TaskCancelled: {
		TaskCancelled: true,
	},
}

var videoTransitions = map[string]map[string]bool{
	"": {
		VideoQueued: true,
	},
	VideoQueued: {
		VideoQueued:      true,
		VideoDownloading: true,
		VideoFailed:      true,
	},
	VideoDownloading: {
		VideoDownloading:  true,
		VideoTranscribing: true,
		VideoFailed:       true,
		VideoQueued:       true, // interrupted mid-stage, re-queued on recovery
	},
	VideoTranscribing: {
		VideoTranscribing: true,
		VideoDone:         true,
		VideoFailed:       true,
		VideoQueued:       true,
	},
	VideoDone: {
		VideoDone: true,
	},
	VideoFailed: {
		VideoFailed: true,
	},
}

func IsTerminalTaskStatus(status string) bool {
	switch status {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

func IsTerminalVideoStatus(status string) bool {
	return status == VideoDone || status == VideoFailed
}

func CanTransitionTask(from, to string) bool {
	next, ok := taskTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func CanTransitionVideo(from, to string) bool {
	next, ok := videoTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionTask moves a task to a new status, guarding against illegal
// transitions (in particular any move out of a terminal state).
func TransitionTask(task *Task, to, reason string) error {
	if !CanTransitionTask(task.Status, to) {
		return fmt.Errorf("invalid task status transition: %q -> %q (task_id=%s)", task.Status, to, task.ID)
	}
	task.Status = to
	task.Reason = reason
	return nil
}

// TransitionVideo moves a video record to a new status. Entering a fresh
// active stage resets the stage-local retry bookkeeping.
func TransitionVideo(v *VideoRecord, to string) error {
	if !CanTransitionVideo(v.Status, to) {
		return fmt.Errorf("invalid video status transition: %q -> %q (task_id=%s video_id=%s)", v.Status, to, v.TaskID, v.VideoID)
	}
	from := v.Status
	v.Status = to
	if to != from && (to == VideoDownloading || to == VideoTranscribing) {
		v.BeginStage()
	}
	return nil
}
