// Package store is the durable progress and state store: tasks and video
// records keyed by task id and video id. Each running task's pipeline is the
// single writer for its own rows; readers may query snapshots at any time.
package store

import (
	"errors"

	"vidscribe/internal/model"
)

// ErrNotFound is returned when a task or video record does not exist.
var ErrNotFound = errors.New("not found")

type Store interface {
	CreateTask(task *model.Task) error
	UpdateTask(task *model.Task) error
	GetTask(id string) (*model.Task, error)
	ListTasks() ([]model.Task, error)

	// ClaimNextPending atomically picks the oldest pending task and moves
	// it to running (FIFO admission). It returns nil when no task is
	// runnable. Pending tasks with a cancel request are finalized as
	// cancelled instead of being claimed.
	ClaimNextPending() (*model.Task, error)

	// RequeueStaleRunning re-queues tasks left running by an interrupted
	// worker process. Enumeration is idempotent, so re-entry is safe.
	RequeueStaleRunning() (int, error)

	// RequestCancel flags a task for cooperative cancellation. A task that
	// is still pending is finalized as cancelled immediately; a running
	// task stops at its next safe checkpoint.
	RequestCancel(id string) error
	CancelRequested(id string) (bool, error)

	UpsertVideo(v *model.VideoRecord) error
	GetVideo(taskID, videoID string) (*model.VideoRecord, error)
	// ListVideos returns a task's records in discovery order.
	ListVideos(taskID string) ([]model.VideoRecord, error)

	// CheckpointVideo persists a video record's state and the owning
	// task's aggregate counters in one atomic write, so readers never see
	// a succeeded count without the record that produced it.
	CheckpointVideo(task *model.Task, v *model.VideoRecord) error

	Close() error
}
