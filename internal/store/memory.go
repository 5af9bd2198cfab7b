package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"vidscribe/internal/model"
)

// Memory is an in-memory Store used by tests and dry runs. It keeps the
// same single-writer and atomic-checkpoint semantics as the SQLite store.
type Memory struct {
	mu              sync.Mutex
	tasks           map[string]*model.Task
	cancelRequested map[string]bool
	videos          map[string]map[string]*model.VideoRecord
	videoOrder      map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		tasks:           make(map[string]*model.Task),
		cancelRequested: make(map[string]bool),
		videos:          make(map[string]map[string]*model.VideoRecord),
		videoOrder:      make(map[string][]string),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateTask(task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return fmt.Errorf("create task %s: already exists", task.ID)
	}
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *Memory) UpdateTask(task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("update task %s: %w", task.ID, ErrNotFound)
	}
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *Memory) GetTask(id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	clone := *task
	return &clone, nil
}

func (m *Memory) ListTasks() ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (m *Memory) ClaimNextPending() (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		var oldest *model.Task
		for _, t := range m.tasks {
			if t.Status != model.TaskPending {
				continue
			}
			if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) ||
				(t.CreatedAt.Equal(oldest.CreatedAt) && t.ID < oldest.ID) {
				oldest = t
			}
		}
		if oldest == nil {
			return nil, nil
		}

		now := time.Now().UTC()
		if m.cancelRequested[oldest.ID] {
			oldest.Status = model.TaskCancelled
			oldest.Reason = model.ReasonCancelled
			oldest.UpdatedAt = now
			oldest.CompletedAt = now
			continue
		}

		oldest.Status = model.TaskRunning
		oldest.StartedAt = now
		oldest.UpdatedAt = now
		clone := *oldest
		return &clone, nil
	}
}

func (m *Memory) RequeueStaleRunning() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == model.TaskRunning {
			t.Status = model.TaskPending
			t.CurrentStage = ""
			t.LastError = "previous worker interrupted while this task was running"
			t.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *Memory) RequestCancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("cancel task %s: %w", id, ErrNotFound)
	}
	now := time.Now().UTC()
	if task.Status == model.TaskPending {
		task.Status = model.TaskCancelled
		task.Reason = model.ReasonCancelled
		task.UpdatedAt = now
		task.CompletedAt = now
		return nil
	}
	m.cancelRequested[id] = true
	task.UpdatedAt = now
	return nil
}

func (m *Memory) CancelRequested(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return m.cancelRequested[id], nil
}

func (m *Memory) UpsertVideo(v *model.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertVideoLocked(v)
	return nil
}

func (m *Memory) upsertVideoLocked(v *model.VideoRecord) {
	byID, ok := m.videos[v.TaskID]
	if !ok {
		byID = make(map[string]*model.VideoRecord)
		m.videos[v.TaskID] = byID
	}
	if _, exists := byID[v.VideoID]; !exists {
		m.videoOrder[v.TaskID] = append(m.videoOrder[v.TaskID], v.VideoID)
	}
	clone := *v
	clone.RetryErrors = append([]model.AttemptError(nil), v.RetryErrors...)
	byID[v.VideoID] = &clone
}

func (m *Memory) GetVideo(taskID, videoID string) (*model.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[taskID][videoID]
	if !ok {
		return nil, fmt.Errorf("video %s/%s: %w", taskID, videoID, ErrNotFound)
	}
	clone := *v
	clone.RetryErrors = append([]model.AttemptError(nil), v.RetryErrors...)
	return &clone, nil
}

func (m *Memory) ListVideos(taskID string) ([]model.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := m.videoOrder[taskID]
	videos := make([]model.VideoRecord, 0, len(order))
	for _, id := range order {
		v := m.videos[taskID][id]
		clone := *v
		clone.RetryErrors = append([]model.AttemptError(nil), v.RetryErrors...)
		videos = append(videos, clone)
	}
	return videos, nil
}

func (m *Memory) CheckpointVideo(task *model.Task, v *model.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[task.ID]
	if !ok {
		return fmt.Errorf("checkpoint task %s: %w", task.ID, ErrNotFound)
	}
	m.upsertVideoLocked(v)
	clone := *task
	clone.CreatedAt = stored.CreatedAt
	m.tasks[task.ID] = &clone
	return nil
}
