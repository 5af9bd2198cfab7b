// Package scheduler owns task admission and the worker pool. Tasks are
// accepted immediately as pending and claimed in submission order by a
// bounded number of workers; everything beyond the limit simply waits in
// the store.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidscribe/internal/logging"
	"vidscribe/internal/model"
	"vidscribe/internal/store"
)

// TaskRunner executes one claimed task to a terminal status.
type TaskRunner interface {
	Run(ctx context.Context, task *model.Task) error
}

type Options struct {
	Workers      int           // concurrent tasks, default 3
	TaskTimeout  time.Duration // per-task wall clock budget, default 1h
	PollInterval time.Duration // idle claim retry interval, default 2s
	MaxVideos    int           // default per-task video limit
	Language     string        // default transcription language
	WhisperModel string        // default transcription model
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = time.Hour
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

type Scheduler struct {
	store  store.Store
	runner TaskRunner
	log    *logging.Logger
	opts   Options

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func New(st store.Store, runner TaskRunner, log *logging.Logger, opts Options) *Scheduler {
	return &Scheduler{
		store:  st,
		runner: runner,
		log:    log,
		opts:   opts.withDefaults(),
		active: make(map[string]context.CancelFunc),
	}
}

// SubmitRequest carries the caller's task parameters. Zero values fall
// back to the scheduler's configured defaults.
type SubmitRequest struct {
	TargetURL    string
	Owner        string
	MaxVideos    int
	Language     string
	WhisperModel string
}

// Submit records a new pending task and returns it. Admission never
// blocks on worker availability.
func (s *Scheduler) Submit(req SubmitRequest) (*model.Task, error) {
	if strings.TrimSpace(req.TargetURL) == "" {
		return nil, errors.New("submit: target url is required")
	}
	if req.MaxVideos <= 0 {
		req.MaxVideos = s.opts.MaxVideos
	}
	if req.Language == "" {
		req.Language = s.opts.Language
	}
	if req.WhisperModel == "" {
		req.WhisperModel = s.opts.WhisperModel
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:           uuid.NewString(),
		Owner:        req.Owner,
		TargetURL:    req.TargetURL,
		MaxVideos:    req.MaxVideos,
		Language:     req.Language,
		WhisperModel: req.WhisperModel,
		Status:       model.TaskPending,
		CurrentStage: model.StageInitializing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateTask(task); err != nil {
		return nil, err
	}
	s.log.Info("task %s: submitted for %s", task.ID, task.TargetURL)
	return task, nil
}

// Cancel requests cancellation of a task. Pending tasks are finalized
// immediately; a task running in this process also gets its context
// cancelled so it stops without waiting for the next video boundary
// check in another process.
func (s *Scheduler) Cancel(taskID string) error {
	if err := s.store.RequestCancel(taskID); err != nil {
		return err
	}
	s.mu.Lock()
	cancel, ok := s.active[taskID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Snapshot returns the current durable state of a task.
func (s *Scheduler) Snapshot(taskID string) (*model.Task, error) {
	return s.store.GetTask(taskID)
}

func (s *Scheduler) List() ([]model.Task, error) {
	return s.store.ListTasks()
}

// Run recovers tasks stranded running by a previous worker, then serves
// the queue with the configured number of workers until ctx is cancelled.
// It returns once all in-flight tasks have reached a terminal status or
// been returned to the queue.
func (s *Scheduler) Run(ctx context.Context) error {
	requeued, err := s.store.RequeueStaleRunning()
	if err != nil {
		return err
	}
	if requeued > 0 {
		s.log.Warn("re-queued %d task(s) stranded by a previous worker", requeued)
	}

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.workerLoop(ctx, worker)
		}(i + 1)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) workerLoop(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := s.store.ClaimNextPending()
		if err != nil {
			s.log.Error("worker %d: claim failed: %v", worker, err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		if task == nil {
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		s.log.Debug("worker %d: claimed task %s", worker, task.ID)
		s.runTask(ctx, task)
	}
}

func (s *Scheduler) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.opts.PollInterval):
		return true
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *model.Task) {
	taskCtx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
	s.mu.Lock()
	s.active[task.ID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, task.ID)
		s.mu.Unlock()
		cancel()
	}()

	if err := s.runner.Run(taskCtx, task); err != nil {
		// Only store failures surface here; the task may be stranded
		// running and will be re-queued on the next worker start.
		s.log.Error("task %s: aborted: %v", task.ID, err)
	}
}
