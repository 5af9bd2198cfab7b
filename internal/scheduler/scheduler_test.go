package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/model"
	"vidscribe/internal/store"
)

// fakeRunner stands in for the pipeline: it tracks concurrency, optionally
// blocks, and finalizes the task the way the real pipeline would.
type fakeRunner struct {
	st    store.Store
	block chan struct{} // when non-nil, Run waits for close or ctx

	mu         sync.Mutex
	running    int
	maxRunning int
	ran        []string
}

func (r *fakeRunner) Run(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	r.running++
	if r.running > r.maxRunning {
		r.maxRunning = r.running
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running--
		r.ran = append(r.ran, task.ID)
		r.mu.Unlock()
	}()

	interrupted := false
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			interrupted = true
		}
	}

	to := model.TaskCompleted
	reason := ""
	if interrupted {
		to = model.TaskCancelled
		reason = model.ReasonCancelled
	}
	if err := model.TransitionTask(task, to, reason); err != nil {
		return err
	}
	task.CompletedAt = time.Now().UTC()
	return r.st.UpdateTask(task)
}

func testOptions() Options {
	return Options{
		Workers:      2,
		TaskTimeout:  time.Minute,
		PollInterval: 5 * time.Millisecond,
		MaxVideos:    50,
		Language:     "zh",
		WhisperModel: "small",
	}
}

func waitForStatus(t *testing.T, st store.Store, id string, want string) *model.Task {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err := st.GetTask(id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(2 * time.Millisecond)
	}
	task, _ := st.GetTask(id)
	t.Fatalf("task %s never reached %s, last status %s", id, want, task.Status)
	return nil
}

func TestSubmitAppliesDefaults(t *testing.T) {
	st := store.NewMemory()
	s := New(st, &fakeRunner{st: st}, logging.Discard(), testOptions())

	task, err := s.Submit(SubmitRequest{TargetURL: "https://example.test/@creator"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("no task id assigned")
	}
	if task.Status != model.TaskPending {
		t.Fatalf("status = %s, want %s", task.Status, model.TaskPending)
	}
	if task.MaxVideos != 50 || task.Language != "zh" || task.WhisperModel != "small" {
		t.Fatalf("defaults not applied: %+v", task)
	}

	stored, err := st.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.TargetURL != task.TargetURL {
		t.Fatalf("stored target = %q", stored.TargetURL)
	}
}

func TestSubmitRejectsEmptyTarget(t *testing.T) {
	st := store.NewMemory()
	s := New(st, &fakeRunner{st: st}, logging.Discard(), testOptions())
	if _, err := s.Submit(SubmitRequest{TargetURL: "   "}); err == nil {
		t.Fatalf("expected error for empty target")
	}
}

func TestRunBoundsConcurrencyAndDrainsQueue(t *testing.T) {
	st := store.NewMemory()
	runner := &fakeRunner{st: st, block: make(chan struct{})}
	s := New(st, runner, logging.Discard(), testOptions())

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		task, err := s.Submit(SubmitRequest{TargetURL: "https://example.test/@creator"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, task.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	// Both workers should be occupied while every runner is blocked.
	deadline := time.Now().Add(3 * time.Second)
	for {
		runner.mu.Lock()
		n := runner.running
		runner.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workers never reached expected concurrency, running=%d", n)
		}
		time.Sleep(2 * time.Millisecond)
	}

	close(runner.block)
	for _, id := range ids {
		waitForStatus(t, st, id, model.TaskCompleted)
	}

	runner.mu.Lock()
	maxRunning, total := runner.maxRunning, len(runner.ran)
	runner.mu.Unlock()
	if maxRunning > 2 {
		t.Fatalf("concurrency exceeded limit: %d", maxRunning)
	}
	if total != 5 {
		t.Fatalf("ran %d tasks, want 5", total)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("scheduler did not stop after context cancel")
	}
}

func TestCancelStopsRunningTask(t *testing.T) {
	st := store.NewMemory()
	runner := &fakeRunner{st: st, block: make(chan struct{})}
	s := New(st, runner, logging.Discard(), testOptions())

	task, err := s.Submit(SubmitRequest{TargetURL: "https://example.test/@creator"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitForStatus(t, st, task.ID, model.TaskRunning)
	if err := s.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got := waitForStatus(t, st, task.ID, model.TaskCancelled)
	if got.Reason != model.ReasonCancelled {
		t.Fatalf("reason = %q, want %q", got.Reason, model.ReasonCancelled)
	}
}

func TestCancelPendingTaskFinalizesWithoutRunning(t *testing.T) {
	st := store.NewMemory()
	runner := &fakeRunner{st: st}
	s := New(st, runner, logging.Discard(), testOptions())

	task, err := s.Submit(SubmitRequest{TargetURL: "https://example.test/@creator"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := st.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.TaskCancelled {
		t.Fatalf("status = %s, want %s", got.Status, model.TaskCancelled)
	}

	runner.mu.Lock()
	ran := len(runner.ran)
	runner.mu.Unlock()
	if ran != 0 {
		t.Fatalf("cancelled pending task was run")
	}
}

func TestRunRequeuesStaleRunningTasks(t *testing.T) {
	st := store.NewMemory()
	now := time.Now().UTC()
	stale := &model.Task{
		ID:        "stale-1",
		TargetURL: "https://example.test/@creator",
		Status:    model.TaskRunning,
		CreatedAt: now.Add(-time.Hour),
		StartedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	if err := st.CreateTask(stale); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	runner := &fakeRunner{st: st}
	s := New(st, runner, logging.Discard(), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitForStatus(t, st, stale.ID, model.TaskCompleted)
}
