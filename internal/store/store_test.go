package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vidscribe/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func newTask(id string, createdAt time.Time) *model.Task {
	return &model.Task{
		ID:        id,
		TargetURL: "https://example.com/@creator",
		MaxVideos: 10,
		Language:  "zh",
		Status:    model.TaskPending,
		CreatedAt: createdAt,
	}
}

func TestTaskRoundtrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
			task := newTask("t1", created)
			task.Owner = "alice"
			task.WhisperModel = "small"
			if err := s.CreateTask(task); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := s.GetTask("t1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.TargetURL != task.TargetURL || got.Owner != "alice" || got.Status != model.TaskPending {
				t.Fatalf("roundtrip mismatch: %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Fatalf("created_at mismatch: %v", got.CreatedAt)
			}
			if !got.StartedAt.IsZero() {
				t.Fatalf("expected zero started_at, got %v", got.StartedAt)
			}

			if _, err := s.GetTask("missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestClaimNextPending_FIFO(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
			for i, id := range []string{"t1", "t2", "t3"} {
				if err := s.CreateTask(newTask(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("create %s: %v", id, err)
				}
			}

			for _, want := range []string{"t1", "t2", "t3"} {
				task, err := s.ClaimNextPending()
				if err != nil {
					t.Fatalf("claim: %v", err)
				}
				if task == nil || task.ID != want {
					t.Fatalf("expected claim of %s, got %+v", want, task)
				}
				if task.Status != model.TaskRunning {
					t.Fatalf("claimed task not running: %s", task.Status)
				}
				if task.StartedAt.IsZero() {
					t.Fatalf("claimed task missing started_at")
				}
			}

			task, err := s.ClaimNextPending()
			if err != nil {
				t.Fatalf("claim empty: %v", err)
			}
			if task != nil {
				t.Fatalf("expected no claimable task, got %s", task.ID)
			}
		})
	}
}

func TestRequestCancel_PendingFinalizesImmediately(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateTask(newTask("t1", time.Now().UTC())); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.RequestCancel("t1"); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			got, err := s.GetTask("t1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != model.TaskCancelled || got.Reason != model.ReasonCancelled {
				t.Fatalf("expected cancelled/cancelled, got %s/%s", got.Status, got.Reason)
			}
			if got.CompletedAt.IsZero() {
				t.Fatalf("expected completed_at set")
			}
		})
	}
}

func TestRequestCancel_RunningSetsCooperativeFlag(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateTask(newTask("t1", time.Now().UTC())); err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := s.ClaimNextPending(); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if err := s.RequestCancel("t1"); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			flagged, err := s.CancelRequested("t1")
			if err != nil {
				t.Fatalf("flag: %v", err)
			}
			if !flagged {
				t.Fatalf("expected cancel flag for running task")
			}
			got, _ := s.GetTask("t1")
			if got.Status != model.TaskRunning {
				t.Fatalf("running task must not be force-cancelled by the store, got %s", got.Status)
			}
		})
	}
}

func TestClaimNextPending_SkipsCancelRequestedPending(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			if err := s.CreateTask(newTask("t1", base)); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.CreateTask(newTask("t2", base.Add(time.Minute))); err != nil {
				t.Fatalf("create: %v", err)
			}
			// Claim and cancel t1 while running, then requeue it so it is
			// pending with a stale cancel flag.
			if _, err := s.ClaimNextPending(); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if err := s.RequestCancel("t1"); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if _, err := s.RequeueStaleRunning(); err != nil {
				t.Fatalf("requeue: %v", err)
			}

			task, err := s.ClaimNextPending()
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if task == nil || task.ID != "t2" {
				t.Fatalf("expected t2 claimed, got %+v", task)
			}

			got, _ := s.GetTask("t1")
			if got.Status != model.TaskCancelled {
				t.Fatalf("expected cancel-requested pending task finalized, got %s", got.Status)
			}
		})
	}
}

func TestRequeueStaleRunning(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateTask(newTask("t1", time.Now().UTC())); err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := s.ClaimNextPending(); err != nil {
				t.Fatalf("claim: %v", err)
			}

			n, err := s.RequeueStaleRunning()
			if err != nil {
				t.Fatalf("requeue: %v", err)
			}
			if n != 1 {
				t.Fatalf("expected 1 requeued task, got %d", n)
			}
			got, _ := s.GetTask("t1")
			if got.Status != model.TaskPending {
				t.Fatalf("expected pending after requeue, got %s", got.Status)
			}
		})
	}
}

func TestVideoRoundtripAndDiscoveryOrder(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateTask(newTask("t1", time.Now().UTC())); err != nil {
				t.Fatalf("create task: %v", err)
			}
			base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
			for i, id := range []string{"v3", "v1", "v2"} {
				v := &model.VideoRecord{
					TaskID:       "t1",
					VideoID:      id,
					SourceURL:    "https://example.com/video/" + id,
					Title:        "video " + id,
					Status:       model.VideoQueued,
					DiscoveredAt: base.Add(time.Duration(i) * time.Second),
				}
				v.RecordAttempt(1, "transient", "timed out", base.Add(time.Minute))
				if err := s.UpsertVideo(v); err != nil {
					t.Fatalf("upsert %s: %v", id, err)
				}
			}

			videos, err := s.ListVideos("t1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(videos) != 3 {
				t.Fatalf("expected 3 videos, got %d", len(videos))
			}
			// discovery order, not lexical order
			if videos[0].VideoID != "v3" || videos[1].VideoID != "v1" || videos[2].VideoID != "v2" {
				t.Fatalf("discovery order broken: %s %s %s", videos[0].VideoID, videos[1].VideoID, videos[2].VideoID)
			}
			if len(videos[0].RetryErrors) != 1 || videos[0].RetryErrors[0].Kind != "transient" {
				t.Fatalf("retry errors did not roundtrip: %+v", videos[0].RetryErrors)
			}

			// upsert of an existing id must not duplicate
			update := videos[1]
			update.Status = model.VideoDone
			update.Transcript = "hello"
			update.CompletedAt = base.Add(time.Hour)
			if err := s.UpsertVideo(&update); err != nil {
				t.Fatalf("update: %v", err)
			}
			videos, _ = s.ListVideos("t1")
			if len(videos) != 3 {
				t.Fatalf("upsert duplicated a record: %d", len(videos))
			}
			got, err := s.GetVideo("t1", "v1")
			if err != nil {
				t.Fatalf("get video: %v", err)
			}
			if got.Status != model.VideoDone || got.Transcript != "hello" {
				t.Fatalf("update lost: %+v", got)
			}
		})
	}
}

func TestCheckpointVideo_UpdatesBothAtomically(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			task := newTask("t1", time.Now().UTC())
			if err := s.CreateTask(task); err != nil {
				t.Fatalf("create: %v", err)
			}

			task.Status = model.TaskRunning
			task.TotalDiscovered = 2
			task.Processed = 1
			task.Succeeded = 1
			task.UpdatedAt = time.Now().UTC()
			v := &model.VideoRecord{
				TaskID:       "t1",
				VideoID:      "v1",
				Status:       model.VideoDone,
				Transcript:   "transcript text",
				DiscoveredAt: time.Now().UTC(),
				CompletedAt:  time.Now().UTC(),
			}
			if err := s.CheckpointVideo(task, v); err != nil {
				t.Fatalf("checkpoint: %v", err)
			}

			gotTask, _ := s.GetTask("t1")
			if gotTask.Processed != 1 || gotTask.Succeeded != 1 {
				t.Fatalf("counters not persisted: %+v", gotTask)
			}
			if !gotTask.CountersConsistent() {
				t.Fatalf("torn counters after checkpoint")
			}
			gotVideo, err := s.GetVideo("t1", "v1")
			if err != nil {
				t.Fatalf("get video: %v", err)
			}
			if gotVideo.Status != model.VideoDone || gotVideo.Transcript != "transcript text" {
				t.Fatalf("video not persisted: %+v", gotVideo)
			}
		})
	}
}
