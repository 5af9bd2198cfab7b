// Package pipeline drives one task end to end: enumerate the creator's
// feed, then download and transcribe each discovered video, checkpointing
// durable state after every video so a crash loses at most one in-flight
// video.
package pipeline

import (
	"context"
	"errors"
	"time"

	"vidscribe/internal/export"
	"vidscribe/internal/feed"
	"vidscribe/internal/logging"
	"vidscribe/internal/media"
	"vidscribe/internal/model"
	"vidscribe/internal/retry"
	"vidscribe/internal/stage"
	"vidscribe/internal/store"
	"vidscribe/internal/transcribe"
)

// Collaborators are the external boundaries the pipeline drives. All three
// classify their own errors.
type Collaborators struct {
	Enumerator  feed.Enumerator
	Acquirer    media.Acquirer
	Transcriber transcribe.Transcriber
}

type Pipeline struct {
	store      store.Store
	collab     Collaborators
	policy     retry.Policy
	log        *logging.Logger
	resultsDir string
}

func New(st store.Store, collab Collaborators, policy retry.Policy, log *logging.Logger, resultsDir string) *Pipeline {
	return &Pipeline{
		store:      st,
		collab:     collab,
		policy:     policy,
		log:        log,
		resultsDir: resultsDir,
	}
}

// Run executes one claimed task to a terminal status. It returns an error
// only for store failures; per-video and collaborator failures end up in
// task state, not in the return value.
func (p *Pipeline) Run(ctx context.Context, task *model.Task) error {
	task.CurrentStage = model.StageEnumerating
	task.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateTask(task); err != nil {
		return err
	}
	p.log.Info("task %s: enumerating %s (limit %d)", task.ID, task.TargetURL, task.MaxVideos)

	res := stage.Run(ctx, p.policy, taskRecorder{task}, func(ctx context.Context) ([]feed.Entry, error) {
		return p.collab.Enumerator.Enumerate(ctx, task.TargetURL, task.MaxVideos)
	})
	switch res.Outcome {
	case stage.Canceled:
		return p.finalizeCancelled(ctx, task)
	case stage.Exhausted:
		// The feed could not be reached for the whole retry budget: the
		// task never even started, which operators treat differently
		// from a mid-run failure.
		return p.failTask(task, model.ReasonResourceUnavailable, res.Err)
	case stage.Fatal:
		return p.failTask(task, model.ReasonEnumerationFailed, res.Err)
	}

	records, err := p.mergeDiscovered(task, res.Value)
	if err != nil {
		return err
	}
	p.log.Info("task %s: %d videos discovered, %d already terminal", task.ID, task.TotalDiscovered, task.Processed)

	for i := range records {
		rec := &records[i]
		if model.IsTerminalVideoStatus(rec.Status) {
			continue
		}
		stop, err := p.cancellationRequested(ctx, task.ID)
		if err != nil {
			return err
		}
		if stop {
			return p.finalizeCancelled(ctx, task)
		}

		cancelled, err := p.processVideo(ctx, task, rec)
		if err != nil {
			return err
		}
		if cancelled {
			return p.finalizeCancelled(ctx, task)
		}
	}

	return p.finalizeCompleted(task)
}

// taskRecorder surfaces enumeration attempts on the task itself; there is
// no video record yet to carry them.
type taskRecorder struct {
	task *model.Task
}

func (r taskRecorder) RecordAttempt(attempt int, kind, message string, at time.Time) {
	r.task.LastError = message
	r.task.UpdatedAt = at
}

// mergeDiscovered persists newly discovered videos, deduplicated by video
// id against records that already exist for this task, so re-running
// enumeration after a restart never creates duplicates. Records left in a
// non-terminal active stage by an interrupted run are re-queued.
func (p *Pipeline) mergeDiscovered(task *model.Task, entries []feed.Entry) ([]model.VideoRecord, error) {
	existing, err := p.store.ListVideos(task.ID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for i := range existing {
		rec := &existing[i]
		known[rec.VideoID] = true
		if rec.Status == model.VideoDownloading || rec.Status == model.VideoTranscribing {
			if err := model.TransitionVideo(rec, model.VideoQueued); err != nil {
				return nil, err
			}
			if err := p.store.UpsertVideo(rec); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if known[e.VideoID] {
			continue
		}
		rec := model.VideoRecord{
			TaskID:       task.ID,
			VideoID:      e.VideoID,
			SourceURL:    e.SourceURL,
			Title:        e.Title,
			Status:       model.VideoQueued,
			DiscoveredAt: now,
		}
		if err := p.store.UpsertVideo(&rec); err != nil {
			return nil, err
		}
	}

	records, err := p.store.ListVideos(task.ID)
	if err != nil {
		return nil, err
	}

	processed, succeeded, failed := 0, 0, 0
	for _, rec := range records {
		switch rec.Status {
		case model.VideoDone:
			processed++
			succeeded++
		case model.VideoFailed:
			processed++
			failed++
		}
	}
	task.TotalDiscovered = len(records)
	task.CurrentStage = model.StageProcessing
	task.LastError = ""
	task.UpdateProgress(processed, succeeded, failed, now)
	if err := p.store.UpdateTask(task); err != nil {
		return nil, err
	}
	return records, nil
}

// processVideo runs the download and transcription stages for one record
// and checkpoints its terminal outcome. It reports cancelled=true when a
// stage observed cancellation, leaving the record re-queueable.
func (p *Pipeline) processVideo(ctx context.Context, task *model.Task, rec *model.VideoRecord) (bool, error) {
	if err := model.TransitionVideo(rec, model.VideoDownloading); err != nil {
		return false, err
	}
	if err := p.store.UpsertVideo(rec); err != nil {
		return false, err
	}

	download := stage.Run(ctx, p.policy, rec, func(ctx context.Context) (string, error) {
		return p.collab.Acquirer.Acquire(ctx, rec.SourceURL, rec.VideoID)
	})
	switch download.Outcome {
	case stage.Canceled:
		return true, p.store.UpsertVideo(rec)
	case stage.Exhausted, stage.Fatal:
		p.log.Warn("task %s: video %s download failed after %d attempt(s): %v",
			task.ID, rec.VideoID, download.Attempts, download.Err)
		return false, p.checkpointFailed(task, rec)
	}
	rec.AudioPath = download.Value

	if err := model.TransitionVideo(rec, model.VideoTranscribing); err != nil {
		return false, err
	}
	if err := p.store.UpsertVideo(rec); err != nil {
		return false, err
	}

	transcription := stage.Run(ctx, p.policy, rec, func(ctx context.Context) (string, error) {
		return p.collab.Transcriber.Transcribe(ctx, rec.AudioPath, transcribe.Options{
			Model:    task.WhisperModel,
			Language: task.Language,
		})
	})
	switch transcription.Outcome {
	case stage.Canceled:
		return true, p.store.UpsertVideo(rec)
	case stage.Exhausted, stage.Fatal:
		p.log.Warn("task %s: video %s transcription failed after %d attempt(s): %v",
			task.ID, rec.VideoID, transcription.Attempts, transcription.Err)
		return false, p.checkpointFailed(task, rec)
	}

	rec.Transcript = transcription.Value
	if err := model.TransitionVideo(rec, model.VideoDone); err != nil {
		return false, err
	}
	rec.CompletedAt = time.Now().UTC()
	task.UpdateProgress(task.Processed+1, task.Succeeded+1, task.Failed, rec.CompletedAt)
	p.log.Success("task %s: video %s done (%d/%d)", task.ID, rec.VideoID, task.Processed, task.TotalDiscovered)
	return false, p.store.CheckpointVideo(task, rec)
}

func (p *Pipeline) checkpointFailed(task *model.Task, rec *model.VideoRecord) error {
	if err := model.TransitionVideo(rec, model.VideoFailed); err != nil {
		return err
	}
	rec.CompletedAt = time.Now().UTC()
	task.UpdateProgress(task.Processed+1, task.Succeeded, task.Failed+1, rec.CompletedAt)
	return p.store.CheckpointVideo(task, rec)
}

// cancellationRequested is the cooperative cancellation point between
// videos: the context covers scheduler-driven cancellation and timeouts,
// the store flag covers requests from other processes.
func (p *Pipeline) cancellationRequested(ctx context.Context, taskID string) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	flagged, err := p.store.CancelRequested(taskID)
	if err != nil {
		return false, err
	}
	return flagged, nil
}

func (p *Pipeline) finalizeCancelled(ctx context.Context, task *model.Task) error {
	reason := model.ReasonCancelled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = model.ReasonTimeout
	}
	if err := model.TransitionTask(task, model.TaskCancelled, reason); err != nil {
		return err
	}
	now := time.Now().UTC()
	task.UpdatedAt = now
	task.CompletedAt = now
	p.log.Warn("task %s: cancelled (%s) after %d/%d videos", task.ID, reason, task.Processed, task.TotalDiscovered)
	return p.store.UpdateTask(task)
}

func (p *Pipeline) failTask(task *model.Task, reason string, cause error) error {
	if err := model.TransitionTask(task, model.TaskFailed, reason); err != nil {
		return err
	}
	if cause != nil {
		task.LastError = cause.Error()
	}
	now := time.Now().UTC()
	task.UpdatedAt = now
	task.CompletedAt = now
	p.log.Error("task %s: failed (%s): %v", task.ID, reason, cause)
	return p.store.UpdateTask(task)
}

// finalizeCompleted writes the result export and marks the task completed.
// Partial failure is not task failure: a task whose enumeration succeeded
// completes even if every video failed.
func (p *Pipeline) finalizeCompleted(task *model.Task) error {
	task.CurrentStage = model.StageFinalizing
	task.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateTask(task); err != nil {
		return err
	}

	videos, err := p.store.ListVideos(task.ID)
	if err != nil {
		return err
	}
	if p.resultsDir != "" {
		name, err := export.WriteResults(p.resultsDir, task, videos)
		if err != nil {
			p.log.Warn("task %s: result export failed: %v", task.ID, err)
		} else {
			task.ResultFile = name
		}
	}

	if err := model.TransitionTask(task, model.TaskCompleted, ""); err != nil {
		return err
	}
	now := time.Now().UTC()
	task.CurrentStage = ""
	task.UpdatedAt = now
	task.CompletedAt = now
	p.log.Success("task %s: completed, %d succeeded / %d failed of %d",
		task.ID, task.Succeeded, task.Failed, task.TotalDiscovered)
	return p.store.UpdateTask(task)
}
