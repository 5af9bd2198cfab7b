package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vidscribe/internal/model"
)

// SQLite is the production Store backed by a single SQLite database file in
// WAL mode.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	schema := `
create table if not exists tasks (
	id text primary key,
	owner text not null default '',
	target_url text not null,
	max_videos integer not null default 0,
	language text not null default '',
	whisper_model text not null default '',
	status text not null default 'pending',
	reason text not null default '',
	current_stage text not null default '',
	total_discovered integer not null default 0,
	processed integer not null default 0,
	succeeded integer not null default 0,
	failed integer not null default 0,
	progress integer not null default 0,
	estimated_remaining integer not null default 0,
	result_file text not null default '',
	last_error text not null default '',
	cancel_requested integer not null default 0,
	created_at datetime not null,
	started_at datetime,
	updated_at datetime,
	completed_at datetime
);
create index if not exists idx_tasks_status_created on tasks(status, created_at);

create table if not exists videos (
	task_id text not null,
	video_id text not null,
	source_url text not null default '',
	title text not null default '',
	status text not null default 'queued',
	retry_count integer not null default 0,
	retry_errors text not null default '[]',
	transcript text not null default '',
	audio_path text not null default '',
	error_kind text not null default '',
	error_message text not null default '',
	discovered_at datetime not null,
	last_attempt_at datetime,
	completed_at datetime,
	primary key (task_id, video_id)
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

const taskColumns = `id, owner, target_url, max_videos, language, whisper_model,
	status, reason, current_stage,
	total_discovered, processed, succeeded, failed, progress, estimated_remaining,
	result_file, last_error, created_at, started_at, updated_at, completed_at`

func (s *SQLite) CreateTask(task *model.Task) error {
	_, err := s.db.Exec(`insert into tasks (`+taskColumns+`) values
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		task.ID, task.Owner, task.TargetURL, task.MaxVideos, task.Language, task.WhisperModel,
		task.Status, task.Reason, task.CurrentStage,
		task.TotalDiscovered, task.Processed, task.Succeeded, task.Failed, task.Progress, task.EstimatedRemaining,
		task.ResultFile, task.LastError,
		task.CreatedAt, nullTime(task.StartedAt), nullTime(task.UpdatedAt), nullTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateTask(task *model.Task) error {
	res, err := s.db.Exec(`update tasks set
		owner=?, target_url=?, max_videos=?, language=?, whisper_model=?,
		status=?, reason=?, current_stage=?,
		total_discovered=?, processed=?, succeeded=?, failed=?, progress=?, estimated_remaining=?,
		result_file=?, last_error=?, started_at=?, updated_at=?, completed_at=?
		where id=?`,
		task.Owner, task.TargetURL, task.MaxVideos, task.Language, task.WhisperModel,
		task.Status, task.Reason, task.CurrentStage,
		task.TotalDiscovered, task.Processed, task.Succeeded, task.Failed, task.Progress, task.EstimatedRemaining,
		task.ResultFile, task.LastError,
		nullTime(task.StartedAt), nullTime(task.UpdatedAt), nullTime(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) GetTask(id string) (*model.Task, error) {
	row := s.db.QueryRow(`select `+taskColumns+` from tasks where id=?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

func (s *SQLite) ListTasks() ([]model.Task, error) {
	rows, err := s.db.Query(`select ` + taskColumns + ` from tasks order by created_at asc`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (s *SQLite) ClaimNextPending() (*model.Task, error) {
	for {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}

		row := tx.QueryRow(`select ` + taskColumns + `, cancel_requested from tasks
			where status='pending' order by created_at asc limit 1`)
		task, cancelRequested, err := scanTaskWithCancel(row)
		if err == sql.ErrNoRows {
			_ = tx.Rollback()
			return nil, nil
		}
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("claim task: %w", err)
		}

		now := time.Now().UTC()
		if cancelRequested {
			if _, err := tx.Exec(`update tasks set status=?, reason=?, updated_at=?, completed_at=? where id=?`,
				model.TaskCancelled, model.ReasonCancelled, now, now, task.ID); err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("cancel pending task %s: %w", task.ID, err)
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("cancel pending task %s: %w", task.ID, err)
			}
			continue
		}

		if _, err := tx.Exec(`update tasks set status=?, started_at=?, updated_at=? where id=?`,
			model.TaskRunning, now, now, task.ID); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
		}

		task.Status = model.TaskRunning
		task.StartedAt = now
		task.UpdatedAt = now
		return task, nil
	}
}

func (s *SQLite) RequeueStaleRunning() (int, error) {
	res, err := s.db.Exec(`update tasks set status=?, current_stage='', updated_at=?,
		last_error='previous worker interrupted while this task was running'
		where status=?`,
		model.TaskPending, time.Now().UTC(), model.TaskRunning)
	if err != nil {
		return 0, fmt.Errorf("requeue stale running tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLite) RequestCancel(id string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`update tasks set status=?, reason=?, updated_at=?, completed_at=?
		where id=? and status='pending'`,
		model.TaskCancelled, model.ReasonCancelled, now, now, id)
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	res, err = s.db.Exec(`update tasks set cancel_requested=1, updated_at=? where id=?`, now, id)
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cancel task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) CancelRequested(id string) (bool, error) {
	var flag int
	err := s.db.QueryRow(`select cancel_requested from tasks where id=?`, id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("cancel flag for task %s: %w", id, err)
	}
	return flag != 0, nil
}

const videoColumns = `task_id, video_id, source_url, title, status,
	retry_count, retry_errors, transcript, audio_path, error_kind, error_message,
	discovered_at, last_attempt_at, completed_at`

func (s *SQLite) UpsertVideo(v *model.VideoRecord) error {
	return upsertVideo(s.db, v)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertVideo(db execer, v *model.VideoRecord) error {
	history, err := json.Marshal(v.RetryErrors)
	if err != nil {
		return fmt.Errorf("marshal retry errors for %s/%s: %w", v.TaskID, v.VideoID, err)
	}
	_, err = db.Exec(`insert into videos (`+videoColumns+`) values (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		on conflict(task_id, video_id) do update set
		source_url=excluded.source_url, title=excluded.title, status=excluded.status,
		retry_count=excluded.retry_count, retry_errors=excluded.retry_errors,
		transcript=excluded.transcript, audio_path=excluded.audio_path,
		error_kind=excluded.error_kind, error_message=excluded.error_message,
		last_attempt_at=excluded.last_attempt_at, completed_at=excluded.completed_at`,
		v.TaskID, v.VideoID, v.SourceURL, v.Title, v.Status,
		v.RetryCount, string(history), v.Transcript, v.AudioPath, v.ErrorKind, v.ErrorMessage,
		v.DiscoveredAt, nullTime(v.LastAttemptAt), nullTime(v.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert video %s/%s: %w", v.TaskID, v.VideoID, err)
	}
	return nil
}

func (s *SQLite) GetVideo(taskID, videoID string) (*model.VideoRecord, error) {
	row := s.db.QueryRow(`select `+videoColumns+` from videos where task_id=? and video_id=?`, taskID, videoID)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video %s/%s: %w", taskID, videoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s/%s: %w", taskID, videoID, err)
	}
	return v, nil
}

func (s *SQLite) ListVideos(taskID string) ([]model.VideoRecord, error) {
	rows, err := s.db.Query(`select `+videoColumns+` from videos where task_id=? order by discovered_at asc, rowid asc`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list videos for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var videos []model.VideoRecord
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("list videos for task %s: %w", taskID, err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func (s *SQLite) CheckpointVideo(task *model.Task, v *model.VideoRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("checkpoint %s/%s: %w", v.TaskID, v.VideoID, err)
	}
	if err := upsertVideo(tx, v); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`update tasks set
		status=?, reason=?, current_stage=?,
		total_discovered=?, processed=?, succeeded=?, failed=?, progress=?, estimated_remaining=?,
		last_error=?, updated_at=? where id=?`,
		task.Status, task.Reason, task.CurrentStage,
		task.TotalDiscovered, task.Processed, task.Succeeded, task.Failed, task.Progress, task.EstimatedRemaining,
		task.LastError, nullTime(task.UpdatedAt), task.ID,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("checkpoint counters for task %s: %w", task.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint %s/%s: %w", v.TaskID, v.VideoID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var task model.Task
	var startedAt, updatedAt, completedAt sql.NullTime
	err := row.Scan(
		&task.ID, &task.Owner, &task.TargetURL, &task.MaxVideos, &task.Language, &task.WhisperModel,
		&task.Status, &task.Reason, &task.CurrentStage,
		&task.TotalDiscovered, &task.Processed, &task.Succeeded, &task.Failed, &task.Progress, &task.EstimatedRemaining,
		&task.ResultFile, &task.LastError,
		&task.CreatedAt, &startedAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	task.StartedAt = startedAt.Time
	task.UpdatedAt = updatedAt.Time
	task.CompletedAt = completedAt.Time
	return &task, nil
}

func scanTaskWithCancel(row rowScanner) (*model.Task, bool, error) {
	var task model.Task
	var startedAt, updatedAt, completedAt sql.NullTime
	var cancelRequested int
	err := row.Scan(
		&task.ID, &task.Owner, &task.TargetURL, &task.MaxVideos, &task.Language, &task.WhisperModel,
		&task.Status, &task.Reason, &task.CurrentStage,
		&task.TotalDiscovered, &task.Processed, &task.Succeeded, &task.Failed, &task.Progress, &task.EstimatedRemaining,
		&task.ResultFile, &task.LastError,
		&task.CreatedAt, &startedAt, &updatedAt, &completedAt,
		&cancelRequested,
	)
	if err != nil {
		return nil, false, err
	}
	task.StartedAt = startedAt.Time
	task.UpdatedAt = updatedAt.Time
	task.CompletedAt = completedAt.Time
	return &task, cancelRequested != 0, nil
}

func scanVideo(row rowScanner) (*model.VideoRecord, error) {
	var v model.VideoRecord
	var history string
	var lastAttemptAt, completedAt sql.NullTime
	err := row.Scan(
		&v.TaskID, &v.VideoID, &v.SourceURL, &v.Title, &v.Status,
		&v.RetryCount, &history, &v.Transcript, &v.AudioPath, &v.ErrorKind, &v.ErrorMessage,
		&v.DiscoveredAt, &lastAttemptAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &v.RetryErrors); err != nil {
			return nil, fmt.Errorf("parse retry errors for %s/%s: %w", v.TaskID, v.VideoID, err)
		}
	}
	v.LastAttemptAt = lastAttemptAt.Time
	v.CompletedAt = completedAt.Time
	return &v, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
