// Package export writes the final per-task result file: task info plus every
// video's transcript and outcome. Files are written atomically so a partial
// result is never observable.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vidscribe/internal/model"
)

type TaskInfo struct {
	TaskID      string    `json:"task_id"`
	TargetURL   string    `json:"target_url"`
	Language    string    `json:"language,omitempty"`
	Model       string    `json:"whisper_model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
	Total       int       `json:"total_videos"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
}

type Result struct {
	TaskInfo TaskInfo            `json:"task_info"`
	Videos   []model.VideoRecord `json:"videos"`
}

// WriteResults writes the task's result file into dir and returns the file
// name recorded on the task.
func WriteResults(dir string, task *model.Task, videos []model.VideoRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results directory %s: %w", dir, err)
	}

	result := Result{
		TaskInfo: TaskInfo{
			TaskID:      task.ID,
			TargetURL:   task.TargetURL,
			Language:    task.Language,
			Model:       task.WhisperModel,
			CreatedAt:   task.CreatedAt,
			CompletedAt: time.Now().UTC(),
			Total:       task.TotalDiscovered,
			Succeeded:   task.Succeeded,
			Failed:      task.Failed,
		},
		Videos: videos,
	}

	name := fmt.Sprintf("analysis_%s_%d.json", task.ID, time.Now().Unix())
	if err := WriteJSON(filepath.Join(dir, name), result); err != nil {
		return "", err
	}
	return name, nil
}

// WriteJSON marshals v and writes it atomically: temp file in the target
// directory, then rename.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return writeBytes(path, data)
}

func writeBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".vidscribe-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
