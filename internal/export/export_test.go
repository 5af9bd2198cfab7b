package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/model"
)

func TestWriteResultsProducesParsableFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	task := &model.Task{
		ID:              "t1",
		TargetURL:       "https://example.test/@creator",
		Language:        "zh",
		WhisperModel:    "small",
		Status:          model.TaskCompleted,
		TotalDiscovered: 2,
		Succeeded:       1,
		Failed:          1,
		CreatedAt:       now,
	}
	videos := []model.VideoRecord{
		{TaskID: "t1", VideoID: "v1", Status: model.VideoDone, Transcript: "hello"},
		{TaskID: "t1", VideoID: "v2", Status: model.VideoFailed, ErrorMessage: "private video"},
	}

	name, err := WriteResults(dir, task, videos)
	if err != nil {
		t.Fatalf("WriteResults: %v", err)
	}
	if !strings.HasPrefix(name, "analysis_t1_") || !strings.HasSuffix(name, ".json") {
		t.Fatalf("unexpected file name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if result.TaskInfo.TaskID != "t1" || result.TaskInfo.Succeeded != 1 || result.TaskInfo.Failed != 1 {
		t.Fatalf("task info = %+v", result.TaskInfo)
	}
	if len(result.Videos) != 2 {
		t.Fatalf("videos = %d, want 2", len(result.Videos))
	}
	if result.Videos[0].Transcript != "hello" {
		t.Fatalf("transcript lost: %+v", result.Videos[0])
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".vidscribe-tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
