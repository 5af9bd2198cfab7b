// Package config loads runtime settings from an optional JSON file with
// environment variable overrides. Every field has a usable default so the
// tool runs with no configuration at all.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"vidscribe/internal/retry"
	"vidscribe/internal/scheduler"
)

type Config struct {
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
	ResultsDir   string `json:"results_dir"`
	AudioDir     string `json:"audio_dir"`
	LogFile      string `json:"log_file"`

	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
	TaskTimeoutSec     int `json:"task_timeout_seconds"`
	PollIntervalSec    int `json:"poll_interval_seconds"`

	MaxRetryCount     int     `json:"max_retry_count"`
	RetryDelayBaseSec float64 `json:"retry_delay_base_seconds"`
	RetryDelayMaxSec  float64 `json:"retry_delay_max_seconds"`
	RetryBackoff      float64 `json:"retry_backoff"`

	MaxVideos    int    `json:"max_videos"`
	WhisperModel string `json:"whisper_model"`
	Language     string `json:"language"`

	YtDlpPath   string `json:"yt_dlp_path"`
	WhisperPath string `json:"whisper_path"`
	CookiesFile string `json:"cookies_file"`
	UserAgent   string `json:"user_agent"`
}

func Default() Config {
	dataDir := "data"
	return Config{
		DataDir:            dataDir,
		DatabasePath:       filepath.Join(dataDir, "vidscribe.db"),
		ResultsDir:         filepath.Join(dataDir, "results"),
		AudioDir:           filepath.Join(dataDir, "audio"),
		MaxConcurrentTasks: 3,
		TaskTimeoutSec:     3600,
		PollIntervalSec:    2,
		MaxRetryCount:      10,
		RetryDelayBaseSec:  2.0,
		RetryDelayMaxSec:   60.0,
		RetryBackoff:       2.0,
		MaxVideos:          50,
		WhisperModel:       "small",
		Language:           "zh",
	}
}

// Load returns the defaults overlaid with the JSON file at path (when it
// exists) and then with VIDSCRIBE_* environment variables. An empty path
// skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Missing file is fine, defaults apply.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("VIDSCRIBE_DATA_DIR", &c.DataDir)
	envStr("VIDSCRIBE_DATABASE_PATH", &c.DatabasePath)
	envStr("VIDSCRIBE_RESULTS_DIR", &c.ResultsDir)
	envStr("VIDSCRIBE_AUDIO_DIR", &c.AudioDir)
	envStr("VIDSCRIBE_LOG_FILE", &c.LogFile)
	envInt("VIDSCRIBE_MAX_CONCURRENT_TASKS", &c.MaxConcurrentTasks)
	envInt("VIDSCRIBE_TASK_TIMEOUT_SECONDS", &c.TaskTimeoutSec)
	envInt("VIDSCRIBE_MAX_RETRY_COUNT", &c.MaxRetryCount)
	envInt("VIDSCRIBE_MAX_VIDEOS", &c.MaxVideos)
	envStr("VIDSCRIBE_WHISPER_MODEL", &c.WhisperModel)
	envStr("VIDSCRIBE_LANGUAGE", &c.Language)
	envStr("VIDSCRIBE_YT_DLP_PATH", &c.YtDlpPath)
	envStr("VIDSCRIBE_WHISPER_PATH", &c.WhisperPath)
	envStr("VIDSCRIBE_COOKIES_FILE", &c.CookiesFile)
	envStr("VIDSCRIBE_USER_AGENT", &c.UserAgent)
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func (c *Config) validate() error {
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("config: max_concurrent_tasks must be positive, got %d", c.MaxConcurrentTasks)
	}
	if c.MaxRetryCount < 0 {
		return fmt.Errorf("config: max_retry_count must not be negative, got %d", c.MaxRetryCount)
	}
	if c.RetryBackoff < 1 {
		return fmt.Errorf("config: retry_backoff must be at least 1, got %g", c.RetryBackoff)
	}
	return nil
}

func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Policy builds the retry policy shared by all pipeline stages.
func (c *Config) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxRetryCount,
		BaseDelay:   time.Duration(c.RetryDelayBaseSec * float64(time.Second)),
		Backoff:     c.RetryBackoff,
		MaxDelay:    time.Duration(c.RetryDelayMaxSec * float64(time.Second)),
	}
}

// SchedulerOptions builds the worker pool configuration.
func (c *Config) SchedulerOptions() scheduler.Options {
	return scheduler.Options{
		Workers:      c.MaxConcurrentTasks,
		TaskTimeout:  c.TaskTimeout(),
		PollInterval: c.PollInterval(),
		MaxVideos:    c.MaxVideos,
		Language:     c.Language,
		WhisperModel: c.WhisperModel,
	}
}

// EnsureDirs creates the data directories the worker writes into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.ResultsDir, c.AudioDir, filepath.Dir(c.DatabasePath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
