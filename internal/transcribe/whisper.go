// Package transcribe turns an audio file into text through an external
// speech-recognition tool.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vidscribe/internal/retry"
)

// Options override the transcriber's configured defaults for one call, so
// each task's model and language choices take effect.
type Options struct {
	Model    string
	Language string
}

// Transcriber produces a transcript for a local audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (string, error)
}

// WhisperCLI execs the whisper command-line tool. Model internals are not
// this package's concern; it only shells out and classifies failures.
type WhisperCLI struct {
	Binary    string // defaults to whisper
	Model     string // e.g. "small"
	Language  string // e.g. "zh"
	OutputDir string
}

func (w *WhisperCLI) binary() string {
	if strings.TrimSpace(w.Binary) != "" {
		return w.Binary
	}
	return "whisper"
}

// Check verifies the transcription tool is available.
func (w *WhisperCLI) Check() error {
	if _, err := exec.LookPath(w.binary()); err != nil {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", w.binary())
	}
	return nil
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", retry.Fatal(fmt.Errorf("transcribe: unreadable input %s: %w", audioPath, err))
	}

	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = w.Model
	}
	language := opts.Language
	if strings.TrimSpace(language) == "" {
		language = w.Language
	}

	outDir := w.OutputDir
	if strings.TrimSpace(outDir) == "" {
		outDir = filepath.Dir(audioPath)
	}
	args := []string{
		audioPath,
		"--output_format", "txt",
		"--output_dir", outDir,
	}
	if strings.TrimSpace(model) != "" {
		args = append(args, "--model", model)
	}
	if strings.TrimSpace(language) != "" {
		args = append(args, "--language", language)
	}

	cmd := exec.CommandContext(ctx, w.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classifyTranscribeError(err, stderr.String())
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	txtPath := filepath.Join(outDir, base+".txt")
	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("transcribe: read output %s: %w", txtPath, err))
	}
	return strings.TrimSpace(string(text)), nil
}

func classifyTranscribeError(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	wrapped := fmt.Errorf("transcribe: %w: %s", err, msg)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid data"),
		strings.Contains(lower, "corrupt"),
		strings.Contains(lower, "unreadable"),
		strings.Contains(lower, "no such file"):
		return retry.Fatal(wrapped)
	case strings.Contains(lower, "out of memory"),
		strings.Contains(lower, "cuda"),
		strings.Contains(lower, "resource"):
		return retry.Transient(wrapped)
	default:
		return retry.Transient(wrapped)
	}
}
