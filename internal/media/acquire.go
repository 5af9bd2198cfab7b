// Package media acquires one video's audio. Alternative acquisition methods
// are tried in order inside a single logical attempt; backoff across
// attempts is the stage executor's job.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"vidscribe/internal/retry"
)

// Acquirer fetches the audio for one video and returns the local file path.
type Acquirer interface {
	Acquire(ctx context.Context, sourceURL, videoID string) (string, error)
}

// Chain tries each acquirer in order and fails only when all of them do.
// The composite error is fatal only if every method failed fatally, so one
// method's permanent defect never masks another's transient one.
type Chain struct {
	methods []Acquirer
}

func NewChain(methods ...Acquirer) *Chain {
	return &Chain{methods: methods}
}

func (c *Chain) Acquire(ctx context.Context, sourceURL, videoID string) (string, error) {
	if len(c.methods) == 0 {
		return "", retry.Fatal(fmt.Errorf("no acquisition methods configured"))
	}

	var failures []error
	allFatal := true
	for _, m := range c.methods {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path, err := m.Acquire(ctx, sourceURL, videoID)
		if err == nil {
			return path, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if retry.Classify(err) != retry.ClassFatal {
			allFatal = false
		}
		failures = append(failures, err)
	}

	joined := fmt.Errorf("all acquisition methods failed: %w", errors.Join(failures...))
	if allFatal {
		return "", retry.Fatal(joined)
	}
	return "", retry.Transient(joined)
}

// Extractor is the primary acquisition method: exec'd yt-dlp audio
// extraction.
type Extractor struct {
	Binary      string // defaults to yt-dlp
	OutputDir   string
	CookiesPath string
}

func (e *Extractor) binary() string {
	if strings.TrimSpace(e.Binary) != "" {
		return e.Binary
	}
	return "yt-dlp"
}

func (e *Extractor) Acquire(ctx context.Context, sourceURL, videoID string) (string, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return "", retry.Fatal(fmt.Errorf("source URL is required"))
	}
	outPath := filepath.Join(e.OutputDir, videoID+".m4a")
	args := []string{
		"--no-playlist",
		"--newline",
		"-x",
		"--audio-format", "m4a",
		"-o", filepath.Join(e.OutputDir, videoID+".%(ext)s"),
	}
	if strings.TrimSpace(e.CookiesPath) != "" {
		args = append(args, "--cookies", e.CookiesPath)
	}
	args = append(args, sourceURL)

	cmd := exec.CommandContext(ctx, e.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classifyAcquireError(e.binary(), err, stderr.String())
	}
	return outPath, nil
}

func classifyAcquireError(tool string, err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	wrapped := fmt.Errorf("%s audio extraction: %w: %s", tool, err, msg)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "unsupported url"),
		strings.Contains(lower, "removed"):
		return retry.Fatal(wrapped)
	default:
		return retry.Transient(wrapped)
	}
}
