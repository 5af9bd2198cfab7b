// Package feed enumerates a creator's public video feed through an external
// scraping tool. The orchestration core only ever sees the Enumerator
// interface and classified errors.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"vidscribe/internal/retry"
)

// Entry is one discovered video.
type Entry struct {
	VideoID   string
	Title     string
	SourceURL string
}

// Enumerator lists up to limit videos for a creator target.
type Enumerator interface {
	Enumerate(ctx context.Context, target string, limit int) ([]Entry, error)
}

// Client enumerates via an exec'd yt-dlp flat-playlist dump.
type Client struct {
	Binary      string // defaults to yt-dlp
	CookiesPath string
}

func (c *Client) binary() string {
	if strings.TrimSpace(c.Binary) != "" {
		return c.Binary
	}
	return "yt-dlp"
}

// Check verifies the scraping tool is available before any task starts.
func (c *Client) Check() error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", c.binary())
	}
	return nil
}

type flatPlaylist struct {
	Entries []flatEntry `json:"entries"`
}

type flatEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
}

func (c *Client) Enumerate(ctx context.Context, target string, limit int) ([]Entry, error) {
	if strings.TrimSpace(target) == "" {
		return nil, retry.Fatal(fmt.Errorf("feed target is required"))
	}

	args := []string{"--flat-playlist", "-J"}
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	if strings.TrimSpace(c.CookiesPath) != "" {
		args = append(args, "--cookies", c.CookiesPath)
	}
	args = append(args, target)

	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, classifyEnumerateError(err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, retry.Transient(fmt.Errorf("enumerate %s: empty output from %s", target, c.binary()))
	}

	var playlist flatPlaylist
	if err := json.Unmarshal(stdout.Bytes(), &playlist); err != nil {
		return nil, retry.Fatal(fmt.Errorf("enumerate %s: malformed playlist JSON: %w", target, err))
	}

	entries := make([]Entry, 0, len(playlist.Entries))
	for _, e := range playlist.Entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			continue
		}
		url := e.WebpageURL
		if url == "" {
			url = e.URL
		}
		entries = append(entries, Entry{VideoID: id, Title: e.Title, SourceURL: url})
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// classifyEnumerateError maps scraper failures onto the retry taxonomy once,
// at the collaborator boundary.
func classifyEnumerateError(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	wrapped := fmt.Errorf("enumerate feed: %w: %s", err, msg)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "unsupported url"),
		strings.Contains(lower, "account terminated"):
		return retry.Fatal(wrapped)
	case strings.Contains(lower, "login required"),
		strings.Contains(lower, "sign in"),
		strings.Contains(lower, "authentication"):
		return retry.Fatal(wrapped)
	default:
		return retry.Transient(wrapped)
	}
}
