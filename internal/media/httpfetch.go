package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"vidscribe/internal/retry"
)

// HTTPFetcher is the fallback acquisition method: a direct GET of the
// source reference, for feeds that expose a plain media URL once the
// extractor-based method has failed.
type HTTPFetcher struct {
	OutputDir string
	Client    *http.Client
	UserAgent string
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *HTTPFetcher) Acquire(ctx context.Context, sourceURL, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", retry.Fatal(fmt.Errorf("direct fetch %s: malformed url: %w", videoID, err))
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Transient(fmt.Errorf("direct fetch %s: %w", videoID, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(videoID, resp.StatusCode)
	}

	outPath := filepath.Join(f.OutputDir, videoID+".mp4")
	tmp, err := os.CreateTemp(f.OutputDir, ".fetch-*")
	if err != nil {
		return "", retry.Transient(fmt.Errorf("direct fetch %s: %w", videoID, err))
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", retry.Transient(fmt.Errorf("direct fetch %s: %w", videoID, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", retry.Transient(fmt.Errorf("direct fetch %s: %w", videoID, err))
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", retry.Transient(fmt.Errorf("direct fetch %s: %w", videoID, err))
	}
	return outPath, nil
}

func classifyStatus(videoID string, code int) error {
	err := fmt.Errorf("direct fetch %s: unexpected status %d", videoID, code)
	switch {
	case code == http.StatusNotFound || code == http.StatusGone ||
		code == http.StatusUnauthorized || code == http.StatusForbidden:
		return retry.Fatal(err)
	case code == http.StatusTooManyRequests || code >= 500:
		return retry.Transient(err)
	default:
		return retry.Transient(err)
	}
}
