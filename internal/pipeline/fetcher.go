package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"video-concat-service/internal/config"
	"video-concat-service/internal/models"
	"video-concat-service/internal/telemetry"
)

// Fetcher retrieves segments into a job workspace, strictly in index order.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	retries  int
	backoff  time.Duration
	logger   zerolog.Logger
}

func NewFetcher(cfg config.Config, logger zerolog.Logger) *Fetcher {
	timeout := cfg.DownloadTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxBytes := cfg.SegmentMaxBytes
	if maxBytes == 0 {
		maxBytes = 512 * 1024 * 1024
	}
	return &Fetcher{
		client:   &http.Client{},
		timeout:  timeout,
		maxBytes: maxBytes,
		retries:  cfg.DownloadRetries,
		backoff:  cfg.RetryBackoff,
		logger:   logger,
	}
}

// FetchAll downloads every scene into the workspace and returns the local
// paths in index order. It fails fast: on the first unrecoverable failure
// the remaining segments are not attempted and a DownloadError carrying
// the failing index is returned.
func (f *Fetcher) FetchAll(ctx context.Context, ws *Workspace, scenes []models.Scene) ([]string, error) {
	paths := make([]string, 0, len(scenes))
	for _, scene := range scenes {
		dest := ws.SegmentPath(scene.Index)
		if err := f.fetchOne(ctx, scene.URL, dest); err != nil {
			return nil, &DownloadError{Index: scene.Index, URL: scene.URL, Err: err}
		}
		f.logger.Debug().Int("index", scene.Index).Str("url", scene.URL).Msg("segment fetched")
		telemetry.SegmentsFetched.Inc()
		paths = append(paths, dest)
	}
	return paths, nil
}

// fetchOne retrieves a single segment, with bounded per-attempt timeout
// and optional bounded retry. A retried segment still blocks subsequent
// indices until it resolves or attempts are exhausted.
func (f *Fetcher) fetchOne(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.backoff):
			}
		}
		lastErr = f.download(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("fetch segment: status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create segment file: %w", err)
	}
	defer out.Close()

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	n, err := io.Copy(out, limited)
	if err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	if n > f.maxBytes {
		return fmt.Errorf("segment too large (>%d bytes)", f.maxBytes)
	}
	telemetry.DownloadBytes.Add(float64(n))
	return nil
}
