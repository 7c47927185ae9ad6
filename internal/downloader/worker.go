// Package downloader fetches one video stream at a time, rotating proxies
// and retrying transient faults with exponential backoff.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ytsnap/ytsnap/internal/config"
	"github.com/ytsnap/ytsnap/internal/domain"
	"github.com/ytsnap/ytsnap/internal/format"
	"github.com/ytsnap/ytsnap/internal/proxy"
)

// Resolver resolves the stream formats available for a video, sending the
// request over the given transport (nil means direct).
type Resolver interface {
	ResolveVideo(ctx context.Context, id domain.VideoID, transport http.RoundTripper) ([]domain.StreamFormat, error)
}

// Worker downloads single videos. It is stateless between tasks and safe for
// concurrent use; all shared health state lives in the proxy pool.
type Worker struct {
	resolver Resolver
	pool     *proxy.Pool
	cfg      config.DownloadConfig
	logger   *slog.Logger
}

func NewWorker(resolver Resolver, pool *proxy.Pool, cfg config.DownloadConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		resolver: resolver,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run downloads one task to its target path. Each attempt acquires a proxy
// and performs the whole resolve-select-stream sequence through it: stream
// URLs are bound to the egress IP that resolved them, so metadata and
// download must share a route. Transient faults rotate to the next proxy and
// retry up to MaxAttempts with exponential backoff; resolution and format
// errors surface immediately.
func (w *Worker) Run(ctx context.Context, task *domain.DownloadTask) error {
	w.logger.Info("starting download",
		"video_id", task.Video.ID,
		"title", task.Title,
		"index", task.Index,
		"total", task.Total,
	)

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		proxyCfg, err := w.pool.Acquire()
		if err != nil {
			// Every proxy cooling down is not a per-video failure worth
			// burning attempts on; surface it to the orchestrator.
			return err
		}

		err = w.attempt(ctx, task, proxyCfg)
		if err == nil {
			if proxyCfg != nil {
				w.pool.ReportSuccess(*proxyCfg)
			}
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !domain.IsTransient(err) {
			// A definitive upstream answer (unplayable, missing format,
			// 404) is the video's fault, not the route's.
			return err
		}
		if proxyCfg != nil {
			w.pool.ReportFailure(*proxyCfg, errors.Is(err, domain.ErrRateLimited))
		}
		if attempt == w.cfg.MaxAttempts {
			break
		}

		delay := w.cfg.RetryDelay << (attempt - 1)
		if delay > w.cfg.MaxRetryDelay || delay <= 0 {
			delay = w.cfg.MaxRetryDelay
		}
		w.logger.Warn("download attempt failed, retrying",
			"video_id", task.Video.ID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("download failed after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

// attempt runs one resolve-select-stream cycle through a single egress.
func (w *Worker) attempt(ctx context.Context, task *domain.DownloadTask, proxyCfg *domain.ProxyConfig) error {
	transport, err := proxy.Transport(proxyCfg)
	if err != nil {
		return err
	}

	formats, err := w.resolver.ResolveVideo(ctx, task.Video.ID, transport)
	if err != nil {
		return err
	}
	streamFormat, err := format.Select(formats, task.Quality, task.Itag)
	if err != nil {
		return err
	}

	w.logger.Debug("fetching stream",
		"video_id", task.Video.ID,
		"itag", streamFormat.Itag,
		"quality", streamFormat.QualityLabel,
	)
	return w.downloadOnce(ctx, streamFormat, task.TargetPath, transport)
}

// downloadOnce streams the format to targetPath through the given transport.
// The stream is written to a .part file and renamed on completion, so an
// interrupted download never leaves a truncated file under the final name.
func (w *Worker) downloadOnce(ctx context.Context, f domain.StreamFormat, targetPath string, transport *http.Transport) error {
	// Streaming client: no overall timeout, stalls are caught by the
	// reader's watchdog.
	client := &http.Client{Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("User-Agent", w.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Range", "bytes=0-")

	resp, err := client.Do(req)
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("stream request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("stream fetch: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusForbidden:
		// The URL was minted for a different or expired egress; the next
		// attempt re-resolves through a fresh route.
		return domain.NewTransientError(fmt.Errorf("stream fetch: status 403"))
	case resp.StatusCode >= 500:
		return domain.NewTransientError(fmt.Errorf("stream fetch: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return fmt.Errorf("stream fetch: unexpected status %d", resp.StatusCode)
	}

	size := resp.ContentLength
	if size < 0 {
		size = f.ContentLength
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	partPath := targetPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	reader := newProgressReader(resp.Body, size, w.cfg.ReadStallTimeout, w.cfg.ProgressInterval, w.logger)
	defer reader.stop()
	_, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(partPath)
		if errors.Is(copyErr, context.Canceled) || errors.Is(copyErr, context.DeadlineExceeded) {
			return copyErr
		}
		return domain.NewTransientError(fmt.Errorf("stream copy: %w", copyErr))
	}
	if closeErr != nil {
		os.Remove(partPath)
		return fmt.Errorf("close output file: %w", closeErr)
	}

	if err := os.Rename(partPath, targetPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("finalize output file: %w", err)
	}
	return nil
}
