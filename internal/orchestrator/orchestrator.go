// Package orchestrator coordinates download runs: playlist resolution, task
// fan-out over a bounded worker pool, resume state, and per-task history.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/ytsnap/ytsnap/internal/config"
	"github.com/ytsnap/ytsnap/internal/domain"
	"github.com/ytsnap/ytsnap/internal/history"
	"github.com/ytsnap/ytsnap/internal/platform"
	"github.com/ytsnap/ytsnap/internal/resume"
)

// PlaylistResolver resolves a playlist reference to its ordered item list.
type PlaylistResolver interface {
	ResolvePlaylist(ctx context.Context, ref domain.PlaylistRef) (*domain.PlaylistInfo, error)
}

// TaskRunner downloads a single task to its target path.
type TaskRunner interface {
	Run(ctx context.Context, task *domain.DownloadTask) error
}

// Options tunes one run.
type Options struct {
	OutputDir string
	Quality   string
	Itag      int

	// MaxWorkers bounds concurrent downloads and must be within
	// [1, MaxWorkersLimit]. Callers that let users omit the bound resolve
	// their own default first (see DefaultWorkers).
	MaxWorkers int

	// Resume skips videos the output directory's state file already marks
	// completed. When false the run starts from scratch.
	Resume bool

	// Progress receives task status transitions; nil means no reporting.
	Progress ProgressSink

	// MinFreeBytes triggers a low-disk warning before the run starts.
	// Zero disables the check.
	MinFreeBytes int64
}

// Result summarizes a finished run. Completed and Failed mirror the
// persisted download state, so resumed runs include earlier completions.
type Result struct {
	PlaylistTitle string
	Completed     []domain.VideoID
	Failed        []domain.VideoID
	Skipped       int
}

// Orchestrator runs downloads. Safe for concurrent runs targeting different
// output directories.
type Orchestrator struct {
	resolver       PlaylistResolver
	runner         TaskRunner
	history        *history.Store // nil disables history
	defaultWorkers int
	logger         *slog.Logger
}

func New(resolver PlaylistResolver, runner TaskRunner, hist *history.Store, workerCfg config.WorkerConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	defaultWorkers := workerCfg.MaxWorkers
	if defaultWorkers == 0 {
		defaultWorkers = 3
	}
	return &Orchestrator{
		resolver:       resolver,
		runner:         runner,
		history:        hist,
		defaultWorkers: defaultWorkers,
		logger:         logger,
	}
}

// DefaultWorkers returns the configured worker-count default, for callers
// whose users may omit the bound.
func (o *Orchestrator) DefaultWorkers() int {
	return o.defaultWorkers
}

func validateOptions(opts Options) error {
	if opts.MaxWorkers < 1 || opts.MaxWorkers > config.MaxWorkersLimit {
		return domain.NewConfigurationError("max_workers must be between 1 and %d, got %d", config.MaxWorkersLimit, opts.MaxWorkers)
	}
	if opts.OutputDir == "" {
		return domain.NewConfigurationError("output directory is required")
	}
	return nil
}

// DownloadPlaylist resolves ref and downloads every item not already
// completed. Individual video failures are contained: they mark the video
// failed and the run continues. The returned error is non-nil only for
// whole-run faults (bad options, resolution failure, cancellation).
//
// Resume state is flushed after every task outcome, so interrupting the
// process loses at most the tasks still in flight.
func (o *Orchestrator) DownloadPlaylist(ctx context.Context, ref domain.PlaylistRef, opts Options) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	info, err := o.resolver.ResolvePlaylist(ctx, ref)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, ref.ID, info.Title, info.Videos, opts)
}

// DownloadVideo downloads a single video through the same pipeline as a
// playlist run: the output directory's resume state, progress reporting,
// and history all apply, so re-running an interrupted invocation skips an
// already finished file.
func (o *Orchestrator) DownloadVideo(ctx context.Context, ref domain.VideoRef, opts Options) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	items := []domain.PlaylistItem{{Video: ref}}
	return o.run(ctx, "", string(ref.ID), items, opts)
}

func (o *Orchestrator) run(ctx context.Context, playlistID, title string, items []domain.PlaylistItem, opts Options) (*Result, error) {
	sink := opts.Progress
	if sink == nil {
		sink = NopSink{}
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if opts.MinFreeBytes > 0 {
		if free := platform.FreeDiskSpace(opts.OutputDir); free > 0 && free < opts.MinFreeBytes {
			o.logger.Warn("low disk space in output directory",
				"output_dir", opts.OutputDir,
				"free_bytes", free,
				"min_free_bytes", opts.MinFreeBytes,
			)
		}
	}

	var store *resume.Store
	if opts.Resume {
		store = resume.Load(opts.OutputDir)
	} else {
		store = resume.Fresh(opts.OutputDir)
	}

	total := len(items)
	var tasks []*domain.DownloadTask
	skipped := 0
	for i, item := range items {
		if store.IsCompleted(item.Video.ID) {
			skipped++
			continue
		}
		tasks = append(tasks, &domain.DownloadTask{
			Video:      item.Video,
			Title:      item.Title,
			Index:      i + 1,
			Total:      total,
			TargetPath: platform.TargetPath(opts.OutputDir, i+1, item.Title, item.Video.ID),
			Quality:    opts.Quality,
			Itag:       opts.Itag,
			Status:     domain.TaskPending,
		})
	}

	o.logger.Info("starting run",
		"playlist_id", playlistID,
		"title", title,
		"videos", total,
		"skipped", skipped,
		"workers", opts.MaxWorkers,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return o.runTask(gctx, task, playlistID, store, sink)
		})
	}

	runErr := g.Wait()
	if err := store.Flush(); err != nil {
		o.logger.Error("flush download state", "path", store.Path(), "error", err)
	}

	snap := store.Snapshot()
	result := &Result{
		PlaylistTitle: title,
		Completed:     snap.Completed,
		Failed:        snap.Failed,
		Skipped:       skipped,
	}

	o.logger.Info("run finished",
		"playlist_id", playlistID,
		"completed", len(result.Completed),
		"failed", len(result.Failed),
		"skipped", skipped,
		"interrupted", runErr != nil,
	)
	return result, runErr
}

// runTask downloads one video and folds its outcome into the resume state.
// Only cancellation propagates as an error; a failed download is contained
// so the rest of the run proceeds.
func (o *Orchestrator) runTask(ctx context.Context, task *domain.DownloadTask, playlistID string, store *resume.Store, sink ProgressSink) error {
	task.Status = domain.TaskDownloading
	sink.Notify(ProgressEvent{
		Video:  task.Video.ID,
		Title:  task.Title,
		Index:  task.Index,
		Total:  task.Total,
		Status: task.Status,
	})

	err := o.runner.Run(ctx, task)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Interrupted mid-download: no outcome is recorded, the video stays
		// pending for the next run.
		return err
	}

	entry := history.Entry{
		VideoID:    task.Video.ID,
		PlaylistID: playlistID,
		Title:      task.Title,
		Path:       task.TargetPath,
	}
	if err == nil {
		task.Status = domain.TaskCompleted
		store.Record(task.Video.ID, resume.OutcomeSucceeded)
		entry.Status = string(domain.TaskCompleted)
	} else {
		task.Status = domain.TaskFailed
		store.Record(task.Video.ID, resume.OutcomeFailed)
		entry.Status = string(domain.TaskFailed)
		entry.Error = err.Error()
		o.logger.Error("video download failed",
			"video_id", task.Video.ID,
			"title", task.Title,
			"error", err,
		)
	}

	// Flush after every outcome so an interruption loses at most in-flight
	// tasks.
	if flushErr := store.Flush(); flushErr != nil {
		o.logger.Error("flush download state", "path", store.Path(), "error", flushErr)
	}
	o.history.Record(ctx, entry)

	sink.Notify(ProgressEvent{
		Video:  task.Video.ID,
		Title:  task.Title,
		Index:  task.Index,
		Total:  task.Total,
		Status: task.Status,
		Err:    err,
	})
	return nil
}
