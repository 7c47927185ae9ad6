// Package service exposes downloads as long-running runs for the HTTP API:
// submit a playlist or single video, inspect, cancel.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytsnap/ytsnap/internal/config"
	"github.com/ytsnap/ytsnap/internal/domain"
	"github.com/ytsnap/ytsnap/internal/orchestrator"
)

// RunID identifies one submitted run.
type RunID string

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Run is a point-in-time snapshot of one run. Exactly one of PlaylistID and
// VideoID is set.
type Run struct {
	ID         RunID            `json:"id"`
	PlaylistID string           `json:"playlist_id,omitempty"`
	VideoID    string           `json:"video_id,omitempty"`
	Title      string           `json:"title,omitempty"`
	OutputDir  string           `json:"output_dir"`
	Quality    string           `json:"quality,omitempty"`
	Itag       int              `json:"itag,omitempty"`
	MaxWorkers int              `json:"max_workers,omitempty"`
	Resume     bool             `json:"resume"`
	Status     RunStatus        `json:"status"`
	Completed  []domain.VideoID `json:"completed,omitempty"`
	Failed     []domain.VideoID `json:"failed,omitempty"`
	Skipped    int              `json:"skipped,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}

// SubmitRequest describes a run to start. Exactly one of Playlist and Video
// must be set.
type SubmitRequest struct {
	Playlist   string // playlist URL or bare ID
	Video      string // video URL or bare ID
	OutputDir  string // empty means <storage.output_dir>/<playlist_id>, or storage.output_dir for a video
	Quality    string
	Itag       int
	MaxWorkers *int // nil means the configured default
	Resume     bool
}

// RunStats counts runs by status.
type RunStats struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
	Total     int `json:"total"`
}

// RunService starts playlist runs in the background and tracks their state
// in memory. Runs are kept until the process exits.
type RunService struct {
	orch    *orchestrator.Orchestrator
	storage config.StorageConfig
	logger  *slog.Logger

	mu      sync.RWMutex
	runs    map[RunID]*Run
	cancels map[RunID]context.CancelFunc
	order   []RunID // submission order

	wg sync.WaitGroup
}

func NewRunService(orch *orchestrator.Orchestrator, storage config.StorageConfig, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		orch:    orch,
		storage: storage,
		logger:  logger,
		runs:    make(map[RunID]*Run),
		cancels: make(map[RunID]context.CancelFunc),
	}
}

// Submit validates the request, registers a run, and starts it in the
// background. The returned snapshot has status running.
func (s *RunService) Submit(req SubmitRequest) (*Run, error) {
	if (req.Playlist == "") == (req.Video == "") {
		return nil, domain.NewConfigurationError("exactly one of playlist or video is required")
	}

	workers := s.orch.DefaultWorkers()
	if req.MaxWorkers != nil {
		workers = *req.MaxWorkers
	}
	if workers < 1 || workers > config.MaxWorkersLimit {
		return nil, domain.NewConfigurationError("max_workers must be between 1 and %d, got %d", config.MaxWorkersLimit, workers)
	}

	run := &Run{
		ID:         RunID(uuid.NewString()),
		OutputDir:  req.OutputDir,
		Quality:    req.Quality,
		Itag:       req.Itag,
		MaxWorkers: workers,
		Resume:     req.Resume,
		Status:     RunRunning,
		CreatedAt:  time.Now().UTC(),
	}

	opts := orchestrator.Options{
		Quality:      req.Quality,
		Itag:         req.Itag,
		MaxWorkers:   workers,
		Resume:       req.Resume,
		MinFreeBytes: s.storage.MinFreeBytes,
	}

	var start func(context.Context) (*orchestrator.Result, error)
	if req.Playlist != "" {
		ref, err := domain.ParsePlaylistRef(req.Playlist)
		if err != nil {
			return nil, err
		}
		run.PlaylistID = ref.ID
		if run.OutputDir == "" {
			run.OutputDir = filepath.Join(s.storage.OutputDir, ref.ID)
		}
		opts.OutputDir = run.OutputDir
		start = func(ctx context.Context) (*orchestrator.Result, error) {
			return s.orch.DownloadPlaylist(ctx, ref, opts)
		}
	} else {
		ref, err := domain.ParseVideoRef(req.Video)
		if err != nil {
			return nil, err
		}
		run.VideoID = string(ref.ID)
		if run.OutputDir == "" {
			run.OutputDir = s.storage.OutputDir
		}
		opts.OutputDir = run.OutputDir
		start = func(ctx context.Context) (*orchestrator.Result, error) {
			return s.orch.DownloadVideo(ctx, ref, opts)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.runs[run.ID] = run
	s.cancels[run.ID] = cancel
	s.order = append(s.order, run.ID)
	snapshot := *run
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(runCtx, run.ID, start)

	s.logger.Info("run submitted",
		"run_id", run.ID,
		"playlist_id", run.PlaylistID,
		"video_id", run.VideoID,
	)
	return &snapshot, nil
}

func (s *RunService) execute(ctx context.Context, id RunID, start func(context.Context) (*orchestrator.Result, error)) {
	defer s.wg.Done()

	result, err := start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	delete(s.cancels, id)
	run.FinishedAt = time.Now().UTC()

	if result != nil {
		run.Title = result.PlaylistTitle
		run.Completed = result.Completed
		run.Failed = result.Failed
		run.Skipped = result.Skipped
	}
	switch {
	case errors.Is(err, context.Canceled):
		run.Status = RunCanceled
	case err != nil:
		run.Status = RunFailed
		run.Error = err.Error()
	default:
		// Per-video failures do not fail the run; callers inspect the
		// failed set.
		run.Status = RunCompleted
	}

	s.logger.Info("run finished",
		"run_id", id,
		"status", run.Status,
		"completed", len(run.Completed),
		"failed", len(run.Failed),
	)
}

// Get returns a snapshot of one run.
func (s *RunService) Get(id RunID) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	snapshot := *run
	return &snapshot, nil
}

// List returns snapshots of all runs, newest first.
func (s *RunService) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		snapshot := *s.runs[s.order[i]]
		out = append(out, &snapshot)
	}
	return out
}

// Cancel stops a running run. Canceling a finished run is a no-op.
func (s *RunService) Cancel(id RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return domain.ErrRunNotFound
	}
	if cancel, ok := s.cancels[id]; ok {
		cancel()
	}
	return nil
}

// Stats counts runs by status.
func (s *RunService) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{Total: len(s.runs)}
	for _, run := range s.runs {
		switch run.Status {
		case RunRunning:
			stats.Running++
		case RunCompleted:
			stats.Completed++
		case RunFailed:
			stats.Failed++
		case RunCanceled:
			stats.Canceled++
		}
	}
	return stats
}

// Shutdown cancels every running run and waits for their goroutines, or
// returns the context's error when the wait is cut short.
func (s *RunService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
