package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytsnap/ytsnap/internal/config"
	"github.com/ytsnap/ytsnap/internal/domain"
	"github.com/ytsnap/ytsnap/internal/resume"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRef() domain.PlaylistRef {
	return domain.PlaylistRef{ID: "PLtest12345678"}
}

type fakeResolver struct {
	info *domain.PlaylistInfo
	err  error
}

func (r *fakeResolver) ResolvePlaylist(ctx context.Context, ref domain.PlaylistRef) (*domain.PlaylistInfo, error) {
	return r.info, r.err
}

func playlistOf(ids ...domain.VideoID) *fakeResolver {
	info := &domain.PlaylistInfo{
		Ref:        testRef(),
		Title:      "Test Playlist",
		VideoCount: len(ids),
	}
	for _, id := range ids {
		info.Videos = append(info.Videos, domain.PlaylistItem{
			Video: domain.VideoRef{ID: id},
			Title: "Video " + string(id),
		})
	}
	return &fakeResolver{info: info}
}

// fakeRunner fails the videos listed in failing and tracks which videos ran
// and the peak number of concurrent Run calls.
type fakeRunner struct {
	failing map[domain.VideoID]error
	delay   time.Duration

	mu      sync.Mutex
	ran     []domain.VideoID
	active  int32
	peak    int32
	onStart func(id domain.VideoID, ctx context.Context) error
}

func (r *fakeRunner) Run(ctx context.Context, task *domain.DownloadTask) error {
	cur := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		old := atomic.LoadInt32(&r.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&r.peak, old, cur) {
			break
		}
	}

	if r.onStart != nil {
		if err := r.onStart(task.Video.ID, ctx); err != nil {
			return err
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.ran = append(r.ran, task.Video.ID)
	r.mu.Unlock()

	if err, ok := r.failing[task.Video.ID]; ok {
		return err
	}
	return nil
}

func (r *fakeRunner) ranIDs() []domain.VideoID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.VideoID(nil), r.ran...)
}

func newOrchestrator(resolver PlaylistResolver, runner TaskRunner) *Orchestrator {
	return New(resolver, runner, nil, config.WorkerConfig{MaxWorkers: 3}, testLogger())
}

func readStateFile(t *testing.T, dir string) domain.DownloadState {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, resume.StateFileName))
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	var state domain.DownloadState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("parse state file: %v", err)
	}
	return state
}

func TestDownloadPlaylist_MixedOutcomes(t *testing.T) {
	resolver := playlistOf("vid00000001", "vid00000002", "vid00000003")
	runner := &fakeRunner{failing: map[domain.VideoID]error{
		"vid00000002": fmt.Errorf("download failed after 3 attempts"),
	}}
	o := newOrchestrator(resolver, runner)
	dir := t.TempDir()

	result, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
		OutputDir:  dir,
		MaxWorkers: 3,
		Resume:     true,
	})
	if err != nil {
		t.Fatalf("DownloadPlaylist: %v", err)
	}

	wantCompleted := []domain.VideoID{"vid00000001", "vid00000003"}
	wantFailed := []domain.VideoID{"vid00000002"}
	if !reflect.DeepEqual(result.Completed, wantCompleted) {
		t.Errorf("Completed = %v, want %v", result.Completed, wantCompleted)
	}
	if !reflect.DeepEqual(result.Failed, wantFailed) {
		t.Errorf("Failed = %v, want %v", result.Failed, wantFailed)
	}

	state := readStateFile(t, dir)
	if !reflect.DeepEqual(state.Completed, wantCompleted) || !reflect.DeepEqual(state.Failed, wantFailed) {
		t.Errorf("state file = %+v", state)
	}
}

func TestDownloadPlaylist_ResumeSkipsCompleted(t *testing.T) {
	dir := t.TempDir()
	seed := resume.Fresh(dir)
	seed.Record("vid00000001", resume.OutcomeSucceeded)
	if err := seed.Flush(); err != nil {
		t.Fatal(err)
	}

	resolver := playlistOf("vid00000001", "vid00000002", "vid00000003")
	runner := &fakeRunner{}
	o := newOrchestrator(resolver, runner)

	result, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
		OutputDir:  dir,
		MaxWorkers: 3,
		Resume:     true,
	})
	if err != nil {
		t.Fatalf("DownloadPlaylist: %v", err)
	}

	ran := runner.ranIDs()
	for _, id := range ran {
		if id == "vid00000001" {
			t.Error("completed video was re-downloaded despite resume")
		}
	}
	if len(ran) != 2 {
		t.Errorf("ran %d videos, want 2", len(ran))
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	// The prior completion still shows in the final state.
	if !reflect.DeepEqual(result.Completed, []domain.VideoID{"vid00000001", "vid00000002", "vid00000003"}) {
		t.Errorf("Completed = %v", result.Completed)
	}
}

func TestDownloadPlaylist_NoResumeReattemptsAll(t *testing.T) {
	dir := t.TempDir()
	seed := resume.Fresh(dir)
	seed.Record("vid00000001", resume.OutcomeSucceeded)
	if err := seed.Flush(); err != nil {
		t.Fatal(err)
	}

	resolver := playlistOf("vid00000001", "vid00000002")
	runner := &fakeRunner{}
	o := newOrchestrator(resolver, runner)

	result, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
		OutputDir:  dir,
		MaxWorkers: 3,
		Resume:     false,
	})
	if err != nil {
		t.Fatalf("DownloadPlaylist: %v", err)
	}
	if len(runner.ranIDs()) != 2 {
		t.Errorf("ran %d videos, want 2 (resume disabled)", len(runner.ranIDs()))
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", result.Skipped)
	}
}

func TestDownloadPlaylist_WorkerBounds(t *testing.T) {
	resolver := playlistOf("vid00000001")
	o := newOrchestrator(resolver, &fakeRunner{})

	for _, workers := range []int{-1, 0, 11, 100} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			_, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
				OutputDir:  t.TempDir(),
				MaxWorkers: workers,
			})
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error = %v, want *ConfigurationError", err)
			}
		})
	}
}

func TestDownloadPlaylist_ZeroWorkersRejected(t *testing.T) {
	resolver := playlistOf("vid00000001")
	runner := &fakeRunner{}
	o := newOrchestrator(resolver, runner)

	_, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
		OutputDir:  t.TempDir(),
		MaxWorkers: 0,
	})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigurationError", err)
	}
	if len(runner.ranIDs()) != 0 {
		t.Error("no downloads should start with an invalid worker count")
	}
}

func TestDefaultWorkers(t *testing.T) {
	o := newOrchestrator(playlistOf(), &fakeRunner{})
	if got := o.DefaultWorkers(); got != 3 {
		t.Errorf("DefaultWorkers() = %d, want 3", got)
	}
}

func TestDownloadPlaylist_ConcurrencyBounded(t *testing.T) {
	ids := make([]domain.VideoID, 8)
	for i := range ids {
		ids[i] = domain.VideoID(fmt.Sprintf("vid%08d", i))
	}
	resolver := playlistOf(ids...)
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	o := newOrchestrator(resolver, runner)

	if _, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
		OutputDir:  t.TempDir(),
		MaxWorkers: 2,
	}); err != nil {
		t.Fatalf("DownloadPlaylist: %v", err)
	}
	if peak := atomic.LoadInt32(&runner.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestDownloadPlaylist_InterruptPersistsFinishedWork(t *testing.T) {
	resolver := playlistOf("vid00000001", "vid00000002")
	ctx, cancel := context.WithCancel(context.Background())

	firstDone := make(chan struct{})
	runner := &fakeRunner{
		onStart: func(id domain.VideoID, ctx context.Context) error {
			if id == "vid00000002" {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}
	o := newOrchestrator(resolver, runner)
	dir := t.TempDir()

	sink := &collectingSink{}
	go func() {
		// Cancel once the first video reports a terminal status.
		for {
			for _, e := range sink.events() {
				if e.Video == "vid00000001" && e.Status == domain.TaskCompleted {
					close(firstDone)
					cancel()
					return
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	_, err := o.DownloadPlaylist(ctx, testRef(), Options{
		OutputDir:  dir,
		MaxWorkers: 2,
		Resume:     true,
		Progress:   sink,
	})
	<-firstDone
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	// The finished video is durable; the interrupted one is absent so the
	// next run picks it up.
	state := readStateFile(t, dir)
	if !reflect.DeepEqual(state.Completed, []domain.VideoID{"vid00000001"}) {
		t.Errorf("Completed = %v, want [vid00000001]", state.Completed)
	}
	for _, id := range state.Failed {
		if id == "vid00000002" {
			t.Error("interrupted video must not be marked failed")
		}
	}
}

func TestDownloadPlaylist_ResolutionErrorPropagates(t *testing.T) {
	resolver := &fakeResolver{err: domain.NewResolutionError("PLtest12345678", "playlist is empty, private, or unavailable", nil)}
	runner := &fakeRunner{}
	o := newOrchestrator(resolver, runner)

	_, err := o.DownloadPlaylist(context.Background(), testRef(), Options{OutputDir: t.TempDir(), MaxWorkers: 3})
	var resErr *domain.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error = %v, want *ResolutionError", err)
	}
	if len(runner.ranIDs()) != 0 {
		t.Error("no downloads should start when resolution fails")
	}
}

type collectingSink struct {
	mu sync.Mutex
	ev []ProgressEvent
}

func (s *collectingSink) Notify(e ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ev = append(s.ev, e)
}

func (s *collectingSink) events() []ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProgressEvent(nil), s.ev...)
}

func TestDownloadPlaylist_ProgressTransitions(t *testing.T) {
	resolver := playlistOf("vid00000001", "vid00000002")
	runner := &fakeRunner{failing: map[domain.VideoID]error{
		"vid00000002": fmt.Errorf("boom"),
	}}
	o := newOrchestrator(resolver, runner)
	sink := &collectingSink{}

	if _, err := o.DownloadPlaylist(context.Background(), testRef(), Options{
		OutputDir:  t.TempDir(),
		MaxWorkers: 3,
		Progress:   sink,
	}); err != nil {
		t.Fatalf("DownloadPlaylist: %v", err)
	}

	terminal := make(map[domain.VideoID]domain.TaskStatus)
	starts := make(map[domain.VideoID]int)
	for _, e := range sink.events() {
		switch e.Status {
		case domain.TaskDownloading:
			starts[e.Video]++
		case domain.TaskCompleted, domain.TaskFailed:
			terminal[e.Video] = e.Status
		}
	}
	if starts["vid00000001"] != 1 || starts["vid00000002"] != 1 {
		t.Errorf("starts = %v, want one per video", starts)
	}
	if terminal["vid00000001"] != domain.TaskCompleted {
		t.Errorf("vid00000001 terminal = %v", terminal["vid00000001"])
	}
	if terminal["vid00000002"] != domain.TaskFailed {
		t.Errorf("vid00000002 terminal = %v", terminal["vid00000002"])
	}
}

func TestDownloadVideo_RecordsOutcome(t *testing.T) {
	runner := &fakeRunner{}
	o := newOrchestrator(&fakeResolver{}, runner)
	dir := t.TempDir()

	result, err := o.DownloadVideo(context.Background(), domain.VideoRef{ID: "vid00000001"}, Options{
		OutputDir:  dir,
		MaxWorkers: 1,
		Resume:     true,
	})
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if !reflect.DeepEqual(runner.ranIDs(), []domain.VideoID{"vid00000001"}) {
		t.Errorf("ran = %v, want [vid00000001]", runner.ranIDs())
	}
	if !reflect.DeepEqual(result.Completed, []domain.VideoID{"vid00000001"}) {
		t.Errorf("Completed = %v, want [vid00000001]", result.Completed)
	}

	state := readStateFile(t, dir)
	if !reflect.DeepEqual(state.Completed, []domain.VideoID{"vid00000001"}) {
		t.Errorf("state file = %+v", state)
	}
}

func TestDownloadVideo_ResumeSkipsCompleted(t *testing.T) {
	dir := t.TempDir()
	seed := resume.Fresh(dir)
	seed.Record("vid00000001", resume.OutcomeSucceeded)
	if err := seed.Flush(); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	o := newOrchestrator(&fakeResolver{}, runner)

	result, err := o.DownloadVideo(context.Background(), domain.VideoRef{ID: "vid00000001"}, Options{
		OutputDir:  dir,
		MaxWorkers: 1,
		Resume:     true,
	})
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if len(runner.ranIDs()) != 0 {
		t.Error("completed video was re-downloaded despite resume")
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
}

func TestDownloadVideo_ZeroWorkersRejected(t *testing.T) {
	runner := &fakeRunner{}
	o := newOrchestrator(&fakeResolver{}, runner)

	_, err := o.DownloadVideo(context.Background(), domain.VideoRef{ID: "vid00000001"}, Options{
		OutputDir:  t.TempDir(),
		MaxWorkers: 0,
	})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigurationError", err)
	}
	if len(runner.ranIDs()) != 0 {
		t.Error("no download should start with an invalid worker count")
	}
}
