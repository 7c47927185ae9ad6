package orchestrator

import (
	"fmt"
	"io"
	"sync"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// ProgressEvent is one task status transition.
type ProgressEvent struct {
	Video  domain.VideoID
	Title  string
	Index  int
	Total  int
	Status domain.TaskStatus
	Err    error
}

// ProgressSink receives task status transitions. Implementations must be
// safe for concurrent use; workers notify from multiple goroutines.
type ProgressSink interface {
	Notify(event ProgressEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Notify(ProgressEvent) {}

// ConsoleSink writes one line per transition, serialized so concurrent
// workers never interleave output.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (s *ConsoleSink) Notify(e ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Status {
	case domain.TaskDownloading:
		fmt.Fprintf(s.out, "[%d/%d] downloading %s (%s)\n", e.Index, e.Total, e.Title, e.Video)
	case domain.TaskCompleted:
		fmt.Fprintf(s.out, "[%d/%d] done %s\n", e.Index, e.Total, e.Title)
	case domain.TaskFailed:
		fmt.Fprintf(s.out, "[%d/%d] FAILED %s: %v\n", e.Index, e.Total, e.Title, e.Err)
	}
}
