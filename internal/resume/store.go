// Package resume persists which playlist items have already succeeded or
// permanently failed, so an interrupted run can skip completed work.
package resume

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// StateFileName is the per-output-directory resume state file.
const StateFileName = ".ytsnap_state.json"

// Outcome is the terminal result of one video download.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Store owns the durable download state for one output directory and
// serializes all mutation. Completed and failed sets stay disjoint; a video
// recorded completed is never re-attempted while this state file governs
// the directory.
type Store struct {
	path string

	mu        sync.Mutex
	completed map[domain.VideoID]struct{}
	failed    map[domain.VideoID]struct{}
}

// Load opens the store backed by the state file in dir. A missing or
// malformed file is treated as empty state, never a fatal error —
// resumability degrades gracefully instead of blocking the user.
func Load(dir string) *Store {
	s := newStore(dir)

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}
	var state domain.DownloadState
	if err := json.Unmarshal(data, &state); err != nil {
		return s
	}
	for _, id := range state.Completed {
		s.completed[id] = struct{}{}
	}
	for _, id := range state.Failed {
		if _, dup := s.completed[id]; !dup {
			s.failed[id] = struct{}{}
		}
	}
	return s
}

// Fresh opens an empty store for dir, ignoring any existing state file.
// Used when resume is disabled; the first Flush overwrites prior state.
func Fresh(dir string) *Store {
	return newStore(dir)
}

func newStore(dir string) *Store {
	return &Store{
		path:      filepath.Join(dir, StateFileName),
		completed: make(map[domain.VideoID]struct{}),
		failed:    make(map[domain.VideoID]struct{}),
	}
}

// Path returns the backing state file path.
func (s *Store) Path() string {
	return s.path
}

// IsCompleted reports whether a video is already marked completed.
func (s *Store) IsCompleted(id domain.VideoID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[id]
	return ok
}

// Record folds one outcome into the state. A success clears any prior
// failure mark and vice versa, keeping the sets disjoint.
func (s *Store) Record(id domain.VideoID, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome == OutcomeSucceeded {
		s.completed[id] = struct{}{}
		delete(s.failed, id)
	} else {
		if _, done := s.completed[id]; !done {
			s.failed[id] = struct{}{}
		}
	}
}

// Snapshot returns the current state with both sets sorted.
func (s *Store) Snapshot() domain.DownloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.DownloadState{
		Completed: sortedIDs(s.completed),
		Failed:    sortedIDs(s.failed),
	}
}

// Flush persists the state atomically: the JSON is written to a temporary
// file in the same directory and renamed over the target, so a crash
// mid-write never corrupts the previous valid state.
func (s *Store) Flush() error {
	// The write happens under the lock so two workers finishing at the
	// same time never interleave a partial state file.
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.DownloadState{
		Completed: sortedIDs(s.completed),
		Failed:    sortedIDs(s.failed),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func sortedIDs(set map[domain.VideoID]struct{}) []domain.VideoID {
	ids := make([]domain.VideoID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
