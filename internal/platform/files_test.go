package platform

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "My Video", "My Video"},
		{"path separators", "a/b\\c", "a_b_c"},
		{"reserved characters", `who? "what" <when>`, "who_ _what_ _when_"},
		{"colon and pipe", "part 1: the|sequel", "part 1_ the_sequel"},
		{"trailing dots", "ending...", "ending"},
		{"collapsed whitespace", "too   many\tspaces", "too many spaces"},
		{"control characters", "tab\tand\nnewline", "tab_and_newline"},
		{"empty", "", "video"},
		{"only invalid", "???", "___"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.input); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileName_TruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := SanitizeFileName(long)
	if len(got) > 180 {
		t.Errorf("len = %d, want <= 180", len(got))
	}
}

func TestTargetPath(t *testing.T) {
	got := TargetPath("/out", 7, "My: Video", "dQw4w9WgXcQ")
	want := filepath.Join("/out", "007_My_ Video.mp4")
	if got != want {
		t.Errorf("TargetPath = %q, want %q", got, want)
	}
}

func TestTargetPath_UntitledFallsBackToID(t *testing.T) {
	got := TargetPath("/out", 1, "", "dQw4w9WgXcQ")
	want := filepath.Join("/out", "001_dQw4w9WgXcQ.mp4")
	if got != want {
		t.Errorf("TargetPath = %q, want %q", got, want)
	}
}
