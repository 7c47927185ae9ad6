// Package platform holds filesystem naming helpers for downloaded videos.
package platform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ytsnap/ytsnap/internal/domain"
)

const maxFileNameLen = 180

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots = regexp.MustCompile(`\.+$`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

// SanitizeFileName makes a video title safe to use as a filename on every
// supported platform. Invalid characters become underscores; an empty result
// falls back to "video".
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	if len(name) > maxFileNameLen {
		name = strings.TrimSpace(name[:maxFileNameLen])
	}
	if name == "" {
		return "video"
	}
	return name
}

// TargetPath builds the output path for one playlist item: a zero-padded
// playlist position prefix keeps files sorted in playlist order.
func TargetPath(outputDir string, index int, title string, id domain.VideoID) string {
	name := SanitizeFileName(title)
	if name == "video" && title == "" {
		name = id.String()
	}
	return filepath.Join(outputDir, fmt.Sprintf("%03d_%s.mp4", index, name))
}
