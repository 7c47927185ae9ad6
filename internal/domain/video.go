package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// VideoID is the platform's unique identifier for a video.
type VideoID string

// String returns the string representation of the VideoID.
func (id VideoID) String() string {
	return string(id)
}

// VideoRef identifies a single video to download.
type VideoRef struct {
	ID VideoID
}

// PlaylistRef identifies a playlist to download.
type PlaylistRef struct {
	ID string
}

// PlaylistInfo is the resolved metadata of a playlist.
type PlaylistInfo struct {
	Ref        PlaylistRef
	Title      string
	Author     string
	VideoCount int
	Videos     []PlaylistItem
}

// PlaylistItem is one entry of a resolved playlist, in playlist order.
type PlaylistItem struct {
	Video VideoRef
	Title string
}

var (
	videoIDPattern    = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	playlistIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{13,}$`)
)

// ParseVideoRef extracts a VideoRef from a bare ID or any of the accepted
// URL shapes (watch URL, embed URL, youtu.be short link).
func ParseVideoRef(input string) (VideoRef, error) {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return VideoRef{ID: VideoID(input)}, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return VideoRef{}, NewResolutionError(input, "not a valid video ID or URL", err)
	}

	var candidate string
	switch {
	case u.Query().Get("v") != "":
		candidate = u.Query().Get("v")
	case strings.Contains(u.Path, "/embed/"):
		candidate = u.Path[strings.Index(u.Path, "/embed/")+len("/embed/"):]
	case u.Host == "youtu.be":
		candidate = strings.TrimPrefix(u.Path, "/")
	}
	if i := strings.IndexAny(candidate, "/?&"); i >= 0 {
		candidate = candidate[:i]
	}

	if !videoIDPattern.MatchString(candidate) {
		return VideoRef{}, NewResolutionError(input, "not a valid video ID or URL", nil)
	}
	return VideoRef{ID: VideoID(candidate)}, nil
}

// ParsePlaylistRef extracts a PlaylistRef from a bare playlist ID, a playlist
// URL, or a watch URL carrying a list parameter. All accepted shapes
// referencing the same playlist ID yield an identical PlaylistRef.
func ParsePlaylistRef(input string) (PlaylistRef, error) {
	// Shells sometimes escape the query separator; strip backslashes first.
	input = strings.ReplaceAll(strings.TrimSpace(input), `\`, "")

	if playlistIDPattern.MatchString(input) {
		return PlaylistRef{ID: input}, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return PlaylistRef{}, NewResolutionError(input, "not a valid playlist ID or URL", err)
	}

	id := u.Query().Get("list")
	if !playlistIDPattern.MatchString(id) {
		return PlaylistRef{}, NewResolutionError(input, "not a valid playlist ID or URL", nil)
	}
	return PlaylistRef{ID: id}, nil
}
