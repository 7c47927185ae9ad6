package domain

// StreamFormat describes one encoded stream variant of a video. Instances
// are produced fresh per metadata call and never mutated; the itag is unique
// within the set returned for a single video.
type StreamFormat struct {
	Itag          int
	QualityLabel  string
	MimeType      string
	HasVideo      bool
	HasAudio      bool
	URL           string
	ContentLength int64
}
