package domain

// TaskStatus represents the current state of a download task.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskDownloading TaskStatus = "downloading"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
)

// DownloadTask is one video download attempt dispatched by the orchestrator.
// Transient: created when dispatched, discarded after the outcome is folded
// into the download state.
type DownloadTask struct {
	Video      VideoRef
	Title      string
	Index      int // 1-based position within the playlist
	Total      int
	TargetPath string
	Quality    string
	Itag       int
	Status     TaskStatus
}

// DownloadState is the durable record of which playlist items have already
// succeeded or permanently failed. Completed and Failed are disjoint.
type DownloadState struct {
	Completed []VideoID `json:"completed"`
	Failed    []VideoID `json:"failed"`
}
