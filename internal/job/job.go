// Package job defines the domain model shared by the scheduler, worker
// pool, and job processor: the server-owned Job and Asset records and the
// transient AudioChunk produced by media segmentation.
package job

import "time"

// Status represents the server-visible state of a Job.
// Wire representation is lowercase snake_case, matching the Asset API.
type Status string

const (
	// StatusCreated is the initial state assigned by the server.
	StatusCreated Status = "created"
	// StatusInProgress indicates a worker is currently processing the job.
	StatusInProgress Status = "in_progress"
	// StatusFailed indicates the most recent attempt ended in error.
	StatusFailed Status = "failed"
	// StatusStuck indicates the fetcher reclaimed the job from a worker
	// that stopped heartbeating.
	StatusStuck Status = "stuck"
	// StatusMaxAttemptsExceeded is terminal: attempts >= MaxAttempts.
	StatusMaxAttemptsExceeded Status = "max_attempts_exceeded"
	// StatusCompleted is terminal: the job finished successfully.
	StatusCompleted Status = "completed"
)

// IsKnown reports whether s is one of the statuses this service
// understands. Unknown values are logged and skipped by the scheduler,
// never acted upon.
func (s Status) IsKnown() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusFailed, StatusStuck,
		StatusMaxAttemptsExceeded, StatusCompleted:
		return true
	default:
		return false
	}
}

// FileType is the asset's content classification, used by the job
// processor to select a dispatch path.
type FileType string

// Recognized asset file types. Anything else is unsupported.
const (
	FileTypeText     FileType = "text"
	FileTypeMarkdown FileType = "markdown"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
)

// Job is the server-owned record describing a unit of asset-processing
// work. It is refetched on every scheduler poll; this service never
// persists it beyond the lifetime of the process.
type Job struct {
	ID            string    `json:"id" validate:"required"`
	AssetID       string    `json:"assetId" validate:"required"`
	Status        Status    `json:"status" validate:"required"`
	Attempts      int       `json:"attempts" validate:"gte=0"`
	LastHeartBeat time.Time `json:"lastHeartBeat"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Asset is the media artifact a job operates on.
type Asset struct {
	ID       string   `json:"id" validate:"required"`
	FileName string   `json:"fileName" validate:"required"`
	FileURL  string   `json:"fileUrl" validate:"required"`
	FileType FileType `json:"fileType" validate:"required"`
	MimeType string   `json:"mimeType"`
	Size     int64    `json:"size"`
	Content  string   `json:"content,omitempty"`
}

// AudioChunk is a transient, size-bounded MP3 segment produced by the
// media segmenter. Order is ascending Index; FileName carries a
// zero-padded index so lexicographic and temporal order agree up to
// 1000 chunks.
type AudioChunk struct {
	FileName string
	Index    int
	Size     int64
	Data     []byte
}

// JobUpdate is a sparse set of fields to apply via PatchJob. Nil/zero
// fields are omitted from the request; only Status is required.
type JobUpdate struct {
	Status        Status
	ErrorMessage  *string
	Attempts      *int
	LastHeartBeat *time.Time
}
