package job

import (
	"errors"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrAlreadyClaimed means a claim lost the race: the job is already
// processing or terminal.
var ErrAlreadyClaimed = errors.New("job already claimed")

// Job tracks one source through fetch/chunk/embed/index.
//
// processed_chunks never decreases and never exceeds chunk_count;
// chunk_count is written exactly once, when chunking finishes; status
// never regresses from completed or failed.
type Job struct {
	ID              string            `json:"job_id"`
	Source          string            `json:"source"`
	Status          string            `json:"status"`
	ChunkCount      int               `json:"chunk_count"`
	ProcessedChunks int               `json:"processed_chunks"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ProcessingTime  *float64          `json:"processing_time_seconds,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
