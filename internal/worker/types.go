package worker

import (
	"context"

	"groundwork/features/job"
)

// Record is one (vector, payload) pair bound for the index. The payload
// fields are copied verbatim from the owning job.
type Record struct {
	JobID      string
	Source     string
	ChunkIndex int
	Text       string
	Metadata   map[string]string
	Vector     []float32
}

// Fetcher retrieves the textual content of a source locator.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Embedder converts a text batch into fixed-width vectors, order-preserving
// 1:1. Transient provider failures are retried internally.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex upserts records idempotently by (job id, chunk index).
type VectorIndex interface {
	UpsertBatch(ctx context.Context, records []Record) error
}

// JobStore is the durable job state machine the orchestrator drives.
// Claim must be exclusive: of N concurrent claimants, exactly one wins.
type JobStore interface {
	Claim(ctx context.Context, id string) (*job.Job, error)
	SetChunkCount(ctx context.Context, id string, count int) error
	AddProcessed(ctx context.Context, id string, delta int) error
	Complete(ctx context.Context, id string, seconds float64) error
	Fail(ctx context.Context, id string, cause string) error
}
