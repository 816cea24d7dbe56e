package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"groundwork/features/job"
	"groundwork/internal/fault"
	"groundwork/internal/text"
)

const (
	// Per-batch budgets for external calls. The embed budget covers the
	// gateway's internal retries, so it is deliberately generous.
	embedTimeout  = 2 * time.Minute
	upsertTimeout = 30 * time.Second
)

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	FetchTimeout time.Duration
	// JobTimeout bounds a whole job; its cancellation propagates into
	// every external call.
	JobTimeout time.Duration
}

// Orchestrator drives one ingestion job through its state machine:
// claim → fetch → chunk → batch embed → index → finalize. Any unrecoverable
// error after the claim records the cause on the job and halts that job
// only; vectors indexed by earlier batches stay visible.
type Orchestrator struct {
	store    JobStore
	fetcher  Fetcher
	embedder Embedder
	index    VectorIndex
	cfg      Config
}

func NewOrchestrator(store JobStore, fetcher Fetcher, embedder Embedder, index VectorIndex, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	return &Orchestrator{store: store, fetcher: fetcher, embedder: embedder, index: index, cfg: cfg}
}

// Process runs a single job to a terminal state. Claim conflicts and
// unknown ids return nil: both mean the message has nothing left to do,
// and redelivered queue messages must not disturb the owning worker.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	j, err := o.store.Claim(ctx, jobID)
	if errors.Is(err, job.ErrAlreadyClaimed) {
		slog.InfoContext(ctx, "job already claimed, dropping", "job_id", jobID)
		return nil
	}
	if errors.Is(err, fault.ErrNotFound) {
		slog.WarnContext(ctx, "job reference for unknown job, dropping", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}

	started := time.Now()
	slog.InfoContext(ctx, "job claimed", "job_id", j.ID, "source", j.Source)

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	if err := o.run(jobCtx, j, started); err != nil {
		o.failJob(ctx, j.ID, err)
		return nil
	}

	slog.InfoContext(ctx, "job completed",
		"job_id", j.ID, "duration", time.Since(started))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, j *job.Job, started time.Time) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	content, err := o.fetcher.Fetch(fetchCtx, j.Source)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	pieces := text.Chunk(text.Normalize(content), o.cfg.ChunkSize, o.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return fmt.Errorf("source %s: %w", j.Source, fault.ErrEmptyDocument)
	}

	// Durable before any embedding, so status polling sees true progress.
	if err := o.store.SetChunkCount(ctx, j.ID, len(pieces)); err != nil {
		return fmt.Errorf("set chunk count: %w", err)
	}
	slog.InfoContext(ctx, "job chunked", "job_id", j.ID, "chunks", len(pieces))

	for start := 0; start < len(pieces); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}

		embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
		vectors, err := o.embedder.EmbedBatch(embedCtx, texts)
		cancel()
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}

		records := make([]Record, len(batch))
		for i, p := range batch {
			records[i] = Record{
				JobID:      j.ID,
				Source:     j.Source,
				ChunkIndex: p.Index,
				Text:       p.Text,
				Metadata:   j.Metadata,
				Vector:     vectors[i],
			}
		}

		upsertCtx, cancel := context.WithTimeout(ctx, upsertTimeout)
		err = o.index.UpsertBatch(upsertCtx, records)
		cancel()
		if err != nil {
			return fmt.Errorf("index batch at %d: %w", start, err)
		}

		// Durable before the next batch: a crash mid-job leaves
		// processed_chunks consistent with what is actually searchable.
		if err := o.store.AddProcessed(ctx, j.ID, len(batch)); err != nil {
			return fmt.Errorf("record progress at %d: %w", start, err)
		}
	}

	return o.store.Complete(ctx, j.ID, time.Since(started).Seconds())
}

// failJob records the terminal failure. The parent context is used rather
// than the job context, which may already be expired.
func (o *Orchestrator) failJob(ctx context.Context, jobID string, cause error) {
	slog.ErrorContext(ctx, "job failed", "job_id", jobID, "error", cause)
	if err := o.store.Fail(ctx, jobID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to persist job failure", "job_id", jobID, "error", err)
	}
}
