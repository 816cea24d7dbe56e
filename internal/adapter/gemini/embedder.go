package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"groundwork/internal/fault"
)

// embedCaller is the provider-facing seam: one embedding call for one
// bounded batch. Substituted in tests so batching and retry logic run
// without network.
type embedCaller interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	// BatchSize bounds texts per provider call.
	BatchSize int
	// Dimensions is the deployment-wide vector width. Every vector leaving
	// this gateway has exactly this length.
	Dimensions int
	// MaxAttempts bounds retries per provider call on transient failures.
	MaxAttempts int
	// Backoff is the initial retry delay; it doubles per attempt.
	Backoff time.Duration
}

// BatchedEmbedder converts text batches into fixed-width vectors. Transient
// provider failures are retried with exponential backoff; everything else
// propagates to the caller.
type BatchedEmbedder struct {
	caller embedCaller
	opts   Options
}

func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

func NewBatchedEmbedder(client *genai.Client, model string, opts Options) *BatchedEmbedder {
	return newBatchedEmbedder(&genaiEmbedCaller{client: client, model: model}, opts)
}

func newBatchedEmbedder(caller embedCaller, opts Options) *BatchedEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &BatchedEmbedder{caller: caller, opts: opts}
}

// EmbedBatch embeds texts preserving order 1:1. The input may exceed the
// configured batch size; it is split into sequential provider calls.
func (e *BatchedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[start:end]
		got, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}

		if len(got) != len(batch) {
			return nil, fmt.Errorf("%w: requested %d embeddings, provider returned %d",
				fault.ErrProtocolViolation, len(batch), len(got))
		}

		for i, vec := range got {
			fixed, err := e.enforceWidth(vec)
			if err != nil {
				return nil, fmt.Errorf("embedding %d: %w", start+i, err)
			}
			vectors = append(vectors, fixed)
		}
	}

	return vectors, nil
}

// Embed is the single-text convenience used by the query path.
func (e *BatchedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *BatchedEmbedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	delay := e.opts.Backoff
	var lastErr error

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		got, err := e.caller.embedBatch(ctx, batch)
		if err == nil {
			return got, nil
		}
		if !isTransient(err) {
			return nil, err
		}

		lastErr = err
		slog.WarnContext(ctx, "embedding call failed, will retry",
			"attempt", attempt, "max_attempts", e.opts.MaxAttempts, "error", err)

		if attempt == e.opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return nil, fmt.Errorf("%w: %d attempts: %v", fault.ErrProviderExhausted, e.opts.MaxAttempts, lastErr)
}

// enforceWidth pins a provider vector to the configured dimensionality.
// gemini-embedding-001 vectors are MRL-truncatable: a wider vector keeps
// its leading dimensions and is re-normalized. A narrower vector means the
// deployment is configured for a width the model cannot produce.
func (e *BatchedEmbedder) enforceWidth(vec []float32) ([]float32, error) {
	if e.opts.Dimensions <= 0 || len(vec) == e.opts.Dimensions {
		return vec, nil
	}
	if len(vec) < e.opts.Dimensions {
		return nil, fmt.Errorf("%w: provider returned %d dimensions, %d configured",
			fault.ErrConfiguration, len(vec), e.opts.Dimensions)
	}

	out := make([]float32, e.opts.Dimensions)
	copy(out, vec[:e.opts.Dimensions])

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range out {
			out[i] *= scale
		}
	}
	return out, nil
}

// isTransient classifies provider failures worth retrying: rate limits and
// server-side errors via googleapi, plus timed-out calls.
func isTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return fault.IsTransient(err)
}

type genaiEmbedCaller struct {
	client *genai.Client
	model  string
}

func (c *genaiEmbedCaller) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := c.client.EmbeddingModel(c.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: nil embedding in provider response", fault.ErrProtocolViolation)
		}
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}
