package gemini

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"groundwork/internal/fault"
)

// fakeCaller scripts provider behavior per call.
type fakeCaller struct {
	calls   [][]string
	results []func(texts []string) ([][]float32, error)
}

func (f *fakeCaller) embedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if len(f.results) == 0 {
		return vectorsFor(texts, 4), nil
	}
	fn := f.results[0]
	f.results = f.results[1:]
	return fn(texts)
}

func vectorsFor(texts []string, dims int) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, dims)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out
}

func testOptions() Options {
	return Options{BatchSize: 2, Dimensions: 4, MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestEmbedBatch(t *testing.T) {
	t.Run("Splits Into Bounded Calls Preserving Order", func(t *testing.T) {
		caller := &fakeCaller{}
		e := newBatchedEmbedder(caller, testOptions())

		vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
		require.NoError(t, err)
		require.Len(t, vecs, 5)
		require.Len(t, caller.calls, 3)
		assert.Equal(t, []string{"a", "b"}, caller.calls[0])
		assert.Equal(t, []string{"c", "d"}, caller.calls[1])
		assert.Equal(t, []string{"e"}, caller.calls[2])

		// Order within each provider call is preserved 1:1.
		assert.Equal(t, float32(1), vecs[0][0])
		assert.Equal(t, float32(2), vecs[1][0])
		assert.Equal(t, float32(1), vecs[2][0])
	})

	t.Run("Count Mismatch Is Protocol Violation", func(t *testing.T) {
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func(texts []string) ([][]float32, error) {
				return vectorsFor(texts[:len(texts)-1], 4), nil
			},
		}}
		opts := testOptions()
		opts.BatchSize = 6
		e := newBatchedEmbedder(caller, opts)

		_, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e", "f"})
		assert.ErrorIs(t, err, fault.ErrProtocolViolation)
		// Mismatch is never retried.
		assert.Len(t, caller.calls, 1)
	})

	t.Run("Transient Errors Retry Then Succeed", func(t *testing.T) {
		transient := &googleapi.Error{Code: 429, Message: "rate limited"}
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func([]string) ([][]float32, error) { return nil, transient },
			func([]string) ([][]float32, error) { return nil, transient },
			func(texts []string) ([][]float32, error) { return vectorsFor(texts, 4), nil },
		}}
		e := newBatchedEmbedder(caller, testOptions())

		vecs, err := e.EmbedBatch(context.Background(), []string{"a"})
		require.NoError(t, err)
		assert.Len(t, vecs, 1)
		assert.Len(t, caller.calls, 3)
	})

	t.Run("Exhausted Retries Surface ProviderExhausted", func(t *testing.T) {
		transient := &googleapi.Error{Code: 503, Message: "unavailable"}
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func([]string) ([][]float32, error) { return nil, transient },
			func([]string) ([][]float32, error) { return nil, transient },
			func([]string) ([][]float32, error) { return nil, transient },
		}}
		e := newBatchedEmbedder(caller, testOptions())

		_, err := e.EmbedBatch(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, fault.ErrProviderExhausted)
		assert.Len(t, caller.calls, 3)
	})

	t.Run("Non Transient Error Propagates Without Retry", func(t *testing.T) {
		fatal := &googleapi.Error{Code: 401, Message: "unauthorized"}
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func([]string) ([][]float32, error) { return nil, fatal },
		}}
		e := newBatchedEmbedder(caller, testOptions())

		_, err := e.EmbedBatch(context.Background(), []string{"a"})
		assert.ErrorContains(t, err, "unauthorized")
		assert.NotErrorIs(t, err, fault.ErrProviderExhausted)
		assert.Len(t, caller.calls, 1)
	})

	t.Run("Wide Vector Truncated And Renormalized", func(t *testing.T) {
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func(texts []string) ([][]float32, error) {
				return [][]float32{{3, 4, 0, 0, 9, 9, 9, 9}}, nil
			},
		}}
		opts := testOptions() // Dimensions: 4
		e := newBatchedEmbedder(caller, opts)

		vecs, err := e.EmbedBatch(context.Background(), []string{"a"})
		require.NoError(t, err)
		require.Len(t, vecs[0], 4)
		// {3,4,0,0} has norm 5; renormalized to unit length.
		assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
		assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	})

	t.Run("Narrow Vector Is Configuration Error", func(t *testing.T) {
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func([]string) ([][]float32, error) {
				return [][]float32{{1, 2}}, nil
			},
		}}
		e := newBatchedEmbedder(caller, testOptions())

		_, err := e.EmbedBatch(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})

	t.Run("Empty Input Is A No Op", func(t *testing.T) {
		caller := &fakeCaller{}
		e := newBatchedEmbedder(caller, testOptions())

		vecs, err := e.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
		assert.Empty(t, caller.calls)
	})

	t.Run("Cancelled Context Stops Retrying", func(t *testing.T) {
		transient := fmt.Errorf("wrapped: %w", fault.ErrTransientProvider)
		caller := &fakeCaller{results: []func([]string) ([][]float32, error){
			func([]string) ([][]float32, error) { return nil, transient },
			func([]string) ([][]float32, error) { return nil, transient },
		}}
		opts := testOptions()
		opts.Backoff = time.Hour
		e := newBatchedEmbedder(caller, opts)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := e.EmbedBatch(ctx, []string{"a"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, caller.calls, 1)
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&googleapi.Error{Code: 429}))
	assert.True(t, isTransient(&googleapi.Error{Code: 503}))
	assert.False(t, isTransient(&googleapi.Error{Code: 400}))
	assert.False(t, isTransient(&googleapi.Error{Code: 401}))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.True(t, isTransient(fault.ErrTransientProvider))
	assert.False(t, isTransient(fmt.Errorf("boom")))
}
