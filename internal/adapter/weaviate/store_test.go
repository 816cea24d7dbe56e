package weaviate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"groundwork/internal/fault"
	"groundwork/internal/retrieval"
	"groundwork/internal/worker"
)

func TestUpsertBatch_DimensionGuard(t *testing.T) {
	s := NewStore(nil, 4)

	// Rejected before any provider call, so no client is needed.
	err := s.UpsertBatch(context.Background(), []worker.Record{
		{JobID: "job-1", ChunkIndex: 0, Vector: []float32{1, 2}},
	})
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestUpsertBatch_EmptyIsNoOp(t *testing.T) {
	s := NewStore(nil, 4)
	assert.NoError(t, s.UpsertBatch(context.Background(), nil))
}

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("job-1", 0)
	b := ChunkID("job-1", 0)
	assert.Equal(t, a, b, "same (job, index) must map to the same object id")

	assert.NotEqual(t, a, ChunkID("job-1", 1))
	assert.NotEqual(t, a, ChunkID("job-2", 0))

	// Index must not bleed into the job id part of the key.
	assert.NotEqual(t, ChunkID("job-1/2", 3), ChunkID("job-1", 23))
}

func TestFilterPath(t *testing.T) {
	assert.Equal(t, "jobId", filterPath("job_id"))
	assert.Equal(t, "source", filterPath("source"))
	assert.Equal(t, "chunkIndex", filterPath("chunk_index"))
	assert.Equal(t, "meta_team", filterPath("metadata.team"))
	assert.Equal(t, "meta_team", filterPath("team"))
}

func TestBuildWhere(t *testing.T) {
	assert.Nil(t, buildWhere(nil))
	assert.Nil(t, buildWhere(map[string]interface{}{}))

	single := buildWhere(map[string]interface{}{"source": "https://a.example"})
	require.NotNil(t, single)

	multi := buildWhere(map[string]interface{}{
		"source":      "https://a.example",
		"chunk_index": float64(3),
	})
	require.NotNil(t, multi)
}

func TestDecodeMatches(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]interface{}{
			"ContentChunk": []interface{}{
				map[string]interface{}{
					"content":      "alpha",
					"jobId":        "job-1",
					"source":       "https://a.example",
					"chunkIndex":   float64(2),
					"metadataJson": `{"team":"docs"}`,
					"_additional":  map[string]interface{}{"distance": 0.25},
				},
			},
		},
	}

	matches := decodeMatches(data)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "alpha", m.Text)
	assert.Equal(t, "job-1", m.JobID)
	assert.Equal(t, "https://a.example", m.Source)
	assert.Equal(t, 2, m.ChunkIndex)
	assert.Equal(t, map[string]string{"team": "docs"}, m.Metadata)
	assert.InDelta(t, 0.75, float64(m.Score), 1e-6)
}

func TestDecodeMatches_MalformedPayload(t *testing.T) {
	assert.Empty(t, decodeMatches(map[string]models.JSONObject{}))
	assert.Empty(t, decodeMatches(map[string]models.JSONObject{"Get": "nope"}))
}

func TestSortMatches(t *testing.T) {
	matches := []retrieval.Match{
		{Source: "b", ChunkIndex: 1, Score: 0.5},
		{Source: "a", ChunkIndex: 1, Score: 0.5},
		{Source: "a", ChunkIndex: 0, Score: 0.5},
		{Source: "z", ChunkIndex: 9, Score: 0.9},
	}

	sortMatches(matches)

	assert.Equal(t, float32(0.9), matches[0].Score)
	assert.Equal(t, 0, matches[1].ChunkIndex)
	assert.Equal(t, "a", matches[2].Source)
	assert.Equal(t, "b", matches[3].Source)
}
