// Package weaviate adapts the external vector-search provider to the
// narrow index contracts used by the ingestion and query pipelines:
// idempotent batch upsert keyed on (job, chunk index) and filtered
// nearest-neighbor search over cosine distance.
package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"groundwork/internal/fault"
	"groundwork/internal/retrieval"
	"groundwork/internal/vector"
	"groundwork/internal/worker"
)

// chunkNamespace seeds the deterministic per-chunk object IDs. Never change
// it: re-ingesting an existing job must hit the same IDs to overwrite.
var chunkNamespace = uuid.MustParse("5f9c6d0a-1f4b-4c8e-9a3d-2b7e8c4f6a10")

type Store struct {
	client     *weaviate.Client
	dimensions int
}

func NewStore(client *weaviate.Client, dimensions int) *Store {
	return &Store{client: client, dimensions: dimensions}
}

// ChunkID derives the stable object ID for a (jobID, chunkIndex) pair.
func ChunkID(jobID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(jobID+"/"+strconv.Itoa(chunkIndex))).String()
}

// UpsertBatch writes records with deterministic IDs, so re-indexing the
// same chunk overwrites rather than duplicates. A vector whose width does
// not match the collection's configured size is rejected before the write.
func (s *Store) UpsertBatch(ctx context.Context, records []worker.Record) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) != s.dimensions {
			return fmt.Errorf("%w: record (%s, %d) has %d dimensions, collection expects %d",
				fault.ErrConfiguration, rec.JobID, rec.ChunkIndex, len(rec.Vector), s.dimensions)
		}

		props := map[string]interface{}{
			"content":    rec.Text,
			"jobId":      rec.JobID,
			"source":     rec.Source,
			"chunkIndex": rec.ChunkIndex,
		}
		if len(rec.Metadata) > 0 {
			raw, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata for (%s, %d): %w", rec.JobID, rec.ChunkIndex, err)
			}
			props["metadataJson"] = string(raw)
			for k, v := range rec.Metadata {
				props["meta_"+k] = v
			}
		}

		objects = append(objects, &models.Object{
			ID:         strfmt.UUID(ChunkID(rec.JobID, rec.ChunkIndex)),
			Class:      vector.ClassName,
			Properties: props,
			Vector:     models.C11yVector(rec.Vector),
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch upsert: %w", err)
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert: object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Search returns up to topK matches by cosine similarity, descending by
// score with ties broken by ascending chunk index then source. Filters
// matching nothing yield an empty result, not an error.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int, filter map[string]interface{}) ([]retrieval.Match, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "jobId"},
		{Name: "source"},
		{Name: "chunkIndex"},
		{Name: "metadataJson"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(near).
		WithLimit(topK).
		WithFields(fields...)

	if where := buildWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("vector search: graphql error: %v", res.Errors[0].Message)
	}

	matches := decodeMatches(res.Data)
	sortMatches(matches)
	return matches, nil
}

// CountChunks reports the total number of indexed records.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("aggregate: %v", res.Errors[0].Message)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := agg[vector.ClassName].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// Ready reports provider connectivity for health checks.
func (s *Store) Ready(ctx context.Context) error {
	ok, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("weaviate not ready")
	}
	return nil
}

// buildWhere maps exact-match filters to a Weaviate where clause.
// Recognized keys: job_id, source, chunk_index; metadata.<key> and any
// other key address the flattened meta_* properties.
func buildWhere(filter map[string]interface{}) *filters.WhereBuilder {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, key := range keys {
		clause := filters.Where().WithPath([]string{filterPath(key)}).WithOperator(filters.Equal)
		switch v := filter[key].(type) {
		case string:
			clause = clause.WithValueString(v)
		case bool:
			clause = clause.WithValueBoolean(v)
		case int:
			clause = clause.WithValueInt(int64(v))
		case int64:
			clause = clause.WithValueInt(v)
		case float64:
			// JSON numbers decode as float64; integral values address int fields.
			if v == float64(int64(v)) {
				clause = clause.WithValueInt(int64(v))
			} else {
				clause = clause.WithValueNumber(v)
			}
		default:
			clause = clause.WithValueString(fmt.Sprintf("%v", v))
		}
		operands = append(operands, clause)
	}

	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func filterPath(key string) string {
	switch key {
	case "job_id":
		return "jobId"
	case "source":
		return "source"
	case "chunk_index":
		return "chunkIndex"
	}
	if rest, ok := strings.CutPrefix(key, "metadata."); ok {
		return "meta_" + rest
	}
	return "meta_" + key
}

func decodeMatches(data map[string]models.JSONObject) []retrieval.Match {
	var matches []retrieval.Match

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return matches
	}
	rows, ok := get[vector.ClassName].([]interface{})
	if !ok {
		return matches
	}

	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}

		var m retrieval.Match
		if content, ok := props["content"].(string); ok {
			m.Text = content
		}
		if jobID, ok := props["jobId"].(string); ok {
			m.JobID = jobID
		}
		if source, ok := props["source"].(string); ok {
			m.Source = source
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			m.ChunkIndex = int(idx)
		}
		if raw, ok := props["metadataJson"].(string); ok && raw != "" {
			meta := map[string]string{}
			if err := json.Unmarshal([]byte(raw), &meta); err == nil {
				m.Metadata = meta
			}
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// Cosine distance in [0,2]; similarity score = 1 - distance.
				m.Score = float32(1 - distance)
			}
		}

		matches = append(matches, m)
	}
	return matches
}

// sortMatches enforces the deterministic result order: score descending,
// chunk index ascending, source ascending.
func sortMatches(matches []retrieval.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].ChunkIndex != matches[j].ChunkIndex {
			return matches[i].ChunkIndex < matches[j].ChunkIndex
		}
		return matches[i].Source < matches[j].Source
	})
}
