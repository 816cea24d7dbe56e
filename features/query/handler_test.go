package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundwork/internal/fault"
	"groundwork/internal/retrieval"
)

type fakeEngine struct {
	answer *retrieval.Answer
	err    error
	seen   retrieval.AskRequest
}

func (f *fakeEngine) Answer(_ context.Context, req retrieval.AskRequest) (*retrieval.Answer, error) {
	f.seen = req
	return f.answer, f.err
}

func TestAsk_Success(t *testing.T) {
	engine := &fakeEngine{answer: &retrieval.Answer{
		Answer: "42",
		Sources: []retrieval.Source{
			{Text: "ctx", Source: "https://a.example", Score: 0.9},
		},
		Metadata: retrieval.AnswerMetadata{Retrieved: 1, Grounded: true},
	}}
	h := NewHandler(engine)

	body := `{"question":"what?","top_k":3,"min_score":0.5,"filters":{"source":"https://a.example"},"include_metadata":true}`
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Ask(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what?", engine.seen.Question)
	assert.Equal(t, 3, engine.seen.TopK)
	require.NotNil(t, engine.seen.MinScore)
	assert.InDelta(t, 0.5, float64(*engine.seen.MinScore), 1e-6)
	assert.True(t, engine.seen.IncludeMetadata)
	assert.Equal(t, "https://a.example", engine.seen.Filters["source"])

	var resp struct {
		Data retrieval.Answer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Data.Answer)
	require.Len(t, resp.Data.Sources, 1)
	assert.True(t, resp.Data.Metadata.Grounded)
}

func TestAsk_BadJSON(t *testing.T) {
	h := NewHandler(&fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()

	h.Ask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestAsk_ValidationError(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("%w: question is required", fault.ErrValidation)}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":""}`))
	rec := httptest.NewRecorder()

	h.Ask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question is required")
}

func TestAsk_TransientUpstream(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("embed question: %w", fault.ErrTransientProvider)}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()

	h.Ask(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPSTREAM_UNAVAILABLE")
}

func TestAsk_InternalError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("boom")}
	h := NewHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()

	h.Ask(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
