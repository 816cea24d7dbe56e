// Package retrieval implements the query-time pipeline: embed the
// question, retrieve candidate chunks, assemble a bounded context window
// and request grounded generation.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"groundwork/internal/fault"
	"groundwork/internal/middleware"
)

// NoContextAnswer is the fixed response when retrieval yields no sources.
// The engine short-circuits instead of generating ungrounded text; the
// policy is deterministic and covered by tests.
const NoContextAnswer = "No relevant context was found to answer this question."

const contextSeparator = "\n\n---\n\n"

// Match is one retrieval candidate with its similarity score.
type Match struct {
	Text       string
	Source     string
	JobID      string
	ChunkIndex int
	Score      float32
	Metadata   map[string]string
}

// Source is a retained match as returned to the caller.
type Source struct {
	Text       string            `json:"text"`
	Source     string            `json:"source"`
	JobID      string            `json:"job_id"`
	ChunkIndex int               `json:"chunk_index"`
	Score      float32           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type AskRequest struct {
	Question        string
	TopK            int
	MinScore        *float32
	Filters         map[string]interface{}
	IncludeMetadata bool
}

type AnswerMetadata struct {
	EmbeddingModel  string `json:"embedding_model"`
	GenerationModel string `json:"generation_model,omitempty"`
	Retrieved       int    `json:"retrieved"`
	Grounded        bool   `json:"grounded"`
	LatencyMs       int64  `json:"latency_ms"`
}

type Answer struct {
	Answer   string         `json:"answer"`
	Sources  []Source       `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, topK int, filters map[string]interface{}) ([]Match, error)
}

type Generator interface {
	Generate(ctx context.Context, question, contextBlock string) (string, error)
}

type Options struct {
	DefaultTopK     int
	MaxTopK         int
	MaxContextChars int
	EmbeddingModel  string
	GenerationModel string
}

type Service struct {
	embedder  Embedder
	searcher  VectorSearcher
	generator Generator
	logger    *QueryLogger
	opts      Options
}

func NewService(e Embedder, s VectorSearcher, g Generator, l *QueryLogger, opts Options) *Service {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 20
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 12000
	}
	return &Service{embedder: e, searcher: s, generator: g, logger: l, opts: opts}
}

// Answer runs the full query pipeline. The question must be non-empty:
// the boundary layer validates too, but the engine refuses to call the
// embedding provider with empty input regardless.
func (s *Service) Answer(ctx context.Context, req AskRequest) (*Answer, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", fault.ErrValidation)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.DefaultTopK
	}
	if topK > s.opts.MaxTopK {
		topK = s.opts.MaxTopK
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := s.searcher.Search(ctx, vec, topK, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if req.MinScore != nil {
		kept := matches[:0]
		for _, m := range matches {
			if m.Score >= *req.MinScore {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	answer := &Answer{
		Sources: make([]Source, 0, len(matches)),
		Metadata: AnswerMetadata{
			EmbeddingModel: s.opts.EmbeddingModel,
			Retrieved:      len(matches),
		},
	}
	for _, m := range matches {
		src := Source{
			Text:       m.Text,
			Source:     m.Source,
			JobID:      m.JobID,
			ChunkIndex: m.ChunkIndex,
			Score:      m.Score,
		}
		if req.IncludeMetadata {
			src.Metadata = m.Metadata
		}
		answer.Sources = append(answer.Sources, src)
	}

	if len(matches) == 0 {
		answer.Answer = NoContextAnswer
		answer.Metadata.LatencyMs = time.Since(start).Milliseconds()
		s.log(ctx, question, answer, time.Since(start))
		return answer, nil
	}

	contextBlock := s.assembleContext(matches)
	generated, err := s.generator.Generate(ctx, question, contextBlock)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	answer.Answer = generated
	answer.Metadata.GenerationModel = s.opts.GenerationModel
	answer.Metadata.Grounded = true
	answer.Metadata.LatencyMs = time.Since(start).Milliseconds()
	s.log(ctx, question, answer, time.Since(start))
	return answer, nil
}

// assembleContext concatenates chunk texts in descending-score order up to
// the configured budget. Assembly stops at the first chunk that does not
// fit; matches already arrive sorted from the index.
func (s *Service) assembleContext(matches []Match) string {
	var b strings.Builder
	for _, m := range matches {
		need := len(m.Text)
		if b.Len() > 0 {
			need += len(contextSeparator)
		}
		if b.Len()+need > s.opts.MaxContextChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

func (s *Service) log(ctx context.Context, question string, answer *Answer, elapsed time.Duration) {
	if s.logger == nil {
		return
	}
	s.logger.Log(QueryLogEntry{
		Question:      question,
		NumSources:    len(answer.Sources),
		Grounded:      answer.Metadata.Grounded,
		Duration:      elapsed,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
}
