package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"groundwork/features/job"
	"groundwork/internal/fault"
)

type mockFetcher struct {
	content string
	err     error
	fetched []string
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (string, error) {
	m.fetched = append(m.fetched, url)
	return m.content, m.err
}

type mockEmbedder struct {
	err        error
	failAtCall int
	calls      int
	batchSizes []int
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.err != nil && (m.failAtCall == 0 || m.calls == m.failAtCall) {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}

type mockIndex struct {
	err     error
	records []Record
	batches int
}

func (m *mockIndex) UpsertBatch(_ context.Context, records []Record) error {
	if m.err != nil {
		return m.err
	}
	m.batches++
	m.records = append(m.records, records...)
	return nil
}

// mockStore is an in-memory job state machine enforcing the same guards
// as the SQL repo.
type mockStore struct {
	mu  sync.Mutex
	job *job.Job

	claimCalls int
	failCause  string
}

func newMockStore(j *job.Job) *mockStore {
	return &mockStore{job: j}
}

func (m *mockStore) Claim(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	if m.job == nil || m.job.ID != id {
		return nil, fault.ErrNotFound
	}
	if m.job.Status != job.StatusPending {
		return nil, job.ErrAlreadyClaimed
	}
	m.job.Status = job.StatusProcessing
	snapshot := *m.job
	return &snapshot, nil
}

func (m *mockStore) SetChunkCount(_ context.Context, id string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status != job.StatusProcessing || m.job.ChunkCount != 0 {
		return fmt.Errorf("set chunk count: no eligible job row")
	}
	m.job.ChunkCount = count
	return nil
}

func (m *mockStore) AddProcessed(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status != job.StatusProcessing || m.job.ProcessedChunks+delta > m.job.ChunkCount {
		return fmt.Errorf("add processed: no eligible job row")
	}
	m.job.ProcessedChunks += delta
	return nil
}

func (m *mockStore) Complete(_ context.Context, id string, seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status != job.StatusProcessing || m.job.ProcessedChunks != m.job.ChunkCount {
		return fmt.Errorf("complete: no eligible job row")
	}
	m.job.Status = job.StatusCompleted
	m.job.ProcessingTime = &seconds
	return nil
}

func (m *mockStore) Fail(_ context.Context, id string, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Terminal() {
		return fmt.Errorf("fail: no eligible job row")
	}
	m.job.Status = job.StatusFailed
	m.job.Error = cause
	m.failCause = cause
	return nil
}

func pendingJob(id string) *job.Job {
	return &job.Job{ID: id, Source: "https://example.com/doc", Status: job.StatusPending}
}

func longText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		b.WriteString(strings.Repeat("lorem ipsum dolor sit amet ", 10))
		b.WriteString("\n\n")
	}
	return b.String()
}
