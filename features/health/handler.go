package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"groundwork/internal/middleware"
)

type DBPinger interface {
	PingContext(ctx context.Context) error
}

type QueuePinger interface {
	Ping() error
}

type VectorStore interface {
	Ready(ctx context.Context) error
	CountChunks(ctx context.Context) (int, error)
}

type JobCounter interface {
	CountByStatus(ctx context.Context, status string) (int, error)
}

type Handler struct {
	db          DBPinger
	queue       QueuePinger
	vectorStore VectorStore
	jobs        JobCounter
	workerPool  int
}

func NewHandler(db DBPinger, queue QueuePinger, vs VectorStore, jobs JobCounter, workerPool int) *Handler {
	return &Handler{db: db, queue: queue, vectorStore: vs, jobs: jobs, workerPool: workerPool}
}

type checkResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	Status         string                 `json:"status"`
	Checks         map[string]checkResult `json:"checks"`
	ProcessingJobs int                    `json:"processing_jobs"`
	IndexedChunks  int                    `json:"indexed_chunks"`
	WorkerPool     int                    `json:"worker_pool"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := healthResponse{
		Status:     "ok",
		Checks:     map[string]checkResult{},
		WorkerPool: h.workerPool,
	}

	record := func(name string, err error) {
		if err != nil {
			resp.Checks[name] = checkResult{Error: err.Error()}
			resp.Status = "degraded"
			return
		}
		resp.Checks[name] = checkResult{OK: true}
	}

	record("database", h.db.PingContext(ctx))

	if h.queue != nil {
		record("queue", h.queue.Ping())
	}

	record("vector_store", h.vectorStore.Ready(ctx))

	if resp.Checks["vector_store"].OK {
		if n, err := h.vectorStore.CountChunks(ctx); err == nil {
			resp.IndexedChunks = n
		} else {
			slog.WarnContext(ctx, "failed to count indexed chunks", "error", err)
		}
	}

	if resp.Checks["database"].OK {
		if n, err := h.jobs.CountByStatus(ctx, "processing"); err == nil {
			resp.ProcessingJobs = n
		} else {
			slog.WarnContext(ctx, "failed to count processing jobs", "error", err)
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err,
			"correlationId", middleware.GetCorrelationID(ctx))
	}
}
