package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"groundwork/features/health"
	"groundwork/features/job"
	"groundwork/features/query"
	"groundwork/internal/config"
	"groundwork/internal/fetch"
	"groundwork/internal/middleware"
	"groundwork/internal/retrieval"
	"groundwork/internal/worker"
)

// Database is the ping surface the health check needs; repositories cast
// it back to *sql.DB, which keeps New mockable with sqlmock.
type Database interface {
	PingContext(ctx context.Context) error
}

// VectorStore is the combined index surface the pipelines need.
type VectorStore interface {
	worker.VectorIndex
	retrieval.VectorSearcher
	Ready(ctx context.Context) error
	CountChunks(ctx context.Context) (int, error)
}

// TaskPublisher enqueues job references; nsq.Producer satisfies it.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
	Ping() error
}

// Embedder covers both the batch path (ingestion) and the single-text
// path (query).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type App struct {
	Handler    http.Handler
	JobService *job.Service
	Consumer   *worker.Consumer

	cfg *config.Config
}

func New(
	cfg *config.Config,
	db Database,
	vecStore VectorStore,
	taskPub TaskPublisher,
	embedder Embedder,
	generator retrieval.Generator,
) (*App, error) {
	// Repositories need the concrete handle; the interface in the
	// signature keeps wiring testable with sqlmock.
	sqlDB := db.(*sql.DB)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(sqlDB)
	jobService := job.NewService(jobRepo, taskPub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Query
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(embedder, vecStore, generator, queryLogger, retrieval.Options{
		DefaultTopK:     cfg.QueryTopK,
		MaxContextChars: cfg.MaxContextChars,
		EmbeddingModel:  cfg.EmbeddingModel,
		GenerationModel: cfg.GenerationModel,
	})
	queryHandler := query.NewHandler(retrievalService)

	// Worker (Ingest Consumer)
	var consumer *worker.Consumer
	workerPool := 0
	if cfg.EnableIngestWorker {
		fetcher := fetch.NewHTTPFetcher(time.Duration(cfg.FetchTimeoutSeconds) * time.Second)
		orchestrator := worker.NewOrchestrator(jobRepo, fetcher, embedder, vecStore, worker.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			BatchSize:    cfg.EmbedBatchSize,
			FetchTimeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
			JobTimeout:   time.Duration(cfg.JobTimeoutSeconds) * time.Second,
		})
		consumer, err = worker.NewConsumer(orchestrator, cfg.IngestConcurrency)
		if err != nil {
			return nil, fmt.Errorf("ingest consumer: %w", err)
		}
		workerPool = consumer.Concurrency()
	}

	// Feature: Health
	healthHandler := health.NewHandler(db, taskPub, vecStore, jobRepo, workerPool)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /jobs", middleware.CorrelationID(enableCORS(jobHandler.Submit)))
	mux.Handle("GET /jobs", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(jobHandler.Get)))

	mux.Handle("POST /query", middleware.CorrelationID(enableCORS(queryHandler.Ask)))

	mux.Handle("GET /health", middleware.CorrelationID(enableCORS(healthHandler.Get)))

	return &App{
		Handler:    mux,
		JobService: jobService,
		Consumer:   consumer,
		cfg:        cfg,
	}, nil
}

// Run serves the API and the ingest consumer until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.Consumer != nil {
		if err := a.Consumer.Connect(a.cfg.NSQLookupd); err != nil {
			return fmt.Errorf("connect ingest consumer: %w", err)
		}
		defer a.Consumer.Stop()
		slog.Info("ingest consumer connected", "concurrency", a.Consumer.Concurrency())
	}

	if !a.cfg.EnableAPI {
		slog.Info("api disabled, running worker only")
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
