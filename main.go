package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groundwork/internal/adapter/gemini"
	"groundwork/internal/app"
	"groundwork/internal/config"
	"groundwork/internal/logger"
)

func main() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.Gemini.Close()
	defer deps.NSQProducer.Stop()

	embedder := gemini.NewBatchedEmbedder(deps.Gemini, cfg.EmbeddingModel, gemini.Options{
		BatchSize:   cfg.EmbedBatchSize,
		Dimensions:  cfg.EmbeddingDimensions,
		MaxAttempts: cfg.EmbedMaxAttempts,
		Backoff:     time.Duration(cfg.EmbedBackoffMS) * time.Millisecond,
	})
	generator := gemini.NewGenerator(deps.Gemini, cfg.GenerationModel)

	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, embedder, generator)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
