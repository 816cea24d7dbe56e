package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"groundwork/internal/middleware"
)

func logLine(t *testing.T, ctx context.Context) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	l := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	l.InfoContext(ctx, "test message")

	var logMap map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logMap); err != nil {
		t.Fatalf("failed to unmarshal log: %v", err)
	}
	return logMap
}

func TestContextHandler_Handle(t *testing.T) {
	ctx := middleware.WithCorrelationID(context.Background(), "test-correlation-id")

	logMap := logLine(t, ctx)
	if logMap["correlation_id"] != "test-correlation-id" {
		t.Errorf("expected correlation_id 'test-correlation-id', got %v", logMap["correlation_id"])
	}
}

func TestContextHandler_NoCorrelation(t *testing.T) {
	logMap := logLine(t, context.Background())
	if _, present := logMap["correlation_id"]; present {
		t.Error("untagged context must not emit a correlation_id attr")
	}
}
