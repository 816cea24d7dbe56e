package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"groundwork/internal/config"
	"groundwork/internal/fault"
	"groundwork/internal/middleware"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Submit validates the source, creates the job record and enqueues its
// reference. Validation happens before any state mutation; a failed
// enqueue marks the job failed so it cannot strand in pending forever.
func (s *Service) Submit(ctx context.Context, source string, metadata map[string]string) (*Job, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", fault.ErrValidation)
	}
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: source must be an http(s) URL", fault.ErrValidation)
	}

	j := &Job{Source: source, Metadata: metadata}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	event, _ := json.Marshal(map[string]string{
		"job_id":         j.ID,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestJob, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish job event", "error", err, "job_id", j.ID)
		if failErr := s.repo.Fail(ctx, j.ID, "enqueue failed: "+err.Error()); failErr != nil {
			slog.ErrorContext(ctx, "failed to mark unenqueued job failed", "error", failErr, "job_id", j.ID)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	slog.InfoContext(ctx, "job submitted", "job_id", j.ID, "source", source)
	return j, nil
}

// Status returns the job record for polling.
func (s *Service) Status(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}
