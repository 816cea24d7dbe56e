package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"groundwork/internal/config"
	"groundwork/internal/middleware"
)

// Consumer is the worker pool: a bounded set of NSQ handlers pulling job
// references and running the orchestrator. Exclusivity per job comes from
// the store's claim operation, not from the queue.
type Consumer struct {
	orchestrator *Orchestrator
	consumer     *nsq.Consumer
	concurrency  int
}

func NewConsumer(orchestrator *Orchestrator, concurrency int) (*Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = concurrency
	// The job record carries its own terminal failure state; queue-level
	// redelivery only needs to survive worker crashes, not retry failures.
	nsqCfg.MaxAttempts = 5

	consumer, err := nsq.NewConsumer(config.TopicIngestJob, config.ChannelWorkers, nsqCfg)
	if err != nil {
		return nil, err
	}

	c := &Consumer{orchestrator: orchestrator, consumer: consumer, concurrency: concurrency}
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(c.HandleMessage), concurrency)
	return c, nil
}

func (c *Consumer) Connect(lookupdAddr string) error {
	return c.consumer.ConnectToNSQLookupd(lookupdAddr)
}

func (c *Consumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}

// Concurrency reports the pool size for health reporting.
func (c *Consumer) Concurrency() int {
	return c.concurrency
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event JobEvent
	if err := json.Unmarshal(m.Body, &event); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if event.JobID == "" {
		slog.Error("poison pill: job event without id")
		return nil
	}

	ctx := context.Background()
	if event.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, event.CorrelationID)
	}

	// Requeue only on infrastructure errors (claim lookup failures);
	// job-level failures are terminal on the record itself.
	return c.orchestrator.Process(ctx, event.JobID)
}
