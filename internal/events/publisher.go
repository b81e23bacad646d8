package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/shared/rabbitmq"
)

// StepEvent is the payload published on every pipeline step transition. It
// exists for downstream consumers (webhooks, auditing); the polling API does
// not depend on it.
type StepEvent struct {
	JobID  string    `json:"job_id"`
	Step   string    `json:"step"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Publisher emits step events to RabbitMQ, best-effort. Publish failures are
// logged and never affect the job.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewPublisher creates a step event publisher.
func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// StepChanged publishes a step transition event.
func (p *Publisher) StepChanged(ctx context.Context, jobID, step, status string) {
	event := StepEvent{
		JobID:  jobID,
		Step:   step,
		Status: status,
		At:     time.Now(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal step event",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		p.logger.Warn("Failed to publish step event",
			slog.String("job_id", jobID),
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}
}

// Interface conformance
var _ pipeline.StepListener = (*Publisher)(nil)
