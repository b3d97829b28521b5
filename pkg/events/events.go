package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event is the envelope published for every domain event.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

// Publisher emits domain events to subscribers outside the process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct {
	logger *zap.Logger
}

// NewNopPublisher builds a publisher that only logs at debug level.
func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NopPublisher{logger: logger}
}

// Publish logs and discards the event.
func (p *NopPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Debug("event publishing disabled", zap.String("type", event.Type))
	return nil
}

// Close is a no-op.
func (p *NopPublisher) Close() error { return nil }
