package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
// A nil Publisher is a no-op, so callers never have to branch on whether
// eventing is configured.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishUsageEvent publishes a quota consumption outcome.
func (p *Publisher) PublishUsageEvent(ctx context.Context, event UsageEvent) {
	p.publish(ctx, SubjectUsageEvent, event)
}

// PublishInsightEvent publishes an insight request outcome.
func (p *Publisher) PublishInsightEvent(ctx context.Context, event InsightEvent) {
	p.publish(ctx, SubjectInsightEvent, event)
}

// PublishAuditEvent publishes an audit event.
func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) {
	p.publish(ctx, SubjectAuditEvent, event)
}

// publish is best-effort: event loss degrades observability, never the
// request that produced the event.
func (p *Publisher) publish(ctx context.Context, subject string, data any) {
	if p == nil || p.js == nil {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("events: marshaling event", "subject", subject, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		slog.Warn("events: publishing event", "subject", subject, "error", err)
	}
}
