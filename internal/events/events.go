package events

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "AETHER_EVENTS"
)

// Subject constants.
const (
	SubjectUsageEvent   = "aether.events.usage"
	SubjectInsightEvent = "aether.events.insight"
	SubjectAuditEvent   = "aether.events.audit"
)

// UsageEvent is published on every quota consumption attempt.
type UsageEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Resource  string    `json:"resource"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Unlimited bool      `json:"unlimited"`
	Timestamp time.Time `json:"timestamp"`
}

// InsightEvent is published when an insight request resolves.
type InsightEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Category  string    `json:"category"`
	Outcome   string    `json:"outcome"` // generated, fallback, cooldown
	Forced    bool      `json:"forced"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEvent is published for compliance/audit logging.
type AuditEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
