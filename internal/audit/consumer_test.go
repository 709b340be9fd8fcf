package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-labs/aether/internal/events"
)

func TestEntryFromEvent(t *testing.T) {
	userID := uuid.New()
	resourceID := uuid.New()

	entry := entryFromEvent(events.AuditEvent{
		UserID:       userID,
		EventType:    "tier_changed",
		Severity:     "info",
		ResourceType: "user",
		ResourceID:   resourceID.String(),
		Details:      "tier set to vip (checkout completed)",
		Timestamp:    time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, userID, entry.UserID)
	assert.Equal(t, "tier_changed", entry.EventType)
	assert.Equal(t, "info", entry.Severity)
	assert.Equal(t, "user", entry.ResourceType)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, resourceID, *entry.ResourceID)
	assert.Equal(t, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), entry.CreatedAt)

	var details map[string]string
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "tier set to vip (checkout completed)", details["message"])
}

func TestEntryFromEvent_NonUUIDResourceID(t *testing.T) {
	entry := entryFromEvent(events.AuditEvent{
		UserID:     uuid.New(),
		EventType:  "webhook_received",
		Severity:   "info",
		ResourceID: "evt_stripe_123",
		Timestamp:  time.Now().UTC(),
	})
	assert.Nil(t, entry.ResourceID)
}

func TestEntryFromEvent_EmptyResourceID(t *testing.T) {
	entry := entryFromEvent(events.AuditEvent{
		UserID:    uuid.New(),
		EventType: "login",
		Severity:  "info",
		Timestamp: time.Now().UTC(),
	})
	assert.Nil(t, entry.ResourceID)
}
