package insight

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category is an insight dimension derived from conversation history.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryPersonality   Category = "personality"
	CategoryBehavioral    Category = "behavioral"
	CategoryEmotional     Category = "emotional"
	CategoryGrowth        Category = "growth"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryCommunication,
	CategoryPersonality,
	CategoryBehavioral,
	CategoryEmotional,
	CategoryGrowth,
}

// ParseCategory validates a raw category string.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Outcome describes how an insight request resolved.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeFallback  Outcome = "fallback"
	OutcomeCooldown  Outcome = "cooldown"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	ErrQuotaExhausted   = errors.New("insight: response quota exhausted")
	ErrUsageUnavailable = errors.New("insight: usage unavailable")
)

// CooldownRecord is the persisted gate state for one (user, category) pair.
type CooldownRecord struct {
	UserID      uuid.UUID `json:"user_id"`
	Category    Category  `json:"category"`
	Fingerprint int64     `json:"fingerprint"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Insight is one generated observation.
type Insight struct {
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Confidence  float64   `json:"confidence"`
	Source      string    `json:"source"` // model or fallback
	GeneratedAt time.Time `json:"generated_at"`
}

// Result is the outcome of an insight request. On cooldown the Insight is
// nil and RetryAfterSec says when the gate reopens.
type Result struct {
	Outcome       Outcome  `json:"outcome"`
	Insight       *Insight `json:"insight,omitempty"`
	RetryAfterSec int      `json:"retry_after_seconds,omitempty"`
}

// CooldownStatus reports the gate state for one category.
type CooldownStatus struct {
	Category      Category   `json:"category"`
	Active        bool       `json:"active"`
	RetryAfterSec int        `json:"retry_after_seconds,omitempty"`
	LastGenerated *time.Time `json:"last_generated,omitempty"`
}
