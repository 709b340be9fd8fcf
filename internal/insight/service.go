package insight

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/llm"
	"github.com/aether-labs/aether/internal/metrics"
	"github.com/aether-labs/aether/internal/tier"
)

// profileMessageLimit caps how much history feeds one generation.
const profileMessageLimit = 40

// MessageSource supplies the conversation history insights derive from.
// The conversation service implements it; tests substitute fixtures.
type MessageSource interface {
	RecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]llm.Message, error)
	CountMessages(ctx context.Context, userID uuid.UUID) (int, error)
}

// Service orchestrates insight requests: quota, cooldown gate, generation,
// and gate bookkeeping.
type Service struct {
	store     Store
	usage     *tier.Service
	generator *Generator
	messages  MessageSource
	publisher *events.Publisher

	defaultCooldown  time.Duration
	categoryCooldown map[Category]time.Duration

	now func() time.Time
}

// NewService creates an insight Service.
func NewService(
	store Store,
	usage *tier.Service,
	generator *Generator,
	messages MessageSource,
	publisher *events.Publisher,
	defaultCooldown time.Duration,
	categoryCooldown map[string]time.Duration,
) *Service {
	perCategory := make(map[Category]time.Duration, len(categoryCooldown))
	for raw, d := range categoryCooldown {
		if c, ok := ParseCategory(raw); ok {
			perCategory[c] = d
		}
	}
	return &Service{
		store:            store,
		usage:            usage,
		generator:        generator,
		messages:         messages,
		publisher:        publisher,
		defaultCooldown:  defaultCooldown,
		categoryCooldown: perCategory,
		now:              time.Now,
	}
}

func (s *Service) cooldownFor(category Category) time.Duration {
	if d, ok := s.categoryCooldown[category]; ok {
		return d
	}
	return s.defaultCooldown
}

// RequestInsight runs the full flow for one category. Every request,
// forced or not, consumes one unit of the responses quota first; the gate
// is only consulted after the quota admits the request. A new cooldown is
// recorded only once an insight was actually produced.
func (s *Service) RequestInsight(ctx context.Context, userID uuid.UUID, category Category, force bool) (*Result, error) {
	decision := s.usage.TryConsume(ctx, userID, tier.ResourceResponses)
	if !decision.Allowed {
		if decision.Reason == tier.ReasonUnavailable {
			return nil, ErrUsageUnavailable
		}
		return nil, &tier.QuotaError{Usage: decision.Usage, Err: ErrQuotaExhausted}
	}

	now := s.now().UTC()

	count, err := s.messages.CountMessages(ctx, userID)
	if err != nil {
		slog.Warn("insight: counting messages", "error", err, "user_id", userID)
		count = 0
	}
	msgs, err := s.messages.RecentMessages(ctx, userID, profileMessageLimit)
	if err != nil {
		slog.Warn("insight: loading history", "error", err, "user_id", userID)
	}
	profile := Aggregate(msgs, count)
	fp := Fingerprint(category, profile)

	if !force {
		rec, err := s.store.Get(ctx, userID, category)
		if err != nil {
			// Gate state is advisory; losing it briefly means at worst one
			// extra generation, not a quota bypass.
			slog.Warn("insight: reading cooldown record", "error", err, "user_id", userID)
		}
		if rec != nil && rec.Fingerprint == fp {
			if remaining := s.cooldownFor(category) - now.Sub(rec.GeneratedAt); remaining > 0 {
				s.report(ctx, userID, category, OutcomeCooldown, force)
				return &Result{
					Outcome:       OutcomeCooldown,
					RetryAfterSec: int(remaining.Seconds()) + 1,
				}, nil
			}
		}
	}

	outcome := OutcomeGenerated
	ins, err := s.generator.Generate(ctx, category, profile.Prompt())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("insight: generation failed, serving fallback", "error", err, "user_id", userID, "category", category)
		ins = s.generator.Fallback(category)
		outcome = OutcomeFallback
	}

	if err := s.store.Upsert(ctx, CooldownRecord{
		UserID:      userID,
		Category:    category,
		Fingerprint: fp,
		GeneratedAt: now,
	}); err != nil {
		slog.Warn("insight: recording cooldown", "error", err, "user_id", userID)
	}

	s.report(ctx, userID, category, outcome, force)
	return &Result{Outcome: outcome, Insight: ins}, nil
}

// CooldownStatuses reports the gate state for every category.
func (s *Service) CooldownStatuses(ctx context.Context, userID uuid.UUID) ([]CooldownStatus, error) {
	recs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cooldowns: %w", err)
	}

	byCategory := make(map[Category]CooldownRecord, len(recs))
	for _, rec := range recs {
		byCategory[rec.Category] = rec
	}

	now := s.now().UTC()
	out := make([]CooldownStatus, 0, len(Categories))
	for _, c := range Categories {
		status := CooldownStatus{Category: c}
		if rec, ok := byCategory[c]; ok {
			generatedAt := rec.GeneratedAt
			status.LastGenerated = &generatedAt
			if remaining := s.cooldownFor(c) - now.Sub(rec.GeneratedAt); remaining > 0 {
				status.Active = true
				status.RetryAfterSec = int(remaining.Seconds()) + 1
			}
		}
		out = append(out, status)
	}
	return out, nil
}

func (s *Service) report(ctx context.Context, userID uuid.UUID, category Category, outcome Outcome, forced bool) {
	metrics.InsightsGeneratedTotal.WithLabelValues(string(category), string(outcome)).Inc()
	s.publisher.PublishInsightEvent(ctx, events.InsightEvent{
		UserID:    userID,
		Category:  string(category),
		Outcome:   string(outcome),
		Forced:    forced,
		Timestamp: s.now().UTC(),
	})
}
