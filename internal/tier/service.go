package tier

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/metrics"
)

// Service is the usage counter: it answers "may this proceed" and performs
// the consumption atomically. All expected outcomes (denied, unavailable)
// are values; only programmer errors surface as errors.
type Service struct {
	store  Store
	policy *Policy
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service's time source so callers can pin the
// period arithmetic to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a usage Service.
func NewService(store Store, policy *Policy, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy exposes the active policy table (read-only use).
func (s *Service) Policy() *Policy {
	return s.policy
}

// GetUsage returns the current usage snapshot for one resource, performing
// the lazy period rollover as part of the read. No background sweep exists;
// rollover is idempotent and monotonic, so computing it on access is safe.
func (s *Service) GetUsage(ctx context.Context, userID uuid.UUID, resource Resource) (*UsageInfo, error) {
	userTier, found, err := s.store.GetUserTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Warn("usage: unknown user", "user_id", userID)
		return nil, nil
	}

	t, known := ParseTier(userTier)
	if !known {
		slog.Warn("usage: unknown tier, treating as standard", "user_id", userID, "tier", userTier)
	}

	period := s.policy.PeriodFor(resource, s.now())
	if err := s.store.Ensure(ctx, userID, resource, period.Key); err != nil {
		return nil, err
	}
	if _, err := s.store.Rollover(ctx, userID, resource, period.Key); err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, userID, resource)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &UsageRecord{UserID: userID, Resource: resource, PeriodKey: period.Key}
	}

	return s.buildInfo(t, resource, rec, period), nil
}

// GetAllUsage returns snapshots for every rate-limited resource.
func (s *Service) GetAllUsage(ctx context.Context, userID uuid.UUID) (map[Resource]*UsageInfo, error) {
	out := make(map[Resource]*UsageInfo, len(Resources))
	for _, r := range Resources {
		info, err := s.GetUsage(ctx, userID, r)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, nil
		}
		out[r] = info
	}
	return out, nil
}

// TryConsume atomically consumes one unit if the user is under the limit.
// Persistence failures and unknown users deny the request (fail-closed):
// failing open would let malformed requests bypass quota entirely.
func (s *Service) TryConsume(ctx context.Context, userID uuid.UUID, resource Resource) Decision {
	userTier, found, err := s.store.GetUserTier(ctx, userID)
	if err != nil {
		slog.Warn("usage: tier lookup failed, denying", "error", err, "user_id", userID)
		return s.deny(resource, ReasonUnavailable, nil)
	}
	if !found {
		slog.Warn("usage: unknown user, denying", "user_id", userID)
		return s.deny(resource, ReasonUnavailable, nil)
	}

	t, known := ParseTier(userTier)
	if !known {
		slog.Warn("usage: unknown tier, treating as standard", "user_id", userID, "tier", userTier)
	}

	period := s.policy.PeriodFor(resource, s.now())
	if err := s.store.Ensure(ctx, userID, resource, period.Key); err != nil {
		slog.Warn("usage: ensure failed, denying", "error", err, "user_id", userID)
		return s.deny(resource, ReasonUnavailable, nil)
	}
	if _, err := s.store.Rollover(ctx, userID, resource, period.Key); err != nil {
		slog.Warn("usage: rollover failed, denying", "error", err, "user_id", userID)
		return s.deny(resource, ReasonUnavailable, nil)
	}

	limit := s.policy.LimitFor(t, resource)

	var allowed bool
	if limit.Unlimited {
		if err := s.store.Consume(ctx, userID, resource, period.Key); err != nil {
			slog.Warn("usage: consume failed, denying", "error", err, "user_id", userID)
			return s.deny(resource, ReasonUnavailable, nil)
		}
		allowed = true
	} else {
		allowed, err = s.store.ConsumeBelow(ctx, userID, resource, period.Key, limit.N)
		if err != nil {
			slog.Warn("usage: consume failed, denying", "error", err, "user_id", userID)
			return s.deny(resource, ReasonUnavailable, nil)
		}
	}

	rec, err := s.store.Get(ctx, userID, resource)
	if err != nil || rec == nil {
		rec = &UsageRecord{UserID: userID, Resource: resource, PeriodKey: period.Key}
	}
	info := s.buildInfo(t, resource, rec, period)

	metrics.UsageConsumedTotal.WithLabelValues(string(resource), strconv.FormatBool(allowed)).Inc()

	if !allowed {
		return Decision{Allowed: false, Reason: ReasonPeriodLimit, Usage: info}
	}
	return Decision{Allowed: true, Usage: info}
}

func (s *Service) deny(resource Resource, reason string, info *UsageInfo) Decision {
	metrics.UsageConsumedTotal.WithLabelValues(string(resource), "false").Inc()
	return Decision{Allowed: false, Reason: reason, Usage: info}
}

func (s *Service) buildInfo(t Tier, resource Resource, rec *UsageRecord, period Period) *UsageInfo {
	limit := s.policy.LimitFor(t, resource)

	info := &UsageInfo{
		Tier:        t,
		Resource:    resource,
		Used:        rec.PeriodCount,
		Unlimited:   limit.Unlimited,
		TotalCount:  rec.TotalCount,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
	}
	if !limit.Unlimited {
		info.Limit = limit.N
		if remaining := limit.N - rec.PeriodCount; remaining > 0 {
			info.Remaining = remaining
		}
	}
	return info
}
