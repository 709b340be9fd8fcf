package insight

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-labs/aether/internal/llm"
	"github.com/aether-labs/aether/internal/tier"
)

// memCooldownStore is an in-memory Store.
type memCooldownStore struct {
	mu   sync.Mutex
	recs map[string]CooldownRecord
}

func newMemCooldownStore() *memCooldownStore {
	return &memCooldownStore{recs: map[string]CooldownRecord{}}
}

func cooldownKey(userID uuid.UUID, category Category) string {
	return userID.String() + "|" + string(category)
}

func (s *memCooldownStore) Get(_ context.Context, userID uuid.UUID, category Category) (*CooldownRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[cooldownKey(userID, category)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memCooldownStore) Upsert(_ context.Context, rec CooldownRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[cooldownKey(rec.UserID, rec.Category)] = rec
	return nil
}

func (s *memCooldownStore) ListByUser(_ context.Context, userID uuid.UUID) ([]CooldownRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CooldownRecord
	for _, rec := range s.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// memUsageStore is a minimal in-memory tier.Store for wiring a real usage
// service under the insight flow.
type memUsageStore struct {
	mu    sync.Mutex
	tiers map[uuid.UUID]string
	recs  map[string]*tier.UsageRecord
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{tiers: map[uuid.UUID]string{}, recs: map[string]*tier.UsageRecord{}}
}

func usageKey(userID uuid.UUID, resource tier.Resource) string {
	return userID.String() + "|" + string(resource)
}

func (s *memUsageStore) GetUserTier(_ context.Context, userID uuid.UUID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiers[userID]
	return t, ok, nil
}

func (s *memUsageStore) Ensure(_ context.Context, userID uuid.UUID, resource tier.Resource, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(userID, resource)
	if _, ok := s.recs[key]; !ok {
		s.recs[key] = &tier.UsageRecord{UserID: userID, Resource: resource, PeriodKey: periodKey}
	}
	return nil
}

func (s *memUsageStore) Rollover(_ context.Context, userID uuid.UUID, resource tier.Resource, periodKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[usageKey(userID, resource)]
	if !ok || rec.PeriodKey == periodKey {
		return false, nil
	}
	rec.PeriodKey = periodKey
	rec.PeriodCount = 0
	return true, nil
}

func (s *memUsageStore) Get(_ context.Context, userID uuid.UUID, resource tier.Resource) (*tier.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[usageKey(userID, resource)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memUsageStore) ConsumeBelow(_ context.Context, userID uuid.UUID, resource tier.Resource, periodKey string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[usageKey(userID, resource)]
	if !ok || rec.PeriodKey != periodKey || rec.PeriodCount >= limit {
		return false, nil
	}
	rec.PeriodCount++
	rec.TotalCount++
	return true, nil
}

func (s *memUsageStore) Consume(_ context.Context, userID uuid.UUID, resource tier.Resource, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[usageKey(userID, resource)]; ok && rec.PeriodKey == periodKey {
		rec.PeriodCount++
		rec.TotalCount++
	}
	return nil
}

// fakeMessages is a canned MessageSource.
type fakeMessages struct {
	count int
	msgs  []llm.Message
}

func (f *fakeMessages) RecentMessages(_ context.Context, _ uuid.UUID, _ int) ([]llm.Message, error) {
	return f.msgs, nil
}

func (f *fakeMessages) CountMessages(_ context.Context, _ uuid.UUID) (int, error) {
	return f.count, nil
}

type serviceFixture struct {
	svc      *Service
	store    *memCooldownStore
	usage    *memUsageStore
	client   *fakeLLM
	messages *fakeMessages
	clock    time.Time
}

func newServiceFixture(t *testing.T, userTier string) (*serviceFixture, uuid.UUID) {
	t.Helper()

	userID := uuid.New()
	usage := newMemUsageStore()
	usage.tiers[userID] = userTier

	f := &serviceFixture{
		store:    newMemCooldownStore(),
		usage:    usage,
		client:   &fakeLLM{response: "You tend to dig into details before deciding."},
		messages: &fakeMessages{count: 25, msgs: []llm.Message{{Role: "user", Content: "hello"}}},
		clock:    time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}

	gen := NewGenerator(f.client, "test-model", 3, time.Millisecond, time.Second)
	gen.now = func() time.Time { return f.clock }

	usageSvc := tier.NewService(usage, tier.DefaultPolicy(),
		tier.WithClock(func() time.Time { return f.clock }))
	f.svc = NewService(f.store, usageSvc, gen, f.messages, nil,
		30*time.Minute, nil)
	f.svc.now = func() time.Time { return f.clock }

	return f, userID
}

func TestService_GeneratesAndRecordsCooldown(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")

	result, err := f.svc.RequestInsight(context.Background(), userID, CategoryBehavioral, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeGenerated, result.Outcome)
	require.NotNil(t, result.Insight)
	assert.Equal(t, "model", result.Insight.Source)

	rec, err := f.store.Get(context.Background(), userID, CategoryBehavioral)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Fingerprint(CategoryBehavioral, Aggregate(f.messages.msgs, 25)), rec.Fingerprint)
	assert.True(t, rec.GeneratedAt.Equal(f.clock))
}

func TestService_CooldownBlocksRepeatRequest(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)
	firstGen := f.client.callCount()

	f.clock = f.clock.Add(5 * time.Minute)
	result, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCooldown, result.Outcome)
	assert.Nil(t, result.Insight)
	assert.Greater(t, result.RetryAfterSec, 0)
	assert.LessOrEqual(t, result.RetryAfterSec, int((25 * time.Minute).Seconds())+1)
	assert.Equal(t, firstGen, f.client.callCount(), "blocked request must not call the model")
}

func TestService_CooldownDoesNotExtendItself(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)
	first, err := f.store.Get(ctx, userID, CategoryBehavioral)
	require.NoError(t, err)

	f.clock = f.clock.Add(5 * time.Minute)
	_, err = f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)

	second, err := f.store.Get(ctx, userID, CategoryBehavioral)
	require.NoError(t, err)
	assert.True(t, first.GeneratedAt.Equal(second.GeneratedAt), "blocked request must not touch the gate")
}

func TestService_ExpiredCooldownAllowsGeneration(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)

	f.clock = f.clock.Add(31 * time.Minute)
	result, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)
}

func TestService_FingerprintChangeReopensGate(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)

	// Cross a fingerprint bucket boundary well inside the cooldown window.
	f.messages.count = 35
	f.clock = f.clock.Add(5 * time.Minute)

	result, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)
}

func TestService_ForceBypassesGateAndRerecords(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)

	f.clock = f.clock.Add(5 * time.Minute)
	result, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)

	rec, err := f.store.Get(ctx, userID, CategoryBehavioral)
	require.NoError(t, err)
	assert.True(t, rec.GeneratedAt.Equal(f.clock), "forced generation restarts the cooldown")
}

func TestService_QuotaExhaustedDeniesBeforeGate(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	// Burn the full standard responses allowance.
	rec := f.usage.recs[usageKey(userID, tier.ResourceResponses)]
	if rec == nil {
		require.NoError(t, f.usage.Ensure(ctx, userID, tier.ResourceResponses, keyForNow(f)))
		rec = f.usage.recs[usageKey(userID, tier.ResourceResponses)]
	}
	rec.PeriodCount = 150

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Equal(t, 0, f.client.callCount())

	// The denial carries the usage snapshot for the response body.
	var qe *tier.QuotaError
	require.ErrorAs(t, err, &qe)
	require.NotNil(t, qe.Usage)
	assert.Equal(t, 150, qe.Usage.Used)
	assert.Equal(t, 0, qe.Usage.Remaining)
}

func keyForNow(f *serviceFixture) string {
	return tier.DefaultPolicy().PeriodFor(tier.ResourceResponses, f.clock).Key
}

func TestService_UnknownUserIsUnavailable(t *testing.T) {
	f, _ := newServiceFixture(t, "standard")

	_, err := f.svc.RequestInsight(context.Background(), uuid.New(), CategoryBehavioral, false)
	assert.ErrorIs(t, err, ErrUsageUnavailable)
}

func TestService_FallbackWhenGenerationFails(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	f.client.failures = 100

	result, err := f.svc.RequestInsight(context.Background(), userID, CategoryBehavioral, false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallback, result.Outcome)
	require.NotNil(t, result.Insight)
	assert.Equal(t, "fallback", result.Insight.Source)
	assert.Less(t, result.Insight.Confidence, modelConfidence)

	// Fallback still starts the cooldown: an insight was delivered.
	rec, err := f.store.Get(context.Background(), userID, CategoryBehavioral)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestService_EachRequestConsumesQuota(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)
	f.clock = f.clock.Add(time.Minute)
	_, err = f.svc.RequestInsight(ctx, userID, CategoryBehavioral, false)
	require.NoError(t, err)

	rec := f.usage.recs[usageKey(userID, tier.ResourceResponses)]
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.PeriodCount, "cooldown responses are charged too")
}

func TestService_CooldownStatuses(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryEmotional, false)
	require.NoError(t, err)
	f.clock = f.clock.Add(10 * time.Minute)

	statuses, err := f.svc.CooldownStatuses(ctx, userID)
	require.NoError(t, err)
	require.Len(t, statuses, len(Categories))

	byCategory := map[Category]CooldownStatus{}
	for _, s := range statuses {
		byCategory[s.Category] = s
	}

	emotional := byCategory[CategoryEmotional]
	assert.True(t, emotional.Active)
	assert.Greater(t, emotional.RetryAfterSec, 0)
	require.NotNil(t, emotional.LastGenerated)

	growth := byCategory[CategoryGrowth]
	assert.False(t, growth.Active)
	assert.Nil(t, growth.LastGenerated)
}

func TestService_PerCategoryCooldownOverride(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	f.svc.categoryCooldown = map[Category]time.Duration{CategoryGrowth: 2 * time.Hour}
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryGrowth, false)
	require.NoError(t, err)

	// Past the default cooldown but inside the override.
	f.clock = f.clock.Add(45 * time.Minute)
	result, err := f.svc.RequestInsight(ctx, userID, CategoryGrowth, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCooldown, result.Outcome)
}

func TestService_CooldownBoundaryAtThirtyMinutes(t *testing.T) {
	f, userID := newServiceFixture(t, "standard")
	ctx := context.Background()

	_, err := f.svc.RequestInsight(ctx, userID, CategoryPersonality, false)
	require.NoError(t, err)

	// One minute before the window closes: denied with ~1min remaining.
	f.clock = f.clock.Add(29 * time.Minute)
	result, err := f.svc.RequestInsight(ctx, userID, CategoryPersonality, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCooldown, result.Outcome)
	assert.Greater(t, result.RetryAfterSec, 0)
	assert.LessOrEqual(t, result.RetryAfterSec, 61)

	// One minute after: allowed again.
	f.clock = f.clock.Add(2 * time.Minute)
	result, err = f.svc.RequestInsight(ctx, userID, CategoryPersonality, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, result.Outcome)
}
