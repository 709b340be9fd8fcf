package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface the usage Service needs. The Postgres
// implementation below is the production one; tests substitute an in-memory
// store.
type Store interface {
	GetUserTier(ctx context.Context, userID uuid.UUID) (string, bool, error)
	Ensure(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string) error
	Rollover(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string) (bool, error)
	Get(ctx context.Context, userID uuid.UUID, resource Resource) (*UsageRecord, error)
	ConsumeBelow(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string, limit int) (bool, error)
	Consume(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string) error
}

// Repository handles usage_records PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new usage Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUserTier reads the tier off the user row. The second return is false
// when the user does not exist.
func (r *Repository) GetUserTier(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	var tier string
	err := r.pool.QueryRow(ctx, `SELECT tier FROM users WHERE id = $1`, userID).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying user tier: %w", err)
	}
	return tier, true, nil
}

// Ensure creates the usage row for (user, resource) if it doesn't exist.
func (r *Repository) Ensure(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_records (user_id, resource, period_key)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, resource) DO NOTHING`,
		userID, resource, periodKey)
	if err != nil {
		return fmt.Errorf("ensuring usage record: %w", err)
	}
	return nil
}

// Rollover lazily resets the period counter when the stored period key is
// stale. The conditional WHERE makes it idempotent under concurrency: only
// one of any number of racing calls performs the reset.
func (r *Repository) Rollover(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE usage_records
		 SET period_count = 0,
		     period_key = $3,
		     last_reset = NOW(),
		     updated_at = NOW()
		 WHERE user_id = $1 AND resource = $2 AND period_key <> $3`,
		userID, resource, periodKey)
	if err != nil {
		return false, fmt.Errorf("rolling over usage period: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns the usage row for (user, resource), or nil if absent.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID, resource Resource) (*UsageRecord, error) {
	rec := &UsageRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, resource, period_key, period_count, total_count, last_reset, updated_at
		 FROM usage_records WHERE user_id = $1 AND resource = $2`,
		userID, resource,
	).Scan(&rec.UserID, &rec.Resource, &rec.PeriodKey, &rec.PeriodCount,
		&rec.TotalCount, &rec.LastReset, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching usage record: %w", err)
	}
	return rec, nil
}

// ConsumeBelow performs the compare-and-increment in a single statement.
// The period_count < limit guard runs server-side, so two concurrent calls
// at limit-1 cannot both succeed; the loser sees RowsAffected() == 0. The
// period_key match guards against consuming into a bucket that rolled over
// between the caller's read and this write.
func (r *Repository) ConsumeBelow(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string, limit int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE usage_records
		 SET period_count = period_count + 1,
		     total_count = total_count + 1,
		     updated_at = NOW()
		 WHERE user_id = $1 AND resource = $2 AND period_key = $3 AND period_count < $4`,
		userID, resource, periodKey, limit)
	if err != nil {
		return false, fmt.Errorf("consuming usage: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Consume increments without a limit guard, for unlimited tiers. TotalCount
// still tracks lifetime usage.
func (r *Repository) Consume(ctx context.Context, userID uuid.UUID, resource Resource, periodKey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE usage_records
		 SET period_count = period_count + 1,
		     total_count = total_count + 1,
		     updated_at = NOW()
		 WHERE user_id = $1 AND resource = $2 AND period_key = $3`,
		userID, resource, periodKey)
	if err != nil {
		return fmt.Errorf("consuming usage: %w", err)
	}
	return nil
}
