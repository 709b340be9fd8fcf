package insight

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists cooldown gate state.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID, category Category) (*CooldownRecord, error)
	Upsert(ctx context.Context, rec CooldownRecord) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]CooldownRecord, error)
}

// Repository is the Postgres-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a cooldown repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID, category Category) (*CooldownRecord, error) {
	query := `
		SELECT user_id, category, fingerprint, generated_at
		FROM cooldown_records
		WHERE user_id = $1 AND category = $2`

	var rec CooldownRecord
	err := r.pool.QueryRow(ctx, query, userID, category).Scan(
		&rec.UserID, &rec.Category, &rec.Fingerprint, &rec.GeneratedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cooldown record: %w", err)
	}
	return &rec, nil
}

func (r *Repository) Upsert(ctx context.Context, rec CooldownRecord) error {
	query := `
		INSERT INTO cooldown_records (user_id, category, fingerprint, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, category)
		DO UPDATE SET fingerprint = EXCLUDED.fingerprint, generated_at = EXCLUDED.generated_at`

	if _, err := r.pool.Exec(ctx, query, rec.UserID, rec.Category, rec.Fingerprint, rec.GeneratedAt); err != nil {
		return fmt.Errorf("upserting cooldown record: %w", err)
	}
	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]CooldownRecord, error) {
	query := `
		SELECT user_id, category, fingerprint, generated_at
		FROM cooldown_records
		WHERE user_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cooldown records: %w", err)
	}
	defer rows.Close()

	var recs []CooldownRecord
	for rows.Next() {
		var rec CooldownRecord
		if err := rows.Scan(&rec.UserID, &rec.Category, &rec.Fingerprint, &rec.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scanning cooldown record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
