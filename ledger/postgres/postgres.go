// Package postgres provides a PostgreSQL-backed UsageLedger for imgguard.
//
// Each bucket is one row keyed by (provider, period, period_key). Increments
// are a single INSERT ... ON CONFLICT DO UPDATE statement covering both
// buckets, which is safe for multi-instance deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/imgguard"
)

// Store is a PostgreSQL-backed UsageLedger.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ imgguard.UsageLedger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "imgguard_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed UsageLedger.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "imgguard_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageTable() string { return s.tablePrefix + "usage" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			provider TEXT NOT NULL,
			period TEXT NOT NULL,
			period_key TEXT NOT NULL,
			count BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (provider, period, period_key)
		);
	`, s.usageTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("imgguard/postgres: ensure schema: %w", err)
	}
	return nil
}

// Increment adds one to the daily and monthly buckets of at.
func (s *Store) Increment(ctx context.Context, provider string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s AS u (provider, period, period_key, count, updated_at)
			VALUES ($1, $2, $3, 1, $6), ($1, $4, $5, 1, $6)
			ON CONFLICT (provider, period, period_key)
			DO UPDATE SET count = u.count + 1, updated_at = EXCLUDED.updated_at`, s.usageTable()),
		provider,
		string(imgguard.PeriodDay), imgguard.DayKey(at),
		string(imgguard.PeriodMonth), imgguard.MonthKey(at),
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("imgguard/postgres: increment: %w", err)
	}
	return nil
}

// Count returns the current count of a bucket, or 0.
func (s *Store) Count(ctx context.Context, provider string, period imgguard.Period, key string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count FROM %s WHERE provider = $1 AND period = $2 AND period_key = $3`, s.usageTable()),
		provider, string(period), key,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("imgguard/postgres: count: %w", err)
	}
	return count, nil
}

// Reset zeroes the monthly bucket.
func (s *Store) Reset(ctx context.Context, provider, monthKey string) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET count = 0, updated_at = now()
			WHERE provider = $1 AND period = $2 AND period_key = $3`, s.usageTable()),
		provider, string(imgguard.PeriodMonth), monthKey,
	)
	if err != nil {
		return fmt.Errorf("imgguard/postgres: reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return imgguard.ErrUsageNotFound
	}
	return nil
}

// Counters lists every bucket of a provider, newest key first.
func (s *Store) Counters(ctx context.Context, provider string) ([]imgguard.UsageCounter, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT provider, period, period_key, count FROM %s
			WHERE provider = $1 ORDER BY period_key DESC, period`, s.usageTable()),
		provider,
	)
	if err != nil {
		return nil, fmt.Errorf("imgguard/postgres: counters: %w", err)
	}
	defer rows.Close()

	var out []imgguard.UsageCounter
	for rows.Next() {
		var c imgguard.UsageCounter
		var period string
		if err := rows.Scan(&c.Provider, &period, &c.PeriodKey, &c.Count); err != nil {
			return nil, fmt.Errorf("imgguard/postgres: scan counter: %w", err)
		}
		c.Period = imgguard.Period(period)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("imgguard/postgres: counters: %w", err)
	}
	return out, nil
}
