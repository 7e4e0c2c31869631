// Package sqlite provides a SQLite-backed UsageLedger for imgguard, using
// the pure-Go modernc.org/sqlite driver.
//
// It suits single-node deployments that want counters to survive restarts
// without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/ineyio/imgguard"
)

// Store is a SQLite-backed UsageLedger.
type Store struct {
	db *sql.DB
}

var _ imgguard.UsageLedger = (*Store)(nil)

// Open opens (or creates) the database file at path, applies pragmas and
// creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("imgguard/sqlite: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("imgguard/sqlite: open: %w", err)
	}
	// SQLite has a single writer; one connection serializes writes instead
	// of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("imgguard/sqlite: connect: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("imgguard/sqlite: %s: %w", pragma, err)
		}
	}

	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. The schema is not created.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the usage table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS usage_counters (
			provider TEXT NOT NULL,
			period TEXT NOT NULL,
			period_key TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (provider, period, period_key)
		)`)
	if err != nil {
		return fmt.Errorf("imgguard/sqlite: ensure schema: %w", err)
	}
	return nil
}

// Increment adds one to the daily and monthly buckets of at.
func (s *Store) Increment(ctx context.Context, provider string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (provider, period, period_key, count, updated_at)
		VALUES (?1, ?2, ?3, 1, ?6), (?1, ?4, ?5, 1, ?6)
		ON CONFLICT (provider, period, period_key)
		DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`,
		provider,
		string(imgguard.PeriodDay), imgguard.DayKey(at),
		string(imgguard.PeriodMonth), imgguard.MonthKey(at),
		at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("imgguard/sqlite: increment: %w", err)
	}
	return nil
}

// Count returns the current count of a bucket, or 0.
func (s *Store) Count(ctx context.Context, provider string, period imgguard.Period, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE provider = ? AND period = ? AND period_key = ?`,
		provider, string(period), key,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("imgguard/sqlite: count: %w", err)
	}
	return count, nil
}

// Reset zeroes the monthly bucket.
func (s *Store) Reset(ctx context.Context, provider, monthKey string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage_counters SET count = 0, updated_at = ? WHERE provider = ? AND period = ? AND period_key = ?`,
		time.Now().UTC().Format(time.RFC3339), provider, string(imgguard.PeriodMonth), monthKey,
	)
	if err != nil {
		return fmt.Errorf("imgguard/sqlite: reset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("imgguard/sqlite: reset: %w", err)
	}
	if n == 0 {
		return imgguard.ErrUsageNotFound
	}
	return nil
}
