//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/imgguard"
	ledgerpg "github.com/ineyio/imgguard/ledger/postgres"
)

var at = time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/imgguard_test?sslmode=disable"
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("postgres not available: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func newTestStore(t *testing.T, pool *pgxpool.Pool) *ledgerpg.Store {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := fmt.Sprintf("test_%s_", strings.ToLower(t.Name()))
	s := ledgerpg.New(pool, ledgerpg.WithTablePrefix(prefix))

	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %susage", prefix))
	})
	return s
}

func TestIncrementAndCount(t *testing.T) {
	store := newTestStore(t, newTestPool(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.Increment(ctx, "sightengine", at); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	day, err := store.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-02-29")
	if err != nil {
		t.Fatalf("count day: %v", err)
	}
	month, err := store.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-02")
	if err != nil {
		t.Fatalf("count month: %v", err)
	}
	if day != 2 || month != 2 {
		t.Fatalf("day=%d month=%d, want 2 and 2", day, month)
	}

	missing, err := store.Count(ctx, "rekognition", imgguard.PeriodMonth, "2024-02")
	if err != nil || missing != 0 {
		t.Fatalf("missing bucket: count=%d err=%v", missing, err)
	}

	counters, err := store.Counters(ctx, "sightengine")
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if len(counters) != 2 {
		t.Fatalf("got %d counters, want 2", len(counters))
	}
}

func TestConcurrentIncrements(t *testing.T) {
	store := newTestStore(t, newTestPool(t))
	ctx := context.Background()

	const n = 1000
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Increment(ctx, "rekognition", at); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment: %v", err)
	}

	month, err := store.Count(ctx, "rekognition", imgguard.PeriodMonth, "2024-02")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if month != n {
		t.Fatalf("month = %d, want %d", month, n)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t, newTestPool(t))
	ctx := context.Background()

	if err := store.Reset(ctx, "sightengine", "2024-02"); !errors.Is(err, imgguard.ErrUsageNotFound) {
		t.Fatalf("reset missing bucket: got %v, want ErrUsageNotFound", err)
	}

	if err := store.Increment(ctx, "sightengine", at); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.Reset(ctx, "sightengine", "2024-02"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	month, _ := store.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-02")
	day, _ := store.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-02-29")
	if month != 0 || day != 1 {
		t.Fatalf("after reset: month=%d day=%d, want 0 and 1", month, day)
	}
}
