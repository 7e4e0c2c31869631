package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/imgguard"
	"github.com/ineyio/imgguard/ledger"
)

var at = time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)

func TestMemoryLedger_IncrementBothBuckets(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Increment(ctx, "sightengine", at))
	require.NoError(t, l.Increment(ctx, "sightengine", at.Add(2*time.Minute)))

	day, err := l.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, int64(1), day)

	nextDay, err := l.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), nextDay)

	jan, err := l.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-01")
	require.NoError(t, err)
	feb, err := l.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), jan)
	assert.Equal(t, int64(1), feb)

	other, err := l.Count(ctx, "rekognition", imgguard.PeriodMonth, "2024-01")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestMemoryLedger_ConcurrentIncrements(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	const n = 1000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Increment(ctx, "sightengine", at))
		}()
	}
	wg.Wait()

	month, err := l.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, int64(n), month)

	day, err := l.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, int64(n), day)
}

func TestMemoryLedger_Reset(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ctx := context.Background()

	assert.ErrorIs(t, l.Reset(ctx, "sightengine", "2024-01"), imgguard.ErrUsageNotFound)

	require.NoError(t, l.Increment(ctx, "sightengine", at))
	require.NoError(t, l.Reset(ctx, "sightengine", "2024-01"))

	month, err := l.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-01")
	require.NoError(t, err)
	assert.Zero(t, month)

	// The daily bucket is untouched.
	day, err := l.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, int64(1), day)
}

func TestMemoryLedger_Counters(t *testing.T) {
	l := ledger.NewMemoryLedger()
	l.Set("sightengine", imgguard.PeriodMonth, "2024-01", 7)
	l.Set("rekognition", imgguard.PeriodDay, "2024-01-02", 2)

	assert.Equal(t, []imgguard.UsageCounter{
		{Provider: "rekognition", Period: imgguard.PeriodDay, PeriodKey: "2024-01-02", Count: 2},
		{Provider: "sightengine", Period: imgguard.PeriodMonth, PeriodKey: "2024-01", Count: 7},
	}, l.Counters())
}
