package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/imgguard"
	ledgerredis "github.com/ineyio/imgguard/ledger/redis"
)

var at = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...ledgerredis.Option) (*ledgerredis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return ledgerredis.New(client, opts...), mr
}

func TestIncrementAndCount(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Increment(ctx, "sightengine", at))
	require.NoError(t, store.Increment(ctx, "sightengine", at))

	day, err := store.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, int64(2), day)

	month, err := store.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, int64(2), month)

	missing, err := store.Count(ctx, "rekognition", imgguard.PeriodMonth, "2024-05")
	require.NoError(t, err)
	assert.Zero(t, missing)

	assert.True(t, mr.Exists("imgguard:usage:{sightengine}:day:2024-05-10"))
	assert.True(t, mr.Exists("imgguard:usage:{sightengine}:month:2024-05"))
}

func TestDayBucketExpires(t *testing.T) {
	store, mr := newTestStore(t, ledgerredis.WithKeyPrefix("t:"), ledgerredis.WithDayTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, store.Increment(ctx, "sightengine", at))
	assert.Equal(t, time.Hour, mr.TTL("t:{sightengine}:day:2024-05-10"))
	assert.Zero(t, mr.TTL("t:{sightengine}:month:2024-05"))

	mr.FastForward(2 * time.Hour)

	day, err := store.Count(ctx, "sightengine", imgguard.PeriodDay, "2024-05-10")
	require.NoError(t, err)
	assert.Zero(t, day)

	month, err := store.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), month)
}

func TestConcurrentIncrements(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const n = 1000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Increment(ctx, "rekognition", at))
		}()
	}
	wg.Wait()

	month, err := store.Count(ctx, "rekognition", imgguard.PeriodMonth, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, int64(n), month)

	day, err := store.Count(ctx, "rekognition", imgguard.PeriodDay, imgguard.DayKey(at))
	require.NoError(t, err)
	assert.Equal(t, int64(n), day)
}

func TestReset(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Reset(ctx, "sightengine", "2024-05"), imgguard.ErrUsageNotFound)

	require.NoError(t, store.Increment(ctx, "sightengine", at))
	require.NoError(t, store.Reset(ctx, "sightengine", "2024-05"))

	month, err := store.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-05")
	require.NoError(t, err)
	assert.Zero(t, month)

	require.NoError(t, store.Increment(ctx, "sightengine", at))
	month, err = store.Count(ctx, "sightengine", imgguard.PeriodMonth, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), month)
}

func TestUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Increment(context.Background(), "sightengine", at)
	assert.ErrorContains(t, err, "imgguard/redis: increment")

	_, err = store.Count(context.Background(), "sightengine", imgguard.PeriodDay, "2024-05-10")
	assert.ErrorContains(t, err, "imgguard/redis: count")
}
