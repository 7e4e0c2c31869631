// Package ledger provides an in-memory UsageLedger for imgguard.
//
// Durable backends live in the redis, postgres, mongo and sqlite
// subpackages.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ineyio/imgguard"
)

// MemoryLedger is an in-memory UsageLedger. Counters are lost on restart,
// so it suits tests and single-process development setups.
type MemoryLedger struct {
	mu     sync.RWMutex
	counts map[bucket]int64
}

type bucket struct {
	provider string
	period   imgguard.Period
	key      string
}

var _ imgguard.UsageLedger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counts: make(map[bucket]int64)}
}

// Increment adds one to the daily and monthly buckets of at.
func (l *MemoryLedger) Increment(_ context.Context, provider string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[bucket{provider, imgguard.PeriodDay, imgguard.DayKey(at)}]++
	l.counts[bucket{provider, imgguard.PeriodMonth, imgguard.MonthKey(at)}]++
	return nil
}

// Count returns the current count of a bucket, or 0.
func (l *MemoryLedger) Count(_ context.Context, provider string, period imgguard.Period, key string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.counts[bucket{provider, period, key}], nil
}

// Reset zeroes the monthly bucket.
func (l *MemoryLedger) Reset(_ context.Context, provider, monthKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := bucket{provider, imgguard.PeriodMonth, monthKey}
	if _, ok := l.counts[b]; !ok {
		return imgguard.ErrUsageNotFound
	}
	l.counts[b] = 0
	return nil
}

// Set overwrites a bucket. Intended for seeding tests.
func (l *MemoryLedger) Set(provider string, period imgguard.Period, key string, count int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[bucket{provider, period, key}] = count
}

// Counters returns a snapshot of every bucket, ordered by provider, period
// and key.
func (l *MemoryLedger) Counters() []imgguard.UsageCounter {
	l.mu.RLock()
	out := make([]imgguard.UsageCounter, 0, len(l.counts))
	for b, n := range l.counts {
		out = append(out, imgguard.UsageCounter{Provider: b.provider, Period: b.period, PeriodKey: b.key, Count: n})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].PeriodKey < out[j].PeriodKey
	})
	return out
}
