package imgguard

import (
	"context"
	"time"
)

// Period is the time bucket a usage counter belongs to.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Key returns the bucket key of t for this period, in UTC.
func (p Period) Key(t time.Time) string {
	if p == PeriodMonth {
		return MonthKey(t)
	}
	return DayKey(t)
}

// DayKey returns the UTC calendar date of t as YYYY-MM-DD.
func DayKey(t time.Time) string { return t.UTC().Format(dayLayout) }

// MonthKey returns the UTC year-month of t as YYYY-MM.
func MonthKey(t time.Time) string { return t.UTC().Format(monthLayout) }

// ValidMonthKey reports whether key is a YYYY-MM month key.
func ValidMonthKey(key string) bool {
	if len(key) != len(monthLayout) {
		return false
	}
	_, err := time.Parse(monthLayout, key)
	return err == nil
}

// UsageLedger persists per-provider request counts by day and by month.
// Implementations must increment atomically; counters are the only source
// of truth for quota decisions.
type UsageLedger interface {
	// Increment adds one to both the daily and the monthly bucket of at,
	// creating either bucket if absent.
	Increment(ctx context.Context, provider string, at time.Time) error

	// Count returns the current count of a bucket, or 0 if it does not exist.
	Count(ctx context.Context, provider string, period Period, key string) (int64, error)

	// Reset zeroes the monthly bucket. Returns ErrUsageNotFound if the
	// bucket does not exist.
	Reset(ctx context.Context, provider, monthKey string) error
}

// UsageCounter is a single persisted bucket.
type UsageCounter struct {
	Provider  string
	Period    Period
	PeriodKey string
	Count     int64
}
