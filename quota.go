package imgguard

import (
	"context"
	"fmt"
	"time"
)

// QuotaLimits caps how often a provider may be invoked. A nil Daily means
// the provider has no daily dimension.
type QuotaLimits struct {
	Daily   *int64 `yaml:"daily_limit" json:"daily,omitempty"`
	Monthly int64  `yaml:"monthly_limit" json:"monthly"`
}

// QuotaDecision is the outcome of a quota check.
type QuotaDecision struct {
	Allowed bool
	// Exhausted names the period that denied the request.
	Exhausted Period
	Count     int64
	Limit     int64
}

// QuotaPolicy decides whether a provider may be used, based on ledger
// counts and static limits. It never mutates the ledger.
//
// The check and the following provider call are not transactional: N
// concurrent requests that all observe remaining quota will all proceed,
// so a counter may overshoot its limit by up to N-1.
type QuotaPolicy struct {
	ledger UsageLedger
	limits map[string]QuotaLimits
}

// NewQuotaPolicy creates a QuotaPolicy for the given per-provider limits.
func NewQuotaPolicy(ledger UsageLedger, limits map[string]QuotaLimits) *QuotaPolicy {
	cp := make(map[string]QuotaLimits, len(limits))
	for name, l := range limits {
		cp[name] = l
	}
	return &QuotaPolicy{ledger: ledger, limits: cp}
}

// CanUse checks the daily limit (if any) before the monthly one. A count
// equal to the limit is exhausted.
func (p *QuotaPolicy) CanUse(ctx context.Context, provider string, now time.Time) (QuotaDecision, error) {
	limits, ok := p.limits[provider]
	if !ok {
		return QuotaDecision{}, fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}

	if limits.Daily != nil {
		count, err := p.ledger.Count(ctx, provider, PeriodDay, DayKey(now))
		if err != nil {
			return QuotaDecision{}, fmt.Errorf("imgguard: daily count for %s: %w", provider, err)
		}
		if count >= *limits.Daily {
			return QuotaDecision{Exhausted: PeriodDay, Count: count, Limit: *limits.Daily}, nil
		}
	}

	count, err := p.ledger.Count(ctx, provider, PeriodMonth, MonthKey(now))
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("imgguard: monthly count for %s: %w", provider, err)
	}
	if count >= limits.Monthly {
		return QuotaDecision{Exhausted: PeriodMonth, Count: count, Limit: limits.Monthly}, nil
	}

	return QuotaDecision{Allowed: true, Count: count, Limit: limits.Monthly}, nil
}
