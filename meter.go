package imgguard

import "time"

// Meter observes moderation events for monitoring/logging.
type Meter interface {
	// OnRoute is called when a provider has been selected for a request.
	OnRoute(event RouteEvent)

	// OnQuotaDenied is called when the quota policy skips or rejects a provider.
	OnQuotaDenied(event QuotaEvent)

	// OnResult is called when a provider invocation finishes.
	OnResult(event ResultEvent)
}

// RouteEvent describes a routing decision.
type RouteEvent struct {
	RequestID  string
	Provider   string
	ImageURL   string
	Requested  bool // provider was named by the caller
	AttemptNum int
}

// QuotaEvent describes a quota denial.
type QuotaEvent struct {
	RequestID string
	Provider  string
	Period    Period
	Count     int64
	Limit     int64
}

// ResultEvent describes the outcome of a provider call.
type ResultEvent struct {
	RequestID string
	Provider  string
	ImageURL  string
	Success   bool
	Duration  time.Duration
	Verdict   Verdict
	Error     error
	// UsageErr is set when the verdict was produced but recording usage failed.
	UsageErr error
}

type noopMeter struct{}

func (noopMeter) OnRoute(RouteEvent)       {}
func (noopMeter) OnQuotaDenied(QuotaEvent) {}
func (noopMeter) OnResult(ResultEvent)     {}
