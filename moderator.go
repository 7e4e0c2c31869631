package imgguard

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Moderator routes image moderation requests across providers under
// per-provider usage quotas.
type Moderator struct {
	cfg       Config
	providers map[string]Provider
	ledger    UsageLedger
	quota     *QuotaPolicy
	meter     Meter
	now       func() time.Time
	validate  *validator.Validate
}

// Option configures a Moderator.
type Option func(*Moderator)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(md *Moderator) { md.meter = m }
}

// WithClock sets the time source used for quota buckets.
func WithClock(now func() time.Time) Option {
	return func(md *Moderator) { md.now = now }
}

// NewModerator creates a Moderator. Every provider in cfg must have a
// matching adapter; adapters not named in cfg are ignored.
func NewModerator(cfg Config, providers []Provider, ledger UsageLedger, opts ...Option) (*Moderator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("imgguard: usage ledger is required")
	}

	provMap := make(map[string]Provider, len(providers))
	for _, p := range providers {
		provMap[p.Name()] = p
	}

	limits := make(map[string]QuotaLimits, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if _, ok := provMap[pc.Name]; !ok {
			return nil, fmt.Errorf("imgguard: provider %q is configured but has no adapter", pc.Name)
		}
		limits[pc.Name] = pc.Limits()
	}

	m := &Moderator{
		cfg:       cfg,
		providers: provMap,
		ledger:    ledger,
		quota:     NewQuotaPolicy(ledger, limits),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.meter == nil {
		m.meter = noopMeter{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// stage is a step of the moderation state machine.
type stage int

const (
	stageSelect stage = iota
	stageInvoke
	stageNormalize
	stageRecord
	stageDone
	stageFailed
)

// Check moderates a single image.
//
// Without a named provider, providers are tried in configured order and a
// quota-exhausted provider is skipped without being invoked. Provider
// errors are never retried on another provider. If every provider is
// exhausted the error names the primary one.
func (m *Moderator) Check(ctx context.Context, req ModerationRequest) (Verdict, error) {
	if err := m.validateRequest(req); err != nil {
		return Verdict{}, &ModerationError{Err: err, Provider: req.Provider, ImageURL: req.ImageURL}
	}

	candidates, err := buildCandidates(m.cfg, m.providers, req.Provider)
	if err != nil {
		return Verdict{}, &ModerationError{Err: err, Provider: req.Provider, ImageURL: req.ImageURL}
	}

	var (
		requestID = uuid.New().String()
		st        = stageSelect
		next      int
		c         candidate
		raw       RawResult
		verdict   Verdict
		failure   error
		started   time.Time
	)

	fail := func(err error) {
		failure = &ModerationError{Err: err, Provider: c.name(), ImageURL: req.ImageURL}
		st = stageFailed
	}

	for {
		switch st {
		case stageSelect:
			if next == len(candidates) {
				c = candidates[0]
				fail(fmt.Errorf("%w for %s", ErrQuotaExhausted, c.name()))
				continue
			}
			c = candidates[next]
			next++

			decision, err := m.quota.CanUse(ctx, c.name(), m.now())
			if err != nil {
				fail(fmt.Errorf("%w: quota check: %v", ErrInternal, err))
				continue
			}
			if !decision.Allowed {
				m.meter.OnQuotaDenied(QuotaEvent{
					RequestID: requestID,
					Provider:  c.name(),
					Period:    decision.Exhausted,
					Count:     decision.Count,
					Limit:     decision.Limit,
				})
				continue
			}

			m.meter.OnRoute(RouteEvent{
				RequestID:  requestID,
				Provider:   c.name(),
				ImageURL:   req.ImageURL,
				Requested:  c.requested,
				AttemptNum: next,
			})
			st = stageInvoke

		case stageInvoke:
			started = time.Now()
			raw, err = c.provider.Classify(ctx, req.ImageURL)
			if err != nil {
				m.meter.OnResult(ResultEvent{
					RequestID: requestID,
					Provider:  c.name(),
					ImageURL:  req.ImageURL,
					Duration:  time.Since(started),
					Error:     err,
				})
				fail(err)
				continue
			}
			st = stageNormalize

		case stageNormalize:
			verdict, err = c.provider.Normalize(raw, req.ImageURL)
			if err != nil {
				m.meter.OnResult(ResultEvent{
					RequestID: requestID,
					Provider:  c.name(),
					ImageURL:  req.ImageURL,
					Duration:  time.Since(started),
					Error:     err,
				})
				fail(err)
				continue
			}
			verdict.Provider = c.name()
			verdict.ImageURL = req.ImageURL
			st = stageRecord

		case stageRecord:
			// The provider has already been paid for; a ledger failure is
			// reported but does not discard the verdict.
			usageErr := m.ledger.Increment(ctx, c.name(), m.now())
			m.meter.OnResult(ResultEvent{
				RequestID: requestID,
				Provider:  c.name(),
				ImageURL:  req.ImageURL,
				Success:   true,
				Duration:  time.Since(started),
				Verdict:   verdict,
				UsageErr:  usageErr,
			})
			st = stageDone

		case stageDone:
			return verdict, nil

		case stageFailed:
			return Verdict{}, failure
		}
	}
}

func (m *Moderator) validateRequest(req ModerationRequest) error {
	if err := m.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	u, err := url.Parse(req.ImageURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: image url must be absolute", ErrInvalidRequest)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported image url scheme %q", ErrInvalidRequest, u.Scheme)
	}
	return nil
}

// Usage returns the current daily and monthly counters of every configured
// provider, in priority order.
func (m *Moderator) Usage(ctx context.Context) ([]ProviderUsage, error) {
	now := m.now()
	out := make([]ProviderUsage, 0, len(m.cfg.Providers))
	for _, pc := range m.cfg.Providers {
		daily, err := m.ledger.Count(ctx, pc.Name, PeriodDay, DayKey(now))
		if err != nil {
			return nil, fmt.Errorf("imgguard: usage for %s: %w", pc.Name, err)
		}
		monthly, err := m.ledger.Count(ctx, pc.Name, PeriodMonth, MonthKey(now))
		if err != nil {
			return nil, fmt.Errorf("imgguard: usage for %s: %w", pc.Name, err)
		}
		out = append(out, ProviderUsage{
			Provider: pc.Name,
			Daily:    daily,
			Monthly:  monthly,
			Limits:   pc.Limits(),
		})
	}
	return out, nil
}

// ResetUsage zeroes a provider's monthly counter for monthKey (YYYY-MM).
func (m *Moderator) ResetUsage(ctx context.Context, provider, monthKey string) error {
	if _, ok := m.cfg.Provider(provider); !ok {
		return fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}
	if !ValidMonthKey(monthKey) {
		return fmt.Errorf("%w: month must be YYYY-MM, got %q", ErrInvalidRequest, monthKey)
	}
	return m.ledger.Reset(ctx, provider, monthKey)
}

// Providers returns the configured provider names in priority order.
func (m *Moderator) Providers() []string {
	names := make([]string, 0, len(m.cfg.Providers))
	for _, pc := range m.cfg.Providers {
		names = append(names, pc.Name)
	}
	return names
}
