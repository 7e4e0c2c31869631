package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ineyio/imgguard"
)

// Provider is a mock moderation provider for testing.
type Provider struct {
	name         string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	verdict      imgguard.Verdict
	classifyFunc func(imageURL string) (imgguard.Verdict, error)
}

var _ imgguard.Provider = (*Provider)(nil)

// Result is the raw payload produced by the mock.
type Result struct {
	Verdict imgguard.Verdict
}

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider that reports every image as safe.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:    "mock",
		verdict: imgguard.Verdict{IsSafe: true, Reason: imgguard.ReasonNone},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithVerdict sets the verdict returned for every image.
func WithVerdict(v imgguard.Verdict) Option {
	return func(p *Provider) { p.verdict = v }
}

// WithClassifyFunc sets a custom classification function.
func WithClassifyFunc(fn func(imageURL string) (imgguard.Verdict, error)) Option {
	return func(p *Provider) { p.classifyFunc = fn }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Classify(ctx context.Context, imageURL string) (imgguard.RawResult, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", imgguard.ErrProviderUnavailable, ctx.Err())
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return nil, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return nil, imgguard.ErrProviderUnavailable
	}

	if p.classifyFunc != nil {
		v, err := p.classifyFunc(imageURL)
		if err != nil {
			return nil, err
		}
		return Result{Verdict: v}, nil
	}

	return Result{Verdict: p.verdict}, nil
}

func (p *Provider) Normalize(raw imgguard.RawResult, imageURL string) (imgguard.Verdict, error) {
	res, ok := raw.(Result)
	if !ok {
		return imgguard.Verdict{}, fmt.Errorf("%w: mock: unexpected raw result %T", imgguard.ErrInternal, raw)
	}
	v := res.Verdict
	v.Provider = p.name
	v.ImageURL = imageURL
	return v, nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }
