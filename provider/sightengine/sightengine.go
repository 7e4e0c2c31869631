// Package sightengine is the Sightengine image moderation adapter.
//
// Sightengine fetches the image itself, so the adapter only passes the URL
// along with the requested models.
package sightengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ineyio/imgguard"
)

// Name is the provider identifier.
const Name = "sightengine"

const (
	defaultBaseURL = "https://api.sightengine.com/1.0"
	defaultModels  = "nudity-2.1,offensive-2.0,scam,gore-2.0"
	defaultTimeout = 30 * time.Second

	maxResponseSize = 1 << 20
)

// Provider is the Sightengine API adapter.
type Provider struct {
	baseURL    string
	apiUser    string
	apiSecret  string
	models     string
	httpClient *http.Client
}

var _ imgguard.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithCredentials sets the api_user/api_secret pair.
func WithCredentials(apiUser, apiSecret string) Option {
	return func(p *Provider) {
		p.apiUser = apiUser
		p.apiSecret = apiSecret
	}
}

// WithModels overrides the comma-separated list of models to run.
func WithModels(models ...string) Option {
	return func(p *Provider) { p.models = strings.Join(models, ",") }
}

// New creates a new Sightengine provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		models:     defaultModels,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return Name }

// Classify runs the configured models against imageURL.
func (p *Provider) Classify(ctx context.Context, imageURL string) (imgguard.RawResult, error) {
	if p.apiUser == "" || p.apiSecret == "" {
		return nil, fmt.Errorf("%w: sightengine credentials are not configured", imgguard.ErrAuthFailed)
	}

	params := url.Values{}
	params.Set("url", imageURL)
	params.Set("models", p.models)
	params.Set("api_user", p.apiUser)
	params.Set("api_secret", p.apiSecret)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/check.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create sightengine request: %v", imgguard.ErrInternal, err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: sightengine: %v", imgguard.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read sightengine response: %v", imgguard.ErrProviderUnavailable, err)
	}

	var res Result
	decodeErr := json.Unmarshal(body, &res)
	if err := mapError(resp.StatusCode, res, decodeErr); err != nil {
		return nil, err
	}
	return res, nil
}

// Normalize maps a Result to a Verdict.
func (p *Provider) Normalize(raw imgguard.RawResult, imageURL string) (imgguard.Verdict, error) {
	switch res := raw.(type) {
	case Result:
		return Normalize(res, imageURL), nil
	case *Result:
		return Normalize(*res, imageURL), nil
	default:
		return imgguard.Verdict{}, fmt.Errorf("%w: sightengine: unexpected raw result %T", imgguard.ErrInternal, raw)
	}
}

// mapError maps Sightengine failures to imgguard errors. The body's error
// object is preferred over the HTTP status, since the API reports some
// failures with 200. A 2xx body is only a result when its status is
// "success".
func mapError(status int, res Result, decodeErr error) error {
	if decodeErr == nil && res.Status != "success" && res.Error != nil {
		return mapAPIError(*res.Error)
	}

	switch {
	case status >= 200 && status < 300:
		if decodeErr != nil {
			return fmt.Errorf("%w: decode sightengine response: %v", imgguard.ErrInternal, decodeErr)
		}
		if res.Status != "success" {
			return fmt.Errorf("%w: sightengine: unexpected status %q", imgguard.ErrInternal, res.Status)
		}
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: sightengine returned %d", imgguard.ErrAuthFailed, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: sightengine returned %d", imgguard.ErrRateLimited, status)
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: sightengine returned %d", imgguard.ErrImageNotFound, status)
	case status >= 500:
		return fmt.Errorf("%w: sightengine returned %d", imgguard.ErrProviderUnavailable, status)
	default:
		return fmt.Errorf("%w: sightengine returned %d", imgguard.ErrInternal, status)
	}
}

func mapAPIError(e APIError) error {
	switch e.Type {
	case "credentials_error", "authentication_error":
		return fmt.Errorf("%w: sightengine: %s", imgguard.ErrAuthFailed, e.Message)
	case "usage_limit", "rate_limit":
		return fmt.Errorf("%w: sightengine: %s", imgguard.ErrRateLimited, e.Message)
	case "media_error", "argument_error":
		return fmt.Errorf("%w: sightengine: %s", imgguard.ErrImageNotFound, e.Message)
	case "internal_error", "server_error":
		return fmt.Errorf("%w: sightengine: %s", imgguard.ErrProviderUnavailable, e.Message)
	default:
		return fmt.Errorf("%w: sightengine %s: %s", imgguard.ErrInternal, e.Type, e.Message)
	}
}
