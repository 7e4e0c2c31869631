package imgguard

import "context"

// RawResult is a provider-specific classification payload. Only the
// provider that produced it knows how to read it.
type RawResult any

// Provider is the interface that moderation provider adapters must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "sightengine", "rekognition").
	Name() string

	// Classify runs the provider's classification for the image at imageURL.
	// Failures wrap one of ErrImageNotFound, ErrAuthFailed, ErrRateLimited,
	// ErrProviderUnavailable or ErrInternal.
	Classify(ctx context.Context, imageURL string) (RawResult, error)

	// Normalize maps a RawResult produced by Classify to a Verdict. It must
	// be pure: identical input yields an identical Verdict.
	Normalize(raw RawResult, imageURL string) (Verdict, error)
}

// Auth holds credentials for a provider.
type Auth struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	APISecret string `yaml:"api_secret" json:"api_secret"`
}
