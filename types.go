package imgguard

// Reason is the categorical explanation attached to a verdict.
type Reason string

const (
	ReasonNone       Reason = "none"
	ReasonNudity     Reason = "nudity"
	ReasonSuggestive Reason = "suggestive"
	ReasonViolence   Reason = "violence"
	ReasonGore       Reason = "gore"
	ReasonHate       Reason = "hate"
	ReasonOther      Reason = "other"
)

// ModerationRequest asks whether the image behind ImageURL is safe.
// Provider is optional; when set, only that provider is considered.
type ModerationRequest struct {
	ImageURL string `json:"imageUrl" validate:"required,url"`
	Provider string `json:"service,omitempty"`
}

// Verdict is the provider-independent moderation outcome.
type Verdict struct {
	IsSafe   bool    `json:"is_safe"`
	Reason   Reason  `json:"reason"`
	Provider string  `json:"provider"`
	ImageURL string  `json:"imageUrl"`
	Score    float64 `json:"score"`
}

// ProviderUsage reports current counters and configured limits for a provider.
type ProviderUsage struct {
	Provider string      `json:"provider"`
	Daily    int64       `json:"daily"`
	Monthly  int64       `json:"monthly"`
	Limits   QuotaLimits `json:"limits"`
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(v int64) *int64 { return &v }
