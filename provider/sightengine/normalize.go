package sightengine

import (
	"strings"

	"github.com/ineyio/imgguard"
)

// Result is the subset of a check.json response the normalizer reads.
type Result struct {
	Status    string         `json:"status"`
	Error     *APIError      `json:"error,omitempty"`
	Nudity    Nudity         `json:"nudity"`
	Offensive map[string]any `json:"offensive"`
	Gore      Probability    `json:"gore"`
	Scam      Probability    `json:"scam"`
}

// APIError is the error object of a failed request.
type APIError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Nudity holds the nudity-2.1 model output.
type Nudity struct {
	SexualActivity   float64 `json:"sexual_activity"`
	SexualDisplay    float64 `json:"sexual_display"`
	Erotica          float64 `json:"erotica"`
	VerySuggestive   float64 `json:"very_suggestive"`
	Suggestive       float64 `json:"suggestive"`
	MildlySuggestive float64 `json:"mildly_suggestive"`
	// SuggestiveClasses mixes numeric scores with nested objects.
	SuggestiveClasses map[string]any `json:"suggestive_classes"`
}

// Probability holds a single-probability model output (gore, scam).
type Probability struct {
	Prob float64 `json:"prob"`
}

const (
	explicitThreshold   = 0.70
	suggestiveThreshold = 0.60
	swimwearThreshold   = 0.50
	categoryThreshold   = 0.70
)

var swimwearClasses = []string{"bikini", "swimwear_one_piece", "swimwear_male"}

// Normalize maps a Sightengine result to a Verdict. Categories are checked
// in the order nudity, suggestive, violence, gore, hate, other and the first
// match is the reason. Score is the largest probability seen, whichever
// category triggered.
func Normalize(res Result, imageURL string) imgguard.Verdict {
	n := res.Nudity

	explicit := max(n.SexualActivity, n.SexualDisplay, n.Erotica)
	suggestive := max(n.VerySuggestive, n.Suggestive, n.MildlySuggestive)
	score := max(explicit, suggestive, res.Gore.Prob, res.Scam.Prob)

	// Suggestive content that is mostly swimwear is not flagged.
	swimwear := false
	for _, class := range swimwearClasses {
		if v, ok := number(n.SuggestiveClasses[class]); ok && v > swimwearThreshold {
			swimwear = true
		}
	}
	for _, v := range n.SuggestiveClasses {
		if f, ok := number(v); ok {
			score = max(score, f)
		}
	}

	violence := false
	for key, v := range res.Offensive {
		f, ok := number(v)
		if !ok {
			continue
		}
		score = max(score, f)
		if f > categoryThreshold && !strings.Contains(key, "suggestive") {
			violence = true
		}
	}
	hate, _ := number(res.Offensive["hate_symbols"])

	reason := imgguard.ReasonNone
	switch {
	case explicit > explicitThreshold:
		reason = imgguard.ReasonNudity
	case suggestive > suggestiveThreshold && !swimwear:
		reason = imgguard.ReasonSuggestive
	case violence:
		reason = imgguard.ReasonViolence
	case res.Gore.Prob > categoryThreshold:
		reason = imgguard.ReasonGore
	case hate > categoryThreshold:
		reason = imgguard.ReasonHate
	case res.Scam.Prob > categoryThreshold:
		reason = imgguard.ReasonOther
	}

	return imgguard.Verdict{
		IsSafe:   reason == imgguard.ReasonNone,
		Reason:   reason,
		Provider: Name,
		ImageURL: imageURL,
		Score:    clamp(score),
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
