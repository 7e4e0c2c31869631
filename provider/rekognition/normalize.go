package rekognition

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"

	"github.com/ineyio/imgguard"
)

// Result is the moderation output of a DetectModerationLabels call.
type Result struct {
	Detections   []Detection
	ModelVersion string
}

// Detection is a single moderation label. Confidence is on a 0-100 scale.
type Detection struct {
	Name       string
	ParentName string
	Confidence float64
}

// confidenceThreshold is on Rekognition's 0-100 scale.
const confidenceThreshold = 80

// unsafeLabels are the only labels that can make an image unsafe.
var unsafeLabels = map[string]struct{}{
	"Explicit Nudity":          {},
	"Explicit Sexual Activity": {},
	"Violence":                 {},
	"Blood & Gore":             {},
	"Hate Symbols":             {},
	"Drugs & Tobacco":          {},
	"Alcohol":                  {},
	"Gambling":                 {},
	"Exposed Male Genitalia":   {},
	"Exposed Female Genitalia": {},
	"Exposed Buttocks or Anus": {},
	"Sex Toys":                 {},
}

var (
	nudityTerms   = []string{"explicit", "genitalia", "exposed", "sexual activity", "sex toys"}
	violenceTerms = []string{"violence", "gore", "blood"}
	goreTerms     = []string{"gore", "blood"}
	hateTerms     = []string{"hate"}
)

// Normalize maps a Rekognition result to a Verdict. Only allow-listed labels
// above the confidence threshold count; Score is the highest such confidence
// scaled to 0-1.
func Normalize(res Result, imageURL string) imgguard.Verdict {
	var names []string
	var top float64
	for _, d := range res.Detections {
		if _, ok := unsafeLabels[d.Name]; !ok || d.Confidence <= confidenceThreshold {
			continue
		}
		names = append(names, strings.ToLower(d.Name))
		top = max(top, d.Confidence)
	}

	if len(names) == 0 {
		return imgguard.Verdict{
			IsSafe:   true,
			Reason:   imgguard.ReasonNone,
			Provider: Name,
			ImageURL: imageURL,
		}
	}

	return imgguard.Verdict{
		IsSafe:   false,
		Reason:   reasonFor(names),
		Provider: Name,
		ImageURL: imageURL,
		Score:    min(top/100, 1),
	}
}

// reasonFor picks the reason from lower-cased label names. Violence is
// checked before gore, so "Blood & Gore" reports violence.
func reasonFor(names []string) imgguard.Reason {
	switch {
	case anyContains(names, nudityTerms):
		return imgguard.ReasonNudity
	case anyContains(names, violenceTerms):
		return imgguard.ReasonViolence
	case anyContains(names, goreTerms):
		return imgguard.ReasonGore
	case anyContains(names, hateTerms):
		return imgguard.ReasonHate
	default:
		return imgguard.ReasonOther
	}
}

func anyContains(names, terms []string) bool {
	for _, name := range names {
		for _, term := range terms {
			if strings.Contains(name, term) {
				return true
			}
		}
	}
	return false
}

func resultFromOutput(out *rekognition.DetectModerationLabelsOutput) Result {
	res := Result{ModelVersion: aws.ToString(out.ModerationModelVersion)}
	for _, l := range out.ModerationLabels {
		res.Detections = append(res.Detections, Detection{
			Name:       aws.ToString(l.Name),
			ParentName: aws.ToString(l.ParentName),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		})
	}
	return res
}
