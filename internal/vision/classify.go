// Package vision decides which pages warrant a captioning call, ranks the
// candidates, and talks to the vision-capable model.
package vision

import (
	"regexp"

	"github.com/joseph-ayodele/docingest/constants"
)

// Signals is everything the classifier may look at for one page. Classify
// is a pure function of this value, so re-running it yields the same
// decision and reason.
type Signals struct {
	VisionEnabled bool

	NativeTextChars int
	AlphaRatio      float64

	ImageCount     int
	ImageAreaRatio float64
	VectorOps      int

	OCRTextLen      int
	OCRConfidence   *float64
	ShortTokenRatio float64

	HasCaptionCue bool // text references a figure/diagram/chart/table
	HasPageImage  bool // a pre-stored full-page raster exists
}

// Thresholds tune the rule cascade and the rank score.
type Thresholds struct {
	StrongTextChars int
	StrongTextAlpha float64

	TextWinsChars int
	TextWinsAlpha float64

	BigImageArea      float64
	BigImageTextChars int

	VisionArea float64

	DiagramVectorOps int
	DiagramMinImages int
	DiagramTextChars int

	LowOCRConfidence    float64
	ShortOCRTextLen     int
	HighShortTokenRatio float64
	HeavyVectorOps      int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongTextChars:     400,
		StrongTextAlpha:     0.65,
		TextWinsChars:       150,
		TextWinsAlpha:       0.5,
		BigImageArea:        0.35,
		BigImageTextChars:   60,
		VisionArea:          0.18,
		DiagramVectorOps:    120,
		DiagramMinImages:    2,
		DiagramTextChars:    250,
		LowOCRConfidence:    0.55,
		ShortOCRTextLen:     80,
		HighShortTokenRatio: 0.4,
		HeavyVectorOps:      200,
	}
}

// Decision is the classifier outcome for one page.
type Decision struct {
	NeedsVision bool
	Reason      string
}

// rule is one step of the cascade: first match wins, so ordering here is
// the precedence contract.
type rule struct {
	reason string
	needs  bool
	match  func(s Signals, t Thresholds) bool
}

var rules = []rule{
	{constants.ReasonVisionDisabled, false, func(s Signals, _ Thresholds) bool {
		return !s.VisionEnabled
	}},
	{constants.ReasonDiagramCaption, true, func(s Signals, _ Thresholds) bool {
		return s.HasCaptionCue && s.HasPageImage
	}},
	{constants.ReasonImageBigOverride, true, func(s Signals, t Thresholds) bool {
		return s.ImageCount > 0 &&
			(s.ImageAreaRatio >= t.BigImageArea || s.NativeTextChars < t.BigImageTextChars)
	}},
	{constants.ReasonTextStrong, false, func(s Signals, t Thresholds) bool {
		return strongText(s, t)
	}},
	{constants.ReasonTextWins, false, func(s Signals, t Thresholds) bool {
		return s.NativeTextChars >= t.TextWinsChars && s.AlphaRatio >= t.TextWinsAlpha
	}},
	{constants.ReasonNoImages, false, func(s Signals, _ Thresholds) bool {
		return s.ImageCount == 0
	}},
	{constants.ReasonImageAreaLow, false, func(s Signals, t Thresholds) bool {
		return s.ImageAreaRatio < t.VisionArea
	}},
	{constants.ReasonImageNotImportant, false, func(s Signals, t Thresholds) bool {
		return s.VectorOps < t.DiagramVectorOps && s.ImageCount < t.DiagramMinImages
	}},
	{constants.ReasonNativeTextHigh, false, func(s Signals, t Thresholds) bool {
		return s.NativeTextChars > t.StrongTextChars
	}},
	{constants.ReasonImageHeavyLowText, true, func(s Signals, t Thresholds) bool {
		return garbledOCR(s, t)
	}},
	{constants.ReasonImageHeavyDiagram, true, func(Signals, Thresholds) bool {
		return true
	}},
}

// Classify evaluates the cascade top to bottom and stops at the first match.
// The final rule always matches, so every page gets a decision and reason.
func Classify(s Signals, t Thresholds) Decision {
	for _, r := range rules {
		if r.match(s, t) {
			return Decision{NeedsVision: r.needs, Reason: r.reason}
		}
	}
	// Unreachable: the cascade terminates with a catch-all rule.
	return Decision{NeedsVision: false, Reason: constants.ReasonNoImages}
}

// RankScore orders candidates when they exceed the page budget. It plays no
// part in the boolean decision.
func RankScore(s Signals, t Thresholds) float64 {
	score := 2 * s.ImageAreaRatio
	if s.HasCaptionCue {
		score++
	}
	if s.NativeTextChars < t.DiagramTextChars {
		score++
	}
	if s.OCRConfidence != nil && *s.OCRConfidence < t.LowOCRConfidence {
		score += 0.5
	}
	if s.OCRTextLen < t.ShortOCRTextLen && s.ShortTokenRatio > t.HighShortTokenRatio {
		score += 0.5
	}
	if imageHeavy(s, t) && s.VectorOps >= t.HeavyVectorOps {
		score += 0.1
	}
	return score
}

func strongText(s Signals, t Thresholds) bool {
	return s.NativeTextChars >= t.StrongTextChars && s.AlphaRatio >= t.StrongTextAlpha
}

func imageHeavy(s Signals, t Thresholds) bool {
	return s.ImageCount > 0 && s.ImageAreaRatio >= t.VisionArea
}

func garbledOCR(s Signals, t Thresholds) bool {
	if s.OCRTextLen < t.ShortOCRTextLen {
		return true
	}
	if s.OCRConfidence != nil && *s.OCRConfidence < t.LowOCRConfidence {
		return true
	}
	return s.ShortTokenRatio > t.HighShortTokenRatio
}

var captionCueRE = regexp.MustCompile(`(?i)\b(figure|fig\.?|diagram|chart|table|graph(?:ic)?|illustration|schematic)\s*\d*\b`)

// HasCaptionCue reports whether the page text references a visual element.
func HasCaptionCue(text string) bool {
	return captionCueRE.MatchString(text)
}
