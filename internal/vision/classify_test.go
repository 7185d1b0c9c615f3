package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/docingest/constants"
)

func floatPtr(f float64) *float64 { return &f }

// enabled returns signals for a text-rich page with vision on; tests mutate
// from there.
func enabledSignals() Signals {
	return Signals{
		VisionEnabled:   true,
		NativeTextChars: 500,
		AlphaRatio:      0.8,
	}
}

func TestClassifyVisionDisabledWinsOverEverything(t *testing.T) {
	s := Signals{
		VisionEnabled:  false,
		HasCaptionCue:  true,
		HasPageImage:   true,
		ImageCount:     3,
		ImageAreaRatio: 0.9,
	}
	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonVisionDisabled, d.Reason)
}

func TestClassifyDiagramCaptionCue(t *testing.T) {
	s := enabledSignals()
	s.HasCaptionCue = true
	s.HasPageImage = true

	d := Classify(s, DefaultThresholds())
	assert.True(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonDiagramCaption, d.Reason)
}

func TestClassifyCaptionCueWithoutPageImageFallsThrough(t *testing.T) {
	s := enabledSignals()
	s.HasCaptionCue = true
	s.HasPageImage = false

	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonTextStrong, d.Reason)
}

// A page with little text, one big image and few vector ops must hit the
// big-image override before the "not important" rule gets a say.
func TestClassifyBigImageOverridePrecedence(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 50,
		ImageCount:      1,
		ImageAreaRatio:  0.4,
		VectorOps:       5,
	}
	d := Classify(s, DefaultThresholds())
	assert.True(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageBigOverride, d.Reason)
}

func TestClassifyBigImageOverrideByLowText(t *testing.T) {
	// Area below the big-image cutoff, but text below the big-image text bar.
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 10,
		ImageCount:      1,
		ImageAreaRatio:  0.05,
	}
	d := Classify(s, DefaultThresholds())
	assert.True(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageBigOverride, d.Reason)
}

func TestClassifyTextStrong(t *testing.T) {
	s := enabledSignals()
	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonTextStrong, d.Reason)
}

func TestClassifyTextWins(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 200,
		AlphaRatio:      0.55,
	}
	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonTextWins, d.Reason)
}

func TestClassifyNoImages(t *testing.T) {
	s := Signals{VisionEnabled: true, NativeTextChars: 20}
	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonNoImages, d.Reason)
}

func TestClassifyImageAreaLow(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 100, // above the big-image text bar
		ImageCount:      1,
		ImageAreaRatio:  0.1,
	}
	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageAreaLow, d.Reason)
}

func TestClassifyImageNotImportant(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 100,
		ImageCount:      1,
		ImageAreaRatio:  0.2,
		VectorOps:       10,
	}
	d := Classify(s, DefaultThresholds())
	assert.False(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageNotImportant, d.Reason)
}

func TestClassifyImageHeavyLowText(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 100,
		ImageCount:      2,
		ImageAreaRatio:  0.25,
		VectorOps:       150,
		OCRTextLen:      20, // short OCR output
	}
	d := Classify(s, DefaultThresholds())
	assert.True(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageHeavyLowText, d.Reason)
}

func TestClassifyImageHeavyLowConfidence(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 100,
		ImageCount:      2,
		ImageAreaRatio:  0.25,
		VectorOps:       150,
		OCRTextLen:      500,
		OCRConfidence:   floatPtr(0.3),
	}
	d := Classify(s, DefaultThresholds())
	assert.True(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageHeavyLowText, d.Reason)
}

func TestClassifyImageHeavyDiagram(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 100,
		ImageCount:      2,
		ImageAreaRatio:  0.25,
		VectorOps:       150,
		OCRTextLen:      500,
		OCRConfidence:   floatPtr(0.9),
		ShortTokenRatio: 0.1,
	}
	d := Classify(s, DefaultThresholds())
	assert.True(t, d.NeedsVision)
	assert.Equal(t, constants.ReasonImageHeavyDiagram, d.Reason)
}

func TestClassifyIsPure(t *testing.T) {
	s := Signals{
		VisionEnabled:   true,
		NativeTextChars: 100,
		ImageCount:      2,
		ImageAreaRatio:  0.25,
		VectorOps:       150,
		OCRTextLen:      20,
	}
	t1 := DefaultThresholds()
	first := Classify(s, t1)
	second := Classify(s, t1)
	assert.Equal(t, first, second)
}

func TestRankScore(t *testing.T) {
	th := DefaultThresholds()

	s := Signals{
		ImageAreaRatio:  0.5,
		HasCaptionCue:   true,
		NativeTextChars: 100, // below diagram text threshold
	}
	// 2*0.5 + 1 (cue) + 1 (low text) = 3
	assert.InDelta(t, 3.0, RankScore(s, th), 1e-9)

	s.OCRConfidence = floatPtr(0.3)
	assert.InDelta(t, 3.5, RankScore(s, th), 1e-9)

	s.OCRTextLen = 10
	s.ShortTokenRatio = 0.6
	assert.InDelta(t, 4.0, RankScore(s, th), 1e-9)

	s.ImageCount = 1
	s.VectorOps = 250
	assert.InDelta(t, 4.1, RankScore(s, th), 1e-9)
}

func TestHasCaptionCue(t *testing.T) {
	assert.True(t, HasCaptionCue("see Figure 3 for the topology"))
	assert.True(t, HasCaptionCue("the diagram below shows"))
	assert.True(t, HasCaptionCue("Fig. 2: results"))
	assert.True(t, HasCaptionCue("Table 1 lists"))
	assert.False(t, HasCaptionCue("plain prose with no references"))
	assert.False(t, HasCaptionCue("configure the server"))
}
