package constants

// Reason codes attached to a page's vision decision. The classifier stops at
// the first matching rule, so exactly one of these is recorded per page.
const (
	ReasonVisionDisabled    = "vision-disabled"
	ReasonDiagramCaption    = "diagram-caption"
	ReasonImageBigOverride  = "image-big-override"
	ReasonTextStrong        = "text-strong"
	ReasonTextWins          = "text-wins"
	ReasonNoImages          = "no-images"
	ReasonImageAreaLow      = "image-area-low"
	ReasonImageNotImportant = "image-not-important"
	ReasonNativeTextHigh    = "native-text-high"
	ReasonImageHeavyLowText = "image-heavy-low-text"
	ReasonImageHeavyDiagram = "image-heavy-diagram"
)

// Document types inferred by sampling native text on the leading pages.
// Slide decks get a lower OCR trigger threshold.
const (
	DocTypeStandard = "standard"
	DocTypeSlides   = "slides"
)
