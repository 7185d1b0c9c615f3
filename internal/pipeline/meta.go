package pipeline

import (
	"github.com/joseph-ayodele/docingest/internal/dedup"
	"github.com/joseph-ayodele/docingest/internal/ocr"
)

// PageMeta carries everything the passes know about one page. It is created
// during analysis, mutated across the dedup, OCR, classification and vision
// passes, and discarded after assembly. One pipeline invocation owns it
// exclusively.
type PageMeta struct {
	PageNumber int // 1-based

	Text            string // final chosen variant, OCR or native
	NativeTextChars int
	AlphaRatio      float64

	OCRTextLen      int
	OCRConfidence   *float64
	OCRApplied      bool
	ShortTokenRatio float64

	ImageCount     int
	ImageAreaRatio float64
	VectorOps      int

	NeedsVision       bool
	NeedsVisionReason string
	VisionRankScore   float64
	VisionSummary     *string // raw caption JSON
	VisionImageCount  int

	DuplicateOf  *int   // strictly smaller page number when set
	PageImageKey string // pre-stored full-page raster, captioning fallback

	nativeText string
	raster     *ocr.Raster
	hash       dedup.Hash64
	hashOK     bool
}

// TokenUsage is accumulated across all vision calls of one document.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ProcessingStats is the per-document accounting returned to the caller.
type ProcessingStats struct {
	TotalPages   int
	OCRPages     int
	VisionPages  int
	VisionImages int
	VisionUnits  float64 // sum of imageCount*imageAreaRatio over captioned pages
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Request identifies one document job.
type Request struct {
	// Key is the storage key of the source PDF. A missing key is a hard
	// failure.
	Key string
	// PageImageKeys optionally maps 1-based page numbers to pre-stored
	// full-page raster keys, used as the captioning fallback source.
	PageImageKeys map[int]string
	// VisionBudget caps the number of pages allowed a captioning call.
	// Zero disables vision for the run; AutoVisionBudget derives the cap
	// from the page count and the configured ratio.
	VisionBudget int
}

// AutoVisionBudget asks the pipeline to compute the vision page cap itself.
const AutoVisionBudget = -1

// Result is the pipeline output for one document.
type Result struct {
	Text  string
	Pages []PageMeta
	Stats ProcessingStats
}
