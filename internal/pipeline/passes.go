package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/joseph-ayodele/docingest/constants"
	"github.com/joseph-ayodele/docingest/internal/common"
	"github.com/joseph-ayodele/docingest/internal/dedup"
	"github.com/joseph-ayodele/docingest/internal/vision"
)

// dedupPass walks pages in ascending order and marks near-identical renders
// as duplicates of the earliest match. Only "safe" pages participate, so
// visually similar but content-distinct diagram pages never merge.
func (p *Processor) dedupPass(rid string, pages []PageMeta) {
	ix := dedup.NewIndex(p.opts.SimilarityThreshold)
	dups := 0
	for i := range pages {
		pg := &pages[i]
		if !p.dedupEligible(pg) {
			continue
		}
		if orig, ok := ix.Match(pg.hash); ok {
			pg.DuplicateOf = &orig
			dups++
			p.logger.Info("pipeline.dedup.match",
				"req_id", rid, "page", pg.PageNumber, "duplicate_of", orig)
			continue
		}
		ix.Add(pg.PageNumber, pg.hash)
	}
	if dups > 0 {
		p.logger.Info("pipeline.dedup.ok", "req_id", rid, "duplicates", dups, "indexed", ix.Len())
	}
}

// dedupEligible holds for pages that look like near-blank OCR-only scans.
func (p *Processor) dedupEligible(pg *PageMeta) bool {
	return pg.hashOK &&
		pg.NativeTextChars < p.opts.Thresholds.DiagramTextChars &&
		pg.ImageCount == 0 &&
		pg.ImageAreaRatio < p.opts.Thresholds.VisionArea &&
		pg.VectorOps < p.opts.DedupVectorOpsMax
}

// ocrPass runs OCR sequentially over the non-duplicate pages whose native
// text is too weak to trust. The threshold is lower for slide decks.
func (p *Processor) ocrPass(ctx context.Context, rid string, pages []PageMeta, docType string) {
	threshold := p.opts.OCRThresholdStandard
	if docType == constants.DocTypeSlides {
		threshold = p.opts.OCRThresholdSlides
	}

	if !p.engine.Available() {
		p.logger.Warn("pipeline.ocr.unavailable",
			"req_id", rid, "doc_type", docType, "error", common.ErrOCRUnavailable)
		return
	}

	start := time.Now()
	ran := 0
	for i := range pages {
		pg := &pages[i]
		if pg.DuplicateOf != nil || pg.raster == nil {
			continue
		}
		if !p.ocrNeeded(pg, threshold) {
			continue
		}

		res, err := p.engine.Recognize(ctx, pg.raster.JPEG)
		if err != nil {
			p.logger.Warn("pipeline.ocr.failed",
				"req_id", rid, "page", pg.PageNumber, "error", err)
			continue
		}
		ran++
		pg.OCRApplied = true
		pg.OCRTextLen = len(res.Text)
		pg.OCRConfidence = res.Confidence
		pg.ShortTokenRatio = res.ShortTokenRatio
		if strings.TrimSpace(res.Text) != "" {
			pg.Text = res.Text
		}
	}
	if ran > 0 {
		p.logger.Info("pipeline.ocr.ok",
			"req_id", rid,
			"doc_type", docType,
			"pages", ran,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// ocrNeeded holds when the page's native text is below the document-type
// threshold and the page does not already strongly win on native text.
func (p *Processor) ocrNeeded(pg *PageMeta, threshold int) bool {
	t := p.opts.Thresholds
	strong := pg.NativeTextChars >= t.StrongTextChars && pg.AlphaRatio >= t.StrongTextAlpha
	return pg.NativeTextChars < threshold && !strong
}

// classifyPass runs the vision-need cascade on every non-duplicate page and
// records the rank score used later for budget selection.
func (p *Processor) classifyPass(pages []PageMeta, visionEnabled bool) {
	for i := range pages {
		pg := &pages[i]
		if pg.DuplicateOf != nil {
			continue
		}
		s := p.signals(pg, visionEnabled)
		d := vision.Classify(s, p.opts.Thresholds)
		pg.NeedsVision = d.NeedsVision
		pg.NeedsVisionReason = d.Reason
		pg.VisionRankScore = vision.RankScore(s, p.opts.Thresholds)
	}
}

func (p *Processor) signals(pg *PageMeta, visionEnabled bool) vision.Signals {
	return vision.Signals{
		VisionEnabled:   visionEnabled,
		NativeTextChars: pg.NativeTextChars,
		AlphaRatio:      pg.AlphaRatio,
		ImageCount:      pg.ImageCount,
		ImageAreaRatio:  pg.ImageAreaRatio,
		VectorOps:       pg.VectorOps,
		OCRTextLen:      pg.OCRTextLen,
		OCRConfidence:   pg.OCRConfidence,
		ShortTokenRatio: pg.ShortTokenRatio,
		HasCaptionCue:   vision.HasCaptionCue(pg.Text),
		HasPageImage:    pg.PageImageKey != "" || pg.raster != nil,
	}
}

// inheritDuplicates copies the post-vision-pass outcome from each original
// onto its duplicates. Duplicates never trigger their own captioning call.
func (p *Processor) inheritDuplicates(pages []PageMeta) {
	for i := range pages {
		pg := &pages[i]
		if pg.DuplicateOf == nil {
			continue
		}
		orig := &pages[*pg.DuplicateOf-1]
		pg.NeedsVision = orig.NeedsVision
		pg.NeedsVisionReason = orig.NeedsVisionReason
		pg.VisionSummary = orig.VisionSummary
		pg.VisionImageCount = orig.VisionImageCount
	}
}
