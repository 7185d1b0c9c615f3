package pipeline

import (
	"bytes"
	"context"
	"image"
	"sort"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/joseph-ayodele/docingest/internal/vision"
)

const fallbackCropFrac = 0.03

// visionPass selects up to budget candidate pages by rank score and issues
// one captioning call per selected page. Failures and timeouts degrade to
// "no caption" for that page; usage from successful calls accumulates.
func (p *Processor) visionPass(ctx context.Context, rid string, doc Document, pages []PageMeta, budget int, enabled bool) TokenUsage {
	var usage TokenUsage
	if !enabled {
		return usage
	}

	candidates := p.selectCandidates(pages, budget)
	if len(candidates) == 0 {
		return usage
	}

	start := time.Now()
	captioned := 0
	for _, idx := range candidates {
		pg := &pages[idx]

		pctx, cancel := context.WithTimeout(ctx, p.opts.PageTimeout)
		payload, imgCount := p.captionPayload(pctx, doc, pg)
		if payload == nil {
			cancel()
			p.logger.Warn("pipeline.vision.no_image",
				"req_id", rid, "page", pg.PageNumber, "reason", pg.NeedsVisionReason)
			continue
		}

		_, raw, u, err := p.captioner.CaptionDiagram(pctx, vision.CaptionRequest{
			Page:     pg.PageNumber,
			JPEG:     payload,
			PageText: pg.Text,
			Reason:   pg.NeedsVisionReason,
		})
		cancel()

		usage.InputTokens += u.PromptTokens
		usage.OutputTokens += u.CompletionTokens
		usage.TotalTokens += u.TotalTokens

		if err != nil {
			p.logger.Warn("pipeline.vision.caption_failed",
				"req_id", rid, "page", pg.PageNumber, "error", err)
			continue
		}
		summary := string(raw)
		pg.VisionSummary = &summary
		pg.VisionImageCount = imgCount
		captioned++
	}

	p.logger.Info("pipeline.vision.ok",
		"req_id", rid,
		"candidates", len(candidates),
		"captioned", captioned,
		"budget", budget,
		"total_tokens", usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return usage
}

// selectCandidates returns the indices of pages that get a captioning call.
// When candidates exceed the budget, the top-budget by rank score survive
// (ties keep ascending page order) and the rest lose their needsVision flag.
func (p *Processor) selectCandidates(pages []PageMeta, budget int) []int {
	var cands []int
	for i := range pages {
		pg := &pages[i]
		if !pg.NeedsVision || pg.DuplicateOf != nil {
			continue
		}
		if pg.ImageCount == 0 && pg.PageImageKey == "" && pg.raster == nil {
			continue
		}
		cands = append(cands, i)
	}
	if budget >= 0 && len(cands) > budget {
		sort.SliceStable(cands, func(a, b int) bool {
			return pages[cands[a]].VisionRankScore > pages[cands[b]].VisionRankScore
		})
		for _, idx := range cands[budget:] {
			pages[idx].NeedsVision = false
		}
		cands = cands[:budget]
		sort.Ints(cands)
	}
	return cands
}

// captionPayload builds the JPEG sent to the model: the page's qualifying
// embedded images composited vertically, else a margin-cropped full-page
// raster. Returns nil when no image source exists.
func (p *Processor) captionPayload(ctx context.Context, doc Document, pg *PageMeta) ([]byte, int) {
	imgs, err := doc.PageImages(ctx, pg.PageNumber, p.opts.MinImagePixelArea, p.opts.MaxImagesPerPage)
	if err == nil && len(imgs) > 0 {
		if composite, cerr := vision.Composite(imgs, p.opts.MaxImageWidth); cerr == nil {
			return composite, len(imgs)
		}
	}

	if img := p.fallbackPageImage(ctx, pg); img != nil {
		cropped := vision.CropMargins(img, fallbackCropFrac)
		if data, eerr := vision.EncodePage(cropped, p.opts.MaxImageWidth); eerr == nil {
			return data, 1
		}
	}
	return nil, 0
}

// fallbackPageImage prefers the pre-stored full-page raster and falls back
// to the render produced during analysis.
func (p *Processor) fallbackPageImage(ctx context.Context, pg *PageMeta) image.Image {
	if pg.PageImageKey != "" {
		if data, err := p.objects.GetObjectBuffer(ctx, pg.PageImageKey); err == nil {
			if img, _, derr := image.Decode(bytes.NewReader(data)); derr == nil {
				return img
			}
		}
	}
	if pg.raster != nil {
		return pg.raster.Image
	}
	return nil
}
