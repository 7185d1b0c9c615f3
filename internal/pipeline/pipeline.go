// Package pipeline turns one stored PDF into a single machine-readable text
// document: parallel per-page analysis, sequential dedup, OCR where native
// text is weak, a budget-capped vision captioning pass, and assembly.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docingest/constants"
	"github.com/joseph-ayodele/docingest/internal/common"
	"github.com/joseph-ayodele/docingest/internal/dedup"
	"github.com/joseph-ayodele/docingest/internal/store"
	"github.com/joseph-ayodele/docingest/internal/vision"
)

// Options holds the pipeline tuning knobs. Zero values are replaced with the
// defaults below in NewProcessor.
type Options struct {
	Thresholds vision.Thresholds

	Workers             int     // analysis fan-out
	SimilarityThreshold float64 // dedup match cutoff

	OCRThresholdStandard int // native chars below this trigger OCR
	OCRThresholdSlides   int // lower bar for slide decks

	SlideSamplePages    int     // pages sampled for doc-type detection
	SlideSampleMaxChars int     // "sparse page" cutoff during sampling
	SlideSampleRatio    float64 // fraction of sparse pages that flips to slides

	DedupVectorOpsMax int // pages with more drawing ops are never dedup-eligible

	MinImagePixelArea int // embedded images below this are ignored for captioning
	MaxImagesPerPage  int // cap on composited images per caption call
	MaxImageWidth     int // composite/page-image width cap

	PageTimeout time.Duration // per-page vision budget (extract + composite + call)

	VisionPageRatio float64 // auto budget = ceil(ratio * pages) when the request asks for it
}

func (o Options) withDefaults() Options {
	if o.Thresholds == (vision.Thresholds{}) {
		o.Thresholds = vision.DefaultThresholds()
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.SimilarityThreshold <= 0 || o.SimilarityThreshold > 1 {
		o.SimilarityThreshold = dedup.DefaultSimilarityThreshold
	}
	if o.OCRThresholdStandard <= 0 {
		o.OCRThresholdStandard = 300
	}
	if o.OCRThresholdSlides <= 0 {
		o.OCRThresholdSlides = 80
	}
	if o.SlideSamplePages <= 0 {
		o.SlideSamplePages = 5
	}
	if o.SlideSampleMaxChars <= 0 {
		o.SlideSampleMaxChars = 200
	}
	if o.SlideSampleRatio <= 0 {
		o.SlideSampleRatio = 0.6
	}
	if o.DedupVectorOpsMax <= 0 {
		o.DedupVectorOpsMax = 40
	}
	if o.MinImagePixelArea <= 0 {
		o.MinImagePixelArea = 10000
	}
	if o.MaxImagesPerPage <= 0 {
		o.MaxImagesPerPage = 3
	}
	if o.MaxImageWidth <= 0 {
		o.MaxImageWidth = 1024
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = 60 * time.Second
	}
	if o.VisionPageRatio <= 0 {
		o.VisionPageRatio = 0.2
	}
	return o
}

// Processor runs document jobs. Stateless across documents; safe for
// sequential reuse.
type Processor struct {
	opener    Opener
	engine    OCREngine
	captioner Captioner
	objects   store.ObjectStore
	opts      Options
	logger    *slog.Logger
}

func NewProcessor(opener Opener, engine OCREngine, captioner Captioner, objects store.ObjectStore, opts Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		opener:    opener,
		engine:    engine,
		captioner: captioner,
		objects:   objects,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Process executes the full pipeline for one stored PDF. Hard failures are a
// missing key, an unsupported extension, and an empty combined result; all
// other per-page problems degrade and are logged.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	p.logger.Info("pipeline.start",
		"req_id", rid,
		"key", req.Key,
		"vision_budget", req.VisionBudget,
	)

	ext := constants.NormalizeExt(filepath.Ext(req.Key))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, common.NewAppError("UNSUPPORTED_EXT",
			fmt.Sprintf("cannot ingest %q", req.Key), common.ErrUnsupportedExt)
	}

	data, err := p.objects.GetObjectBuffer(ctx, req.Key)
	if err != nil {
		return nil, common.NewAppError("FETCH_FAILED",
			fmt.Sprintf("fetch %q", req.Key), err)
	}

	pdfPath, cleanup, err := p.spool(data)
	if err != nil {
		return nil, common.WrapError(err, "spool pdf")
	}
	defer cleanup()

	doc, err := p.opener.Open(pdfPath)
	if err != nil {
		return nil, common.WrapError(err, "open pdf")
	}

	pages, err := p.analyze(ctx, rid, doc, pdfPath, req.PageImageKeys)
	if err != nil {
		return nil, err
	}

	docType := p.detectDocType(pages)
	p.dedupPass(rid, pages)
	p.ocrPass(ctx, rid, pages, docType)

	budget := p.resolveBudget(req.VisionBudget, len(pages))
	visionEnabled := budget > 0 && p.captioner != nil && p.captioner.Enabled()
	p.classifyPass(pages, visionEnabled)

	usage := p.visionPass(ctx, rid, doc, pages, budget, visionEnabled)
	p.inheritDuplicates(pages)

	text, err := Assemble(pages)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Text:  text,
		Pages: pages,
		Stats: p.aggregate(pages, usage),
	}

	p.logger.Info("pipeline.ok",
		"req_id", rid,
		"key", req.Key,
		"doc_type", docType,
		"pages", res.Stats.TotalPages,
		"ocr_pages", res.Stats.OCRPages,
		"vision_pages", res.Stats.VisionPages,
		"total_tokens", res.Stats.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// spool writes the fetched PDF bytes to a temp file for the file-based PDF
// tooling. The cleanup removes the whole scoped directory.
func (p *Processor) spool(data []byte) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "docingest-src-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			p.logger.Warn("remove source temp dir", "dir", tmpDir, "error", rerr)
		}
	}
	path := filepath.Join(tmpDir, "source.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// resolveBudget returns the caller's explicit budget, or ceil(ratio*pages)
// when the request passes AutoVisionBudget. Zero disables vision.
func (p *Processor) resolveBudget(requested, pages int) int {
	if requested >= 0 {
		return requested
	}
	return int(math.Ceil(p.opts.VisionPageRatio * float64(pages)))
}

// detectDocType samples the leading pages: when most of them carry almost no
// native text the document is treated as a slide deck, which lowers the OCR
// trigger threshold.
func (p *Processor) detectDocType(pages []PageMeta) string {
	n := p.opts.SlideSamplePages
	if n > len(pages) {
		n = len(pages)
	}
	if n == 0 {
		return constants.DocTypeStandard
	}
	sparse := 0
	for i := 0; i < n; i++ {
		if pages[i].NativeTextChars < p.opts.SlideSampleMaxChars {
			sparse++
		}
	}
	if float64(sparse)/float64(n) >= p.opts.SlideSampleRatio {
		return constants.DocTypeSlides
	}
	return constants.DocTypeStandard
}

func (p *Processor) aggregate(pages []PageMeta, usage TokenUsage) ProcessingStats {
	stats := ProcessingStats{
		TotalPages:   len(pages),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	}
	for i := range pages {
		pg := &pages[i]
		if pg.OCRApplied {
			stats.OCRPages++
		}
		if pg.DuplicateOf == nil && pg.VisionSummary != nil {
			stats.VisionPages++
			stats.VisionImages += pg.VisionImageCount
			stats.VisionUnits += float64(pg.ImageCount) * pg.ImageAreaRatio
		}
	}
	return stats
}
