package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docingest/internal/dedup"
)

// analyze runs the per-page extraction fan-out: native text signals, media
// statistics, a raster render and its perceptual hash. Pages degrade
// individually; only opening-level failures abort the job.
func (p *Processor) analyze(ctx context.Context, rid string, doc Document, pdfPath string, pageImageKeys map[int]string) ([]PageMeta, error) {
	start := time.Now()
	n := doc.PageCount()
	pages := make([]PageMeta, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i := 0; i < n; i++ {
		pageNum := i + 1
		meta := &pages[i]
		g.Go(func() error {
			meta.PageNumber = pageNum
			meta.PageImageKey = pageImageKeys[pageNum]

			pt := doc.NativeText(pageNum)
			meta.nativeText = pt.Text
			meta.NativeTextChars = pt.Chars
			meta.AlphaRatio = pt.AlphaRatio
			meta.Text = pt.Text

			// MediaStats degrades internally to zero stats on timeout.
			ms, err := doc.MediaStats(gctx, pageNum)
			if err != nil {
				return err
			}
			meta.ImageCount = ms.ImageCount
			meta.ImageAreaRatio = ms.ImageAreaRatio
			meta.VectorOps = ms.VectorOps

			raster, err := p.engine.RenderPage(gctx, pdfPath, pageNum)
			if err != nil {
				// A page that cannot be rendered still contributes its
				// native text; it just skips dedup, OCR and captioning.
				p.logger.Warn("pipeline.analyze.render_failed",
					"req_id", rid, "page", pageNum, "error", err)
				return nil
			}
			meta.raster = raster
			meta.hash = dedup.DHash(raster.Image)
			meta.hashOK = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline.analyze.ok",
		"req_id", rid,
		"pages", n,
		"workers", p.opts.Workers,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}
