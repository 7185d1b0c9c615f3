package pdfinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MediaStats summarizes the drawing operators and embedded images of a page.
type MediaStats struct {
	ImageCount     int
	ImageAreaRatio float64 // estimated coverage, capped at 1
	VectorOps      int
}

// Path construction and painting operators. Image XObject invocations (Do)
// are counted separately via image extraction, which also dedups by object.
var vectorOpSet = map[string]struct{}{
	"m": {}, "l": {}, "c": {}, "v": {}, "y": {}, "h": {}, "re": {},
	"S": {}, "s": {}, "f": {}, "F": {}, "f*": {},
	"B": {}, "B*": {}, "b": {}, "b*": {}, "n": {},
}

// MediaStats walks the page's decoded content stream and resolves its image
// objects under the configured timeout. A timeout degrades to zero images
// and zero ops for the page rather than failing the document.
func (d *Document) MediaStats(ctx context.Context, page int) (MediaStats, error) {
	var stats MediaStats
	err := raceTimeout(ctx, d.a.cfg.ExtractTimeout, func() error {
		ops, err := d.vectorOps(page)
		if err != nil {
			return err
		}
		stats.VectorOps = ops

		count, areaPx, err := d.imageStats(page)
		if err != nil {
			return err
		}
		stats.ImageCount = count
		stats.ImageAreaRatio = d.areaRatio(page, areaPx)
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		d.a.logger.Warn("media extraction timed out", "page", page)
		return MediaStats{}, nil
	}
	if err != nil {
		d.a.logger.Warn("media extraction failed", "page", page, "error", err)
		return MediaStats{}, nil
	}
	return stats, nil
}

// areaRatio relates intrinsic image pixels to the page area rendered at the
// configured DPI. Placement CTMs are not evaluated.
func (d *Document) areaRatio(page int, areaPx float64) float64 {
	dim := d.pageDim(page)
	scale := float64(d.a.cfg.RenderDPI) / 72.0
	pageArea := dim.Width * scale * dim.Height * scale
	if pageArea <= 0 {
		return 0
	}
	ratio := areaPx / pageArea
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func (d *Document) vectorOps(page int) (int, error) {
	tmpDir, err := os.MkdirTemp("", "docingest-content-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			slog.Warn("remove content temp dir", "dir", tmpDir, "error", rerr)
		}
	}()

	sel := []string{strconv.Itoa(page)}
	if err := api.ExtractContentFile(d.path, tmpDir, sel, d.a.conf); err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(d.path), filepath.Ext(d.path))
	content, err := os.ReadFile(filepath.Join(tmpDir, fmt.Sprintf("%s_Content_page_%d.txt", base, page)))
	if err != nil {
		return 0, fmt.Errorf("read content stream: %w", err)
	}
	return countVectorOps(string(content)), nil
}

func countVectorOps(content string) int {
	n := 0
	for _, tok := range strings.Fields(content) {
		if _, ok := vectorOpSet[tok]; ok {
			n++
		}
	}
	return n
}
