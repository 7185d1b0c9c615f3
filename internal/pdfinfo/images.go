package pdfinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// imageStats extracts the page's image objects into a scoped temp dir and
// sums their pixel area. pdfcpu writes one file per image object, so the
// per-page object-id dedup falls out of the extraction itself.
func (d *Document) imageStats(page int) (count int, areaPx float64, err error) {
	files, cleanup, err := d.extractPageImages(page)
	if err != nil {
		return 0, 0, err
	}
	defer cleanup()

	for _, path := range files {
		w, h, derr := decodeDims(path)
		if derr != nil {
			slog.Warn("undecodable embedded image", "page", page, "file", filepath.Base(path), "error", derr)
			continue
		}
		count++
		areaPx += float64(w) * float64(h)
	}
	return count, areaPx, nil
}

// PageImages returns the raw bytes of embedded images on the page whose
// pixel area meets minArea, largest first, at most maxImages of them. The
// whole operation runs under the analyzer's extraction timeout; expiry
// yields an empty slice, never an error that would abort captioning.
func (d *Document) PageImages(ctx context.Context, page, minArea, maxImages int) ([][]byte, error) {
	type candidate struct {
		data []byte
		area int
	}
	var cands []candidate

	err := raceTimeout(ctx, d.a.cfg.ExtractTimeout, func() error {
		files, cleanup, err := d.extractPageImages(page)
		if err != nil {
			return err
		}
		defer cleanup()

		for _, path := range files {
			w, h, derr := decodeDims(path)
			if derr != nil || w*h < minArea {
				continue
			}
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				continue
			}
			cands = append(cands, candidate{data: data, area: w * h})
		}
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		d.a.logger.Warn("page image extraction timed out", "page", page)
		return nil, nil
	}
	if err != nil {
		d.a.logger.Warn("page image extraction failed", "page", page, "error", err)
		return nil, nil
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].area > cands[j].area })
	if maxImages > 0 && len(cands) > maxImages {
		cands = cands[:maxImages]
	}
	out := make([][]byte, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.data)
	}
	return out, nil
}

// extractPageImages runs pdfcpu image extraction for a single page and
// returns the produced files sorted by name plus a temp-dir cleanup.
func (d *Document) extractPageImages(page int) ([]string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "docingest-images-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			slog.Warn("remove image temp dir", "dir", tmpDir, "error", rerr)
		}
	}

	sel := []string{strconv.Itoa(page)}
	if err := api.ExtractImagesFile(d.path, tmpDir, sel, d.a.conf); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("extract images: %w", err)
	}

	marker := fmt.Sprintf("_page_%d_", page)
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), marker) {
			continue
		}
		files = append(files, filepath.Join(tmpDir, e.Name()))
	}
	sort.Strings(files)
	return files, cleanup, nil
}

func decodeDims(path string) (int, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
