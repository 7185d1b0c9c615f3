package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"
)

// Raster is one rendered page: decoded pixels for hashing plus the JPEG
// bytes handed to OCR and captioning.
type Raster struct {
	Image  image.Image
	JPEG   []byte
	Width  int
	Height int
}

// RenderPage rasterizes a single 1-based page to JPEG at the configured DPI,
// downscaling when wider than MaxWidth. The temp dir is removed on every
// exit path.
func (e *Engine) RenderPage(ctx context.Context, pdfPath string, page int) (*Raster, error) {
	tmpDir, err := os.MkdirTemp("", "docingest-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			e.logger.Warn("remove render temp dir", "dir", tmpDir, "error", rerr)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	prefix := filepath.Join(tmpDir, "page")
	p := fmt.Sprintf("%d", page)
	// pdftoppm -r <dpi> -f n -l n -jpeg <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI), "-f", p, "-l", p, "-jpeg", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w (%s)", page, err, truncate(string(errb), 512))
	}

	// pdftoppm zero-pads the page suffix depending on the document size.
	matches, _ := filepath.Glob(prefix + "-*.jpg")
	if len(matches) == 0 {
		matches, _ = filepath.Glob(prefix + "-*.jpeg")
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no raster for page %d", page)
	}
	sort.Strings(matches)

	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}

	b := img.Bounds()
	if b.Dx() <= e.cfg.MaxWidth {
		return &Raster{Image: img, JPEG: raw, Width: b.Dx(), Height: b.Dy()}, nil
	}

	scaled := Scale(img, e.cfg.MaxWidth)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode raster: %w", err)
	}
	sb := scaled.Bounds()
	return &Raster{Image: scaled, JPEG: buf.Bytes(), Width: sb.Dx(), Height: sb.Dy()}, nil
}

// Scale resizes img to maxWidth preserving aspect ratio. Images at or below
// maxWidth are returned unchanged.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
