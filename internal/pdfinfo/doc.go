// Package pdfinfo reads per-page signals from a PDF without rendering it:
// native text, drawing-operator statistics, and embedded image geometry.
// It never mutates the source document.
package pdfinfo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/joseph-ayodele/docingest/internal/common"
)

// Config holds extraction knobs.
type Config struct {
	// ExtractTimeout bounds each per-page media extraction; on expiry the
	// page degrades to "no images" instead of failing.
	ExtractTimeout time.Duration
	// RenderDPI is the DPI used to relate intrinsic image pixels to page
	// area when estimating coverage.
	RenderDPI int
}

// Analyzer opens documents and computes per-page signals.
type Analyzer struct {
	cfg    Config
	conf   *model.Configuration
	logger *slog.Logger
}

func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 20 * time.Second
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 150
	}
	return &Analyzer{cfg: cfg, conf: model.NewDefaultConfiguration(), logger: logger}
}

// Document is a read-only handle over one source PDF.
type Document struct {
	a     *Analyzer
	path  string
	pages int
	dims  []types.Dim
	text  []PageText
}

// Open loads page count, page dimensions and native text for every page.
func (a *Analyzer) Open(path string) (*Document, error) {
	pages, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if pages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, fmt.Errorf("page dims: %w", err)
	}
	text, err := nativeText(path, pages)
	if err != nil {
		return nil, fmt.Errorf("native text: %w", err)
	}
	return &Document{a: a, path: path, pages: pages, dims: dims, text: text}, nil
}

func (d *Document) PageCount() int { return d.pages }

// NativeText returns the extracted text signals for a 1-based page number.
func (d *Document) NativeText(page int) PageText {
	if page < 1 || page > len(d.text) {
		return PageText{}
	}
	return d.text[page-1]
}

func (d *Document) pageDim(page int) types.Dim {
	if page >= 1 && page <= len(d.dims) {
		return d.dims[page-1]
	}
	return types.Dim{Width: 612, Height: 792} // US Letter fallback
}

// nativeText reads every page's plain text in one pass over the reader.
func nativeText(path string, pages int) ([]PageText, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("close pdf reader", "path", path, "error", cerr)
		}
	}()

	out := make([]PageText, pages)
	for i := 1; i <= pages && i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			// A single malformed page must not abort the document.
			slog.Warn("native text extraction failed", "page", i, "error", err)
			continue
		}
		out[i-1] = newPageText(txt)
	}
	return out, nil
}

// raceTimeout runs fn and waits for it at most d; on expiry the caller gets
// ErrTimeout while fn finishes in the background (pdfcpu's file APIs take
// no context).
func raceTimeout(ctx context.Context, d time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return common.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
