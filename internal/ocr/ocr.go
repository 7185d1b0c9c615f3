package ocr

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds rasterization and OCR settings.
type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang     string // default "eng"
	DPI      int    // rasterization DPI, default 150
	MaxWidth int    // downscale rendered pages wider than this, default 1600

	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default

	Timeout time.Duration // per-invocation subprocess budget
}

// Result is the parsed output of one OCR invocation.
type Result struct {
	Text            string
	Confidence      *float64 // mean word confidence in 0..1, nil when unknown
	ShortTokenRatio float64  // fraction of tokens with <=2 chars, a garble signal
}

// Engine renders PDF pages and runs tesseract over the rasters.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	availOnce sync.Once
	available bool
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1600
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Engine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Available reports whether the OCR binary can be found. Checked once per
// process and cached; when false, Recognize returns ErrOCRUnavailable.
func (e *Engine) Available() bool {
	e.availOnce.Do(func() {
		if _, err := e.runner.LookPath(e.cfg.Tesseract); err != nil {
			e.logger.Warn("ocr binary unavailable, pages fall back to native text",
				"binary", e.cfg.Tesseract, "error", err)
			return
		}
		e.available = true
	})
	return e.available
}
