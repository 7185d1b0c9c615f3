package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docingest/internal/common"
)

// Recognize writes the raster to a scoped temp file and runs tesseract in
// TSV mode over it. Callers should gate on Available; calling anyway returns
// ErrOCRUnavailable.
func (e *Engine) Recognize(ctx context.Context, jpegData []byte) (Result, error) {
	if !e.Available() {
		return Result{}, common.ErrOCRUnavailable
	}

	tmpDir, err := os.MkdirTemp("", "docingest-ocr-*")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			e.logger.Warn("remove ocr temp dir", "dir", tmpDir, "error", rerr)
		}
	}()

	imgPath := filepath.Join(tmpDir, "page.jpg")
	if err := os.WriteFile(imgPath, jpegData, 0o600); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	args := []string{imgPath, "stdout", "-l", e.cfg.Lang}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(e.cfg.DPI))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return ParseTSV(string(out)), nil
}

// ParseTSV turns tesseract's tab-separated output into joined text plus the
// mean word confidence (0..1) and short-token ratio. Word rows are level 5;
// lines are grouped by (block, paragraph, line).
func ParseTSV(tsv string) Result {
	type lineKey struct{ block, par, line string }

	var (
		order   []lineKey
		byLine  = map[lineKey][]string{}
		confSum float64
		confN   int
		tokens  int
		short   int
	)

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" { // skip header
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" { // word rows only
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		key := lineKey{block: cols[2], par: cols[3], line: cols[4]}
		if _, seen := byLine[key]; !seen {
			order = append(order, key)
		}
		byLine[key] = append(byLine[key], word)

		tokens++
		if len([]rune(word)) <= 2 {
			short++
		}
		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			confSum += conf
			confN++
		}
	}

	var b strings.Builder
	for i, key := range order {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(byLine[key], " "))
	}

	res := Result{Text: Normalize(b.String())}
	if confN > 0 {
		mean := confSum / float64(confN) / 100.0
		res.Confidence = &mean
	}
	if tokens > 0 {
		res.ShortTokenRatio = float64(short) / float64(tokens)
	}
	return res
}
