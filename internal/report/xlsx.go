// Package report renders per-page pipeline diagnostics as an XLSX workbook,
// one row per page plus a stats summary sheet.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docingest/internal/pipeline"
)

// Service produces XLSX bytes from a pipeline result.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildPageReportXLSX returns an XLSX workbook (as bytes) describing every
// page decision of one document run.
func (s *Service) BuildPageReportXLSX(key string, res *pipeline.Result) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Pages"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Page",
		"Native Chars",
		"Alpha Ratio",
		"OCR Applied",
		"OCR Confidence",
		"Short Token Ratio",
		"Images",
		"Image Area Ratio",
		"Vector Ops",
		"Needs Vision",
		"Reason",
		"Rank Score",
		"Captioned",
		"Duplicate Of",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for i := range res.Pages {
		pg := &res.Pages[i]

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, pg.PageNumber)
		write(2, pg.NativeTextChars)
		write(3, pg.AlphaRatio)
		write(4, pg.OCRApplied)
		if pg.OCRConfidence != nil {
			write(5, *pg.OCRConfidence)
		} else {
			write(5, "")
		}
		write(6, pg.ShortTokenRatio)
		write(7, pg.ImageCount)
		write(8, pg.ImageAreaRatio)
		write(9, pg.VectorOps)
		write(10, pg.NeedsVision)
		write(11, pg.NeedsVisionReason)
		write(12, pg.VisionRankScore)
		write(13, pg.VisionSummary != nil)
		if pg.DuplicateOf != nil {
			write(14, *pg.DuplicateOf)
		} else {
			write(14, "")
		}
		row++
	}

	if err := s.writeStatsSheet(f, key, res); err != nil {
		return nil, err
	}
	// NewFile seeds a default Sheet1; only Pages and Stats belong in the
	// workbook.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}

	s.logger.Info("report.xlsx.ok",
		"key", key,
		"pages", len(res.Pages),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeStatsSheet(f *excelize.File, key string, res *pipeline.Result) error {
	const sheet = "Stats"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][2]any{
		{"Source Key", key},
		{"Total Pages", res.Stats.TotalPages},
		{"OCR Pages", res.Stats.OCRPages},
		{"Vision Pages", res.Stats.VisionPages},
		{"Vision Images", res.Stats.VisionImages},
		{"Vision Units", res.Stats.VisionUnits},
		{"Input Tokens", res.Stats.InputTokens},
		{"Output Tokens", res.Stats.OutputTokens},
		{"Total Tokens", res.Stats.TotalTokens},
	}
	for i, r := range rows {
		kc, _ := excelize.CoordinatesToCellName(1, i+1)
		vc, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(sheet, kc, r[0])
		_ = f.SetCellValue(sheet, vc, r[1])
	}
	return nil
}
