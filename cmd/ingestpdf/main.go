package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docingest/internal/common"
	"github.com/joseph-ayodele/docingest/internal/ingest"
	"github.com/joseph-ayodele/docingest/internal/ocr"
	"github.com/joseph-ayodele/docingest/internal/pdfinfo"
	"github.com/joseph-ayodele/docingest/internal/pipeline"
	"github.com/joseph-ayodele/docingest/internal/report"
	"github.com/joseph-ayodele/docingest/internal/store"
	"github.com/joseph-ayodele/docingest/internal/vision"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		budget     = flag.Int("budget", pipeline.AutoVisionBudget, "vision page budget; 0 disables vision, -1 derives it from page count")
		outPath    = flag.String("out", "", "write assembled text here instead of stdout")
		reportPath = flag.String("report", "", "write a per-page XLSX report here")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "ingestpdf [-budget n] [-out file] [-report file.xlsx] <pdf-path>")
		os.Exit(2)
	}
	srcPath := flag.Arg(0)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	objects, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open object store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	ingestor := ingest.NewFSIngestor(objects, logger)
	res, err := ingestor.IngestPath(ctx, srcPath)
	if err != nil {
		logger.Error("ingest failed", "path", srcPath, "error", err)
		os.Exit(1)
	}

	proc := buildProcessor(cfg, objects, logger)

	start := time.Now()
	out, err := proc.Process(ctx, pipeline.Request{Key: res.Key, VisionBudget: *budget})
	if err != nil {
		logger.Error("processing failed",
			"key", res.Key, "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	logger.Info("processing OK",
		"key", res.Key,
		"pages", out.Stats.TotalPages,
		"ocr_pages", out.Stats.OCRPages,
		"vision_pages", out.Stats.VisionPages,
		"total_tokens", out.Stats.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(out.Text), 0o644); err != nil {
			logger.Error("write output", "path", *outPath, "error", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(out.Text)
	}

	if *reportPath != "" {
		xlsx, rerr := report.NewService(logger).BuildPageReportXLSX(res.Key, out)
		if rerr != nil {
			logger.Error("build report", "error", rerr)
			os.Exit(1)
		}
		if err := os.WriteFile(*reportPath, xlsx, 0o644); err != nil {
			logger.Error("write report", "path", *reportPath, "error", err)
			os.Exit(1)
		}
	}
}

func buildProcessor(cfg *common.Config, objects store.ObjectStore, logger *slog.Logger) *pipeline.Processor {
	analyzer := pdfinfo.NewAnalyzer(pdfinfo.Config{
		ExtractTimeout: cfg.Pipeline.ExtractTimeout,
		RenderDPI:      cfg.OCR.DPI,
	}, logger)
	engine := ocr.NewEngine(ocr.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Lang,
		DPI:         cfg.OCR.DPI,
		MaxWidth:    cfg.OCR.MaxWidth,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
		Timeout:     cfg.OCR.Timeout,
	}, logger)
	captioner := vision.NewClient(vision.Config{
		APIKey:    cfg.Vision.APIKey,
		BaseURL:   cfg.Vision.BaseURL,
		Model:     cfg.Vision.Model,
		MaxTokens: cfg.Vision.MaxTokens,
		Timeout:   cfg.Vision.Timeout,
	}, logger)

	opener := pipeline.OpenerFunc(func(path string) (pipeline.Document, error) {
		return analyzer.Open(path)
	})
	return pipeline.NewProcessor(opener, engine, captioner, objects, pipeline.Options{
		Workers:         cfg.Pipeline.Workers,
		PageTimeout:     cfg.Vision.PageTimeout,
		VisionPageRatio: cfg.Pipeline.VisionPageRatio,
	}, logger)
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (store.ObjectStore, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.DSN, logger)
		return s, func() {}, err
	case "postgres":
		s, pool, err := store.NewPGStore(ctx, store.PGConfig{
			DSN:             cfg.Store.DSN,
			MaxConns:        10,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		s, err := store.NewFSStore(cfg.Store.Root, logger)
		return s, func() {}, err
	}
}
