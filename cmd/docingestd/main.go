package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/docingest/internal/async"
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

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Server.WatchRoots) == 0 {
		logger.Error("WATCH_ROOTS env var is required")
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.HasPrefix(addr, ":") && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	objects, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open object store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	proc := buildProcessor(cfg, objects, logger)
	reporter := report.NewService(logger)

	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(2),
		async.WithQueueSize(512),
		async.WithProcessTimeout(10*time.Minute),
		async.WithResultHandler(func(ctx context.Context, job async.Job, res *pipeline.Result) {
			textKey := job.Key + ".txt"
			if err := objects.PutObjectBuffer(ctx, textKey, []byte(res.Text)); err != nil {
				logger.Error("store document text", "key", textKey, "error", err)
				return
			}
			if cfg.Pipeline.ReportXLSX {
				xlsx, rerr := reporter.BuildPageReportXLSX(job.Key, res)
				if rerr != nil {
					logger.Error("build page report", "key", job.Key, "error", rerr)
					return
				}
				if err := objects.PutObjectBuffer(ctx, job.Key+".report.xlsx", xlsx); err != nil {
					logger.Error("store page report", "key", job.Key, "error", err)
				}
			}
		}),
	)

	ingestor := ingest.NewFSIngestor(objects, logger)
	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Server.WatchRoots,
		InitialScan: true,
		Debounce:    2 * time.Second,
	}, logger)
	if err != nil {
		logger.Error("start watcher", "roots", cfg.Server.WatchRoots, "error", err)
		os.Exit(1)
	}

	go func() {
		for path := range events {
			res, ierr := ingestor.IngestPath(ctx, path)
			if ierr != nil {
				logger.Error("ingest failed", "path", path, "error", ierr)
				continue
			}
			if res.Deduplicated {
				logger.Info("already ingested, skipping", "path", path, "key", res.Key)
				continue
			}
			_ = queue.Enqueue(ctx, async.Job{
				Key:          res.Key,
				VisionBudget: pipeline.AutoVisionBudget,
				SubmittedAt:  time.Now().UTC(),
				TraceID:      res.HashHex[:12],
			})
		}
	}()
	go func() {
		for werr := range watchErrs {
			logger.Error("watcher error", "error", werr)
		}
	}()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("docingestd listening", "addr", addr, "watch_roots", cfg.Server.WatchRoots)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	queue.Shutdown(context.Background())
	grpcServer.GracefulStop()
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
			MaxConns:        20,
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
