package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/docingest/constants"
	"github.com/joseph-ayodele/docingest/internal/common"
	"github.com/joseph-ayodele/docingest/internal/store"
)

// FSIngestor reads files from the local filesystem and stores their bytes
// under a content-hash key.
type FSIngestor struct {
	objects store.ObjectStore
	logger  *slog.Logger
}

func NewFSIngestor(objects store.ObjectStore, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{objects: objects, logger: logger}
}

// IngestPath stores one file. The key is "<sha256-hex>.<ext>", so identical
// bytes land on the same key and the second ingest is reported deduplicated.
func (i *FSIngestor) IngestPath(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{SourcePath: path}, fmt.Errorf("abs path: %w", err)
	}
	out := Result{SourcePath: abs}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, common.NewAppError("UNSUPPORTED_EXT",
			fmt.Sprintf("cannot ingest %q", abs), common.ErrUnsupportedExt)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}

	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])
	out.Key = out.HashHex + "." + ext
	out.UploadedAt = time.Now().UTC()

	if _, err := i.objects.GetObjectBuffer(ctx, out.Key); err == nil {
		out.Deduplicated = true
		i.logger.Info("ingest.dedup", "path", abs, "key", out.Key)
		return out, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return out, fmt.Errorf("probe %q: %w", out.Key, err)
	}

	if err := i.objects.PutObjectBuffer(ctx, out.Key, data); err != nil {
		return out, fmt.Errorf("store %q: %w", out.Key, err)
	}
	i.logger.Info("ingest.stored", "path", abs, "key", out.Key, "bytes", len(data))
	return out, nil
}

// IngestDirectory walks root and ingests every allowed file, continuing past
// per-file failures.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if root == "" {
		return nil, DirStats{}, fmt.Errorf("root path: %w", common.ErrInvalidInput)
	}

	var (
		results []Result
		stats   DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.Failed++
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			return nil // keep walking
		}
		if d.IsDir() {
			if skipHidden && IsHidden(path) && path != root {
				return fs.SkipDir
			}
			return nil
		}
		stats.Scanned++
		if skipHidden && IsHidden(path) {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		res, ierr := i.IngestPath(ctx, path)
		if ierr != nil {
			res.Err = ierr.Error()
			stats.Failed++
		} else if res.Deduplicated {
			stats.Deduplicated++
		} else {
			stats.Succeeded++
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk %q: %w", root, err)
	}
	return results, stats, nil
}
