package store

import (
	"context"

	"github.com/joseph-ayodele/docingest/internal/common"
)

// ObjectStore is the narrow storage contract the pipeline consumes: source
// PDFs are fetched by key, and pre-rendered full-page rasters are fetched as
// the captioning fallback. Put exists for seeding (CLI, tests, daemon).
type ObjectStore interface {
	GetObjectBuffer(ctx context.Context, key string) ([]byte, error)
	PutObjectBuffer(ctx context.Context, key string, data []byte) error
}

// ErrNotFound is returned for a missing key; a missing source PDF is a hard
// failure for the document job, a missing page raster is a degraded path.
var ErrNotFound = common.ErrNotFound
