// Package ingest moves source PDFs from the local filesystem into the object
// store, keyed by content hash so re-ingesting the same bytes is a no-op.
package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/docingest/constants"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string
	Key          string // object-store key of the stored PDF
	HashHex      string
	Deduplicated bool // the same bytes were already stored
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the daemon and CLI depend on.
type Ingestor interface {
	IngestPath(ctx context.Context, path string) (Result, error)
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error)
}

// AllowedExt reports whether a file extension is ingestible.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports whether the path's base name starts with a dot.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
