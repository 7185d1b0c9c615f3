package pipeline

import (
	"context"

	"github.com/joseph-ayodele/docingest/internal/ocr"
	"github.com/joseph-ayodele/docingest/internal/pdfinfo"
	"github.com/joseph-ayodele/docingest/internal/vision"
)

// Document is the per-page signal source. *pdfinfo.Document satisfies it.
type Document interface {
	PageCount() int
	NativeText(page int) pdfinfo.PageText
	MediaStats(ctx context.Context, page int) (pdfinfo.MediaStats, error)
	PageImages(ctx context.Context, page, minArea, maxImages int) ([][]byte, error)
}

// Opener opens a PDF on disk into a Document.
type Opener interface {
	Open(path string) (Document, error)
}

// OpenerFunc adapts a plain function (or a concrete analyzer's Open) to the
// Opener interface.
type OpenerFunc func(path string) (Document, error)

func (f OpenerFunc) Open(path string) (Document, error) { return f(path) }

// OCREngine renders pages and recognizes text. *ocr.Engine satisfies it.
type OCREngine interface {
	RenderPage(ctx context.Context, pdfPath string, page int) (*ocr.Raster, error)
	Recognize(ctx context.Context, jpegData []byte) (ocr.Result, error)
	Available() bool
}

// Captioner issues one vision call per page. *vision.Client satisfies it.
type Captioner interface {
	CaptionDiagram(ctx context.Context, req vision.CaptionRequest) (vision.Caption, []byte, vision.Usage, error)
	Enabled() bool
}
