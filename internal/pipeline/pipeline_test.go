package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docingest/constants"
	"github.com/joseph-ayodele/docingest/internal/common"
	"github.com/joseph-ayodele/docingest/internal/ocr"
	"github.com/joseph-ayodele/docingest/internal/pdfinfo"
	"github.com/joseph-ayodele/docingest/internal/vision"
)

// --- fakes ---------------------------------------------------------------

type fakePage struct {
	text   pdfinfo.PageText
	media  pdfinfo.MediaStats
	images [][]byte
}

type fakeDoc struct {
	pages []fakePage
}

func (d *fakeDoc) PageCount() int { return len(d.pages) }

func (d *fakeDoc) NativeText(page int) pdfinfo.PageText {
	return d.pages[page-1].text
}

func (d *fakeDoc) MediaStats(_ context.Context, page int) (pdfinfo.MediaStats, error) {
	return d.pages[page-1].media, nil
}

func (d *fakeDoc) PageImages(_ context.Context, page, _, _ int) ([][]byte, error) {
	return d.pages[page-1].images, nil
}

// fakeEngine encodes the page number into the raster's JPEG bytes so
// Recognize can map the call back to a page.
type fakeEngine struct {
	rasters     map[int]image.Image // nil entry -> deterministic per-page image
	ocrResults  map[int]ocr.Result
	recognized  []int
	unavailable bool
}

func (e *fakeEngine) RenderPage(_ context.Context, _ string, page int) (*ocr.Raster, error) {
	img := e.rasters[page]
	if img == nil {
		img = gradient(120, 160, page*17)
	}
	b := img.Bounds()
	return &ocr.Raster{Image: img, JPEG: []byte{byte(page)}, Width: b.Dx(), Height: b.Dy()}, nil
}

func (e *fakeEngine) Recognize(_ context.Context, jpegData []byte) (ocr.Result, error) {
	page := int(jpegData[0])
	e.recognized = append(e.recognized, page)
	return e.ocrResults[page], nil
}

func (e *fakeEngine) Available() bool { return !e.unavailable }

type fakeCaptioner struct {
	enabled bool
	raw     string
	usage   vision.Usage
	err     error
	calls   []int
}

func (c *fakeCaptioner) Enabled() bool { return c.enabled }

func (c *fakeCaptioner) CaptionDiagram(_ context.Context, req vision.CaptionRequest) (vision.Caption, []byte, vision.Usage, error) {
	c.calls = append(c.calls, req.Page)
	if c.err != nil {
		return vision.Caption{}, nil, vision.Usage{}, c.err
	}
	return vision.Caption{}, []byte(c.raw), c.usage, nil
}

type fakeStore struct {
	objects map[string][]byte
}

func (s *fakeStore) GetObjectBuffer(_ context.Context, key string) ([]byte, error) {
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", key, common.ErrNotFound)
	}
	return b, nil
}

func (s *fakeStore) PutObjectBuffer(_ context.Context, key string, data []byte) error {
	s.objects[key] = data
	return nil
}

// --- helpers -------------------------------------------------------------

func gradient(w, h, seed int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13 + seed*31) % 256)})
		}
	}
	return img
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 120, 120)), nil))
	return buf.Bytes()
}

func prosePage() fakePage {
	return fakePage{text: pdfinfo.PageText{
		Text:       strings.Repeat("lorem ipsum dolor sit amet consectetur ", 60),
		Chars:      2000,
		AlphaRatio: 0.9,
	}}
}

func blankScanPage() fakePage {
	return fakePage{text: pdfinfo.PageText{Text: "figure 1", Chars: 8, AlphaRatio: 0.75}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(doc Document, eng OCREngine, capt Captioner, objects *fakeStore) *Processor {
	opener := OpenerFunc(func(string) (Document, error) { return doc, nil })
	return NewProcessor(opener, eng, capt, objects, Options{Workers: 2}, quietLogger())
}

func sourceStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{"doc.pdf": []byte("%PDF-1.7 test")}}
}

// --- tests ---------------------------------------------------------------

// Ten pages; 3 and 7 are identical near-blank scans, 5 is text-rich. Page 7
// must dedup onto 3 and inherit its caption without a second vision call.
func TestProcessDedupAndInheritance(t *testing.T) {
	doc := &fakeDoc{pages: make([]fakePage, 10)}
	for i := range doc.pages {
		doc.pages[i] = prosePage()
	}
	doc.pages[2] = blankScanPage()
	doc.pages[6] = blankScanPage()

	conf := 0.2
	eng := &fakeEngine{
		rasters: map[int]image.Image{
			3: gradient(120, 160, 99),
			7: gradient(120, 160, 99), // byte-identical render of page 3
		},
		ocrResults: map[int]ocr.Result{
			3: {Text: "", Confidence: &conf},
		},
	}
	capt := &fakeCaptioner{
		enabled: true,
		raw:     `{"summary":"diagram","labels":["a","b"]}`,
		usage:   vision.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	p := newTestProcessor(doc, eng, capt, sourceStore())
	res, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: 3})
	require.NoError(t, err)

	page3, page5, page7 := &res.Pages[2], &res.Pages[4], &res.Pages[6]

	require.NotNil(t, page7.DuplicateOf)
	assert.Equal(t, 3, *page7.DuplicateOf)
	assert.Nil(t, page3.DuplicateOf)

	// duplicateOf always points strictly backwards
	for i := range res.Pages {
		if d := res.Pages[i].DuplicateOf; d != nil {
			assert.Less(t, *d, res.Pages[i].PageNumber)
		}
	}

	assert.False(t, page5.NeedsVision)
	assert.Equal(t, constants.ReasonTextStrong, page5.NeedsVisionReason)
	assert.False(t, page5.OCRApplied)

	assert.Equal(t, []int{3}, eng.recognized, "only the non-duplicate scan is OCR'd")
	assert.Equal(t, []int{3}, capt.calls, "one vision call, none for the duplicate")

	require.NotNil(t, page3.VisionSummary)
	require.NotNil(t, page7.VisionSummary)
	assert.Equal(t, *page3.VisionSummary, *page7.VisionSummary)
	assert.Equal(t, constants.ReasonDiagramCaption, page3.NeedsVisionReason)

	assert.Equal(t, 10, res.Stats.TotalPages)
	assert.Equal(t, 1, res.Stats.OCRPages)
	assert.Equal(t, 1, res.Stats.VisionPages)
	assert.Equal(t, 1, res.Stats.VisionImages)
	assert.Equal(t, 10, res.Stats.InputTokens)
	assert.Equal(t, 5, res.Stats.OutputTokens)
	assert.Equal(t, 15, res.Stats.TotalTokens)

	assert.Contains(t, res.Text, "=== Page 5 ===")
	assert.Equal(t, 2, strings.Count(res.Text, "DIAGRAM_CAPTION_JSON:"),
		"caption appears on the original and the inherited duplicate")
}

func TestProcessVisionDisabled(t *testing.T) {
	doc := &fakeDoc{pages: []fakePage{prosePage(), blankScanPage(), prosePage()}}
	eng := &fakeEngine{ocrResults: map[int]ocr.Result{}}
	capt := &fakeCaptioner{enabled: true}

	p := newTestProcessor(doc, eng, capt, sourceStore())
	res, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: 0})
	require.NoError(t, err)

	assert.Empty(t, capt.calls)
	assert.Equal(t, 0, res.Stats.VisionPages)
	assert.Equal(t, 0, res.Stats.VisionImages)
	assert.Equal(t, 0, res.Stats.TotalTokens)
	assert.Equal(t, constants.ReasonVisionDisabled, res.Pages[1].NeedsVisionReason)
}

func TestProcessCaptionFailureDegrades(t *testing.T) {
	doc := &fakeDoc{pages: []fakePage{prosePage(), blankScanPage()}}
	eng := &fakeEngine{ocrResults: map[int]ocr.Result{}}
	capt := &fakeCaptioner{enabled: true, err: context.DeadlineExceeded}

	p := newTestProcessor(doc, eng, capt, sourceStore())
	res, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: 5})
	require.NoError(t, err, "a failed caption must not abort the document")

	assert.Equal(t, []int{2}, capt.calls)
	assert.Nil(t, res.Pages[1].VisionSummary)
	assert.Equal(t, 0, res.Stats.VisionPages)
	assert.Equal(t, 0, res.Stats.TotalTokens)
	assert.Contains(t, res.Text, "=== Page 1 ===")
}

// A missing OCR binary must not mark pages as OCR'd: the pass is skipped
// entirely and the stats count stays at zero.
func TestProcessOCRUnavailable(t *testing.T) {
	doc := &fakeDoc{pages: []fakePage{prosePage(), blankScanPage(), prosePage()}}
	eng := &fakeEngine{unavailable: true}

	p := newTestProcessor(doc, eng, &fakeCaptioner{}, sourceStore())
	res, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: 0})
	require.NoError(t, err)

	assert.Empty(t, eng.recognized, "no recognition call without the binary")
	assert.Equal(t, 0, res.Stats.OCRPages)
	for i := range res.Pages {
		assert.False(t, res.Pages[i].OCRApplied, "page %d", res.Pages[i].PageNumber)
	}
	assert.Contains(t, res.Text, "=== Page 1 ===", "native text still assembles")
}

func TestProcessBudgetCapKeepsTopRanked(t *testing.T) {
	img := smallJPEG(t)
	mk := func(area float64) fakePage {
		return fakePage{
			text:   pdfinfo.PageText{Text: "x", Chars: 10, AlphaRatio: 0.5},
			media:  pdfinfo.MediaStats{ImageCount: 1, ImageAreaRatio: area},
			images: [][]byte{img},
		}
	}
	doc := &fakeDoc{pages: []fakePage{mk(0.4), mk(0.5), mk(0.6)}}
	eng := &fakeEngine{ocrResults: map[int]ocr.Result{}}
	capt := &fakeCaptioner{enabled: true, raw: `{"summary":"s","labels":[]}`}

	p := newTestProcessor(doc, eng, capt, sourceStore())
	res, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: 1})
	require.NoError(t, err)

	assert.Equal(t, []int{3}, capt.calls, "highest rank score wins the budget")
	assert.True(t, res.Pages[2].NeedsVision)
	assert.False(t, res.Pages[0].NeedsVision, "over-budget candidates lose the flag")
	assert.False(t, res.Pages[1].NeedsVision)
	assert.Equal(t, 1, res.Stats.VisionPages)
	assert.LessOrEqual(t, res.Stats.VisionPages, 1)
}

func TestProcessAutoBudget(t *testing.T) {
	img := smallJPEG(t)
	mk := func(area float64) fakePage {
		return fakePage{
			text:   pdfinfo.PageText{Text: "x", Chars: 10, AlphaRatio: 0.5},
			media:  pdfinfo.MediaStats{ImageCount: 1, ImageAreaRatio: area},
			images: [][]byte{img},
		}
	}
	doc := &fakeDoc{pages: []fakePage{mk(0.4), mk(0.5), mk(0.6)}}
	eng := &fakeEngine{ocrResults: map[int]ocr.Result{}}
	capt := &fakeCaptioner{enabled: true, raw: `{"summary":"s","labels":[]}`}

	p := newTestProcessor(doc, eng, capt, sourceStore())
	res, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: AutoVisionBudget})
	require.NoError(t, err)

	// ceil(0.2 * 3) = 1
	assert.Len(t, capt.calls, 1)
	assert.Equal(t, 1, res.Stats.VisionPages)
}

func TestProcessEmptyDocumentIsHardFailure(t *testing.T) {
	doc := &fakeDoc{pages: []fakePage{
		{text: pdfinfo.PageText{}},
		{text: pdfinfo.PageText{}},
	}}
	eng := &fakeEngine{ocrResults: map[int]ocr.Result{}}

	p := newTestProcessor(doc, eng, &fakeCaptioner{}, sourceStore())
	_, err := p.Process(context.Background(), Request{Key: "doc.pdf", VisionBudget: 0})
	assert.ErrorIs(t, err, common.ErrEmptyDocument)
}

func TestProcessMissingKey(t *testing.T) {
	p := newTestProcessor(&fakeDoc{}, &fakeEngine{}, &fakeCaptioner{}, sourceStore())
	_, err := p.Process(context.Background(), Request{Key: "missing.pdf", VisionBudget: 0})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcessUnsupportedExtension(t *testing.T) {
	objects := sourceStore()
	objects.objects["doc.txt"] = []byte("not a pdf")

	p := newTestProcessor(&fakeDoc{}, &fakeEngine{}, &fakeCaptioner{}, objects)
	_, err := p.Process(context.Background(), Request{Key: "doc.txt", VisionBudget: 0})
	assert.ErrorIs(t, err, common.ErrUnsupportedExt)
}

func TestDetectDocType(t *testing.T) {
	p := newTestProcessor(&fakeDoc{}, &fakeEngine{}, &fakeCaptioner{}, sourceStore())

	sparse := make([]PageMeta, 6)
	for i := range sparse {
		sparse[i] = PageMeta{PageNumber: i + 1, NativeTextChars: 50}
	}
	assert.Equal(t, constants.DocTypeSlides, p.detectDocType(sparse))

	dense := make([]PageMeta, 6)
	for i := range dense {
		dense[i] = PageMeta{PageNumber: i + 1, NativeTextChars: 800}
	}
	assert.Equal(t, constants.DocTypeStandard, p.detectDocType(dense))
}
