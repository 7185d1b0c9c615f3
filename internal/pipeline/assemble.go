package pipeline

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/docingest/internal/common"
)

// EmptyPageText is emitted when a page yields no text at all. Part of the
// downstream output contract, do not change.
const EmptyPageText = "[No OCR text found on this page.]"

// Assemble joins the per-page blocks into the final document text. The block
// layout is a stable interface consumed verbatim by downstream generators:
//
//	=== Page n ===
//	OCR_TEXT: <text>
//	DIAGRAM_CAPTION_JSON: <json>   (only when a caption exists)
//
// An empty combined result is a hard failure.
func Assemble(pages []PageMeta) (string, error) {
	blocks := make([]string, 0, len(pages))
	empty := true
	for i := range pages {
		pg := &pages[i]

		text := strings.TrimSpace(pg.Text)
		if text == "" {
			text = EmptyPageText
		} else {
			empty = false
		}

		var b strings.Builder
		fmt.Fprintf(&b, "=== Page %d ===\n", pg.PageNumber)
		b.WriteString("OCR_TEXT: ")
		b.WriteString(text)
		if pg.VisionSummary != nil && strings.TrimSpace(*pg.VisionSummary) != "" {
			empty = false
			b.WriteString("\nDIAGRAM_CAPTION_JSON: ")
			b.WriteString(strings.TrimSpace(*pg.VisionSummary))
		}
		blocks = append(blocks, b.String())
	}

	if len(blocks) == 0 || empty {
		return "", common.NewAppError("EMPTY_DOCUMENT",
			"no text or captions extracted from any page", common.ErrEmptyDocument)
	}
	return strings.Join(blocks, "\n\n"), nil
}
