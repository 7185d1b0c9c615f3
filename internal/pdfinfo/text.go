package pdfinfo

import "unicode"

// PageText carries the native-text signals for one page.
type PageText struct {
	Text       string
	Chars      int     // non-whitespace character count
	AlphaRatio float64 // letters / non-whitespace, 0 for blank pages
}

func newPageText(txt string) PageText {
	var nonWS, letters int
	for _, r := range txt {
		if unicode.IsSpace(r) {
			continue
		}
		nonWS++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	pt := PageText{Text: txt, Chars: nonWS}
	if nonWS > 0 {
		pt.AlphaRatio = float64(letters) / float64(nonWS)
	}
	return pt
}
