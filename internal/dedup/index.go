package dedup

// DefaultSimilarityThreshold marks two renders as the same page.
const DefaultSimilarityThreshold = 0.95

type entry struct {
	page int
	hash Hash64
}

// Index holds the fingerprints of pages already seen. It is built during
// the sequential dedup pass only, so it needs no locking.
type Index struct {
	threshold float64
	entries   []entry
}

func NewIndex(threshold float64) *Index {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Index{threshold: threshold}
}

// Match returns the earliest indexed page whose similarity to h meets the
// threshold. Entries are appended in ascending page order, so the first hit
// is the earliest.
func (ix *Index) Match(h Hash64) (int, bool) {
	for _, e := range ix.entries {
		if Similarity(e.hash, h) >= ix.threshold {
			return e.page, true
		}
	}
	return 0, false
}

// Add indexes a page's fingerprint.
func (ix *Index) Add(page int, h Hash64) {
	ix.entries = append(ix.entries, entry{page: page, hash: h})
}

func (ix *Index) Len() int { return len(ix.entries) }
