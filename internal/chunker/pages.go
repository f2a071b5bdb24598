package chunker

import (
	"sort"
	"unicode/utf8"
)

// PageMap resolves rune offsets of a document's normalised text to the
// 1-based source pages they came from.
//
// It relies on normalisation erasing page boundaries into a single space:
// for the newline-joined pages of a document, page k starts right after the
// normalised text of every earlier non-empty page plus one separator.
type PageMap struct {
	starts []int
	pages  []int
}

// NewPageMap builds a PageMap from the raw per-page text, pages[i] being
// page i+1. Pages that normalise to nothing occupy no offsets.
func NewPageMap(pages []string) *PageMap {
	m := &PageMap{}
	pos := 0
	for i, p := range pages {
		n := utf8.RuneCountInString(Normalize(p))
		if n == 0 {
			continue
		}
		m.starts = append(m.starts, pos)
		m.pages = append(m.pages, i+1)
		pos += n + 1
	}
	return m
}

// Range returns the first and last page covered by the rune range
// [start, end). Both are 0 when the map has no pages or the range is empty.
func (m *PageMap) Range(start, end int) (first, last int) {
	if m == nil || len(m.starts) == 0 || end <= start {
		return 0, 0
	}
	return m.page(start), m.page(end - 1)
}

// PagesOf returns the page range of a chunk.
func (m *PageMap) PagesOf(c Chunk) (first, last int) {
	return m.Range(c.Start, c.End)
}

func (m *PageMap) page(offset int) int {
	i := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > offset })
	if i == 0 {
		return m.pages[0]
	}
	return m.pages[i-1]
}
