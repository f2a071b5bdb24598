package chat

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Source is one document that contributed context to an answer.
type Source struct {
	DocumentID string
	SourcePath string
	Chunks     []int64
	BestScore  float32

	// FirstPage and LastPage bound the pages of the contributing chunks.
	// Both are zero when no chunk carried page information.
	FirstPage, LastPage int64
}

// SummarizeSources folds hits into one Source per document, keeping the
// order in which documents first appear. Repeated chunks are listed once.
func SummarizeSources(hits []rag.Hit) []Source {
	var out []Source
	pos := map[string]int{}
	for _, h := range hits {
		doc, ok := h.DocumentID()
		if !ok || strings.TrimSpace(doc) == "" {
			doc = "unknown"
		}
		i, seen := pos[doc]
		if !seen {
			out = append(out, Source{DocumentID: doc, SourcePath: h.SourcePath(), BestScore: h.Score})
			i = len(out) - 1
			pos[doc] = i
		}
		src := &out[i]
		if h.Score > src.BestScore {
			src.BestScore = h.Score
		}
		if idx, ok := h.ChunkIndex(); ok && !slices.Contains(src.Chunks, idx) {
			src.Chunks = append(src.Chunks, idx)
		}
		if first, last, ok := h.Pages(); ok {
			if src.FirstPage == 0 || first < src.FirstPage {
				src.FirstPage = first
			}
			src.LastPage = max(src.LastPage, last)
		}
	}
	return out
}

// FormatSources renders sources one per line:
//
//	- Alpha (chunks 0, 2; pages 1-3; score 0.812)
func FormatSources(sources []Source) string {
	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		pages := ""
		switch {
		case s.FirstPage == 0:
		case s.FirstPage == s.LastPage:
			pages = fmt.Sprintf("page %d; ", s.FirstPage)
		default:
			pages = fmt.Sprintf("pages %d-%d; ", s.FirstPage, s.LastPage)
		}
		chunks := make([]string, len(s.Chunks))
		for i, c := range s.Chunks {
			chunks[i] = strconv.FormatInt(c, 10)
		}
		label := "chunk"
		if len(chunks) != 1 {
			label = "chunks"
		}
		if len(chunks) == 0 {
			lines = append(lines, fmt.Sprintf("- %s (%sscore %.3f)", s.DocumentID, pages, s.BestScore))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s %s; %sscore %.3f)", s.DocumentID, label, strings.Join(chunks, ", "), pages, s.BestScore))
	}
	return strings.Join(lines, "\n")
}
