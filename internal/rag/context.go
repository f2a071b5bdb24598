package rag

import (
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/budget"
)

// NoResultsMarker is the context text used when retrieval returned nothing.
const NoResultsMarker = "(no relevant results found)"

// BuildContext renders hits as labelled blocks in input order:
//
//	[Context 1] Document: Alpha, Chunk: 0
//	<chunk text>
//
// Hits stored with page information get a ", Pages: 2-3" suffix (or
// ", Page: 2" for a single page) on their header line.
//
// Labels are 1-based and counted over all hits, so a hit with blank text is
// omitted but still consumes its number. Blocks are separated by a blank
// line. An empty hit list yields NoResultsMarker.
func BuildContext(hits []Hit) string {
	s, _ := BuildContextWithBudget(hits, 0)
	return s
}

// BuildContextWithBudget is BuildContext bounded by an estimated token
// budget. Blocks are added in order until the next one would push the total
// past maxTokens; later hits are dropped. maxTokens <= 0 disables the bound.
// It also returns the hits whose blocks made it into the context.
func BuildContextWithBudget(hits []Hit, maxTokens int) (string, []Hit) {
	if len(hits) == 0 {
		return NoResultsMarker, nil
	}

	var (
		blocks []string
		used   []Hit
		tokens int
	)
	for i, h := range hits {
		text := strings.TrimSpace(h.Text())
		if text == "" {
			continue
		}
		block := renderBlock(i+1, h, text)
		if maxTokens > 0 {
			t := budget.Estimate(block)
			if tokens+t > maxTokens {
				break
			}
			tokens += t
		}
		blocks = append(blocks, block)
		used = append(used, h)
	}
	if len(blocks) == 0 {
		return NoResultsMarker, nil
	}
	return strings.Join(blocks, "\n\n"), used
}

func renderBlock(label int, h Hit, text string) string {
	doc, ok := h.DocumentID()
	if !ok || strings.TrimSpace(doc) == "" {
		doc = "unknown"
	}
	chunk := "?"
	if idx, ok := h.ChunkIndex(); ok {
		chunk = strconv.FormatInt(idx, 10)
	}

	var b strings.Builder
	b.WriteString("[Context ")
	b.WriteString(strconv.Itoa(label))
	b.WriteString("] Document: ")
	b.WriteString(doc)
	b.WriteString(", Chunk: ")
	b.WriteString(chunk)
	if first, last, ok := h.Pages(); ok {
		b.WriteString(FormatPages(first, last))
	}
	b.WriteByte('\n')
	b.WriteString(text)
	return b.String()
}

// FormatPages renders a page range as a header suffix.
func FormatPages(first, last int64) string {
	if first == last {
		return ", Page: " + strconv.FormatInt(first, 10)
	}
	return ", Pages: " + strconv.FormatInt(first, 10) + "-" + strconv.FormatInt(last, 10)
}
