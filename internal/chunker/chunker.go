// Package chunker splits extracted document text into bounded, overlapping
// chunks that prefer word boundaries. It is a pure function over its input:
// a Chunker holds only its validated parameters and is safe for concurrent use.
//
// Lengths are measured in characters (runes), not bytes, so text containing
// multi-byte characters is never split inside a code point.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunk is one bounded substring of a document's normalised text.
type Chunk struct {
	// Text is the trimmed, whitespace-normalised chunk content. Never empty.
	Text string

	// Index is the 0-based position of the chunk within its document.
	Index int

	// Start and End bound the chunk as a half-open rune range of the
	// normalised document text.
	Start, End int
}

// ConfigError reports invalid chunking parameters. It is returned by New
// before any text is processed.
type ConfigError struct {
	// MaxChunkSize is the rejected maximum chunk length.
	MaxChunkSize int
	// OverlapChars is the rejected overlap length.
	OverlapChars int
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("chunker: invalid parameters maxChunkSize=%d overlapChars=%d (want maxChunkSize > 0 and 0 <= overlapChars < maxChunkSize)",
		e.MaxChunkSize, e.OverlapChars)
}

// Chunker holds validated chunking parameters.
type Chunker struct {
	// maxChunkSize is the upper bound on chunk length in characters.
	maxChunkSize int
	// overlapChars is the approximate overlap between consecutive chunks.
	overlapChars int
}

// New returns a Chunker for the given parameters. It fails with a
// *ConfigError when maxChunkSize <= 0, overlapChars < 0 or
// overlapChars >= maxChunkSize.
func New(maxChunkSize, overlapChars int) (*Chunker, error) {
	if maxChunkSize <= 0 || overlapChars < 0 || overlapChars >= maxChunkSize {
		return nil, &ConfigError{MaxChunkSize: maxChunkSize, OverlapChars: overlapChars}
	}
	return &Chunker{maxChunkSize: maxChunkSize, overlapChars: overlapChars}, nil
}

// MaxChunkSize returns the configured maximum chunk length.
func (c *Chunker) MaxChunkSize() int { return c.maxChunkSize }

// OverlapChars returns the configured overlap length.
func (c *Chunker) OverlapChars() int { return c.overlapChars }

// Chunks splits text and returns the chunks with their 0-based indices.
func (c *Chunker) Chunks(text string) []Chunk {
	s := []rune(Normalize(text))
	spans := c.spans(s)
	chunks := make([]Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = Chunk{Text: string(s[sp.start:sp.end]), Index: i, Start: sp.start, End: sp.end}
	}
	return chunks
}

// Split normalises text and returns the ordered chunk strings.
// Empty or whitespace-only input yields nil.
func (c *Chunker) Split(text string) []string {
	s := []rune(Normalize(text))
	var out []string
	for _, sp := range c.spans(s) {
		out = append(out, string(s[sp.start:sp.end]))
	}
	return out
}

// span is a half-open rune range [start, end) of the normalised text.
type span struct {
	start, end int
}

// spans walks the normalised text s and returns the trimmed, non-empty
// range of every chunk.
func (c *Chunker) spans(s []rune) []span {
	n := len(s)
	var out []span
	start := 0
	for start < n {
		maxEnd := min(start+c.maxChunkSize, n)

		split := maxEnd
		if maxEnd < n {
			// A space exactly at maxEnd still yields a chunk of maxChunkSize.
			if sp := lastSpace(s, start, maxEnd); sp > start+1 {
				split = sp
			}
		}

		if sp, ok := trim(s, start, split); ok {
			out = append(out, sp)
		}
		if split >= n {
			break
		}

		next := max(0, split-c.overlapChars)
		if next > 0 {
			if sp := lastSpace(s, start, next); sp >= 0 {
				next = sp + 1
			}
		}
		if next <= start {
			next = split
		}
		for next < n && s[next] == ' ' {
			next++
		}
		start = next
	}
	return out
}

// trim narrows [lo, hi) past leading and trailing spaces. ok is false when
// nothing remains.
func trim(s []rune, lo, hi int) (span, bool) {
	for lo < hi && s[lo] == ' ' {
		lo++
	}
	for hi > lo && s[hi-1] == ' ' {
		hi--
	}
	return span{start: lo, end: hi}, lo < hi
}

// Normalize collapses every whitespace run (spaces, tabs, newlines and other
// Unicode spaces) into a single ASCII space and trims both ends.
func Normalize(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// lastSpace returns the index of the last space in s[lo:hi+1], or -1.
// hi is clamped to the last valid index.
func lastSpace(s []rune, lo, hi int) int {
	if hi >= len(s) {
		hi = len(s) - 1
	}
	for i := hi; i >= lo; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return -1
}
