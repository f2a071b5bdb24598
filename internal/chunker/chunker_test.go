package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, maxChunkSize, overlap int) *Chunker {
	t.Helper()
	c, err := New(maxChunkSize, overlap)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidParameters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		max     int
		overlap int
	}{
		{"overlap equals max", 100, 100},
		{"overlap above max", 100, 150},
		{"negative overlap", 100, -1},
		{"zero max", 0, 0},
		{"negative max", -10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tc.max, tc.overlap)
			require.Error(t, err)
			assert.Nil(t, c)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %T", err)
			assert.Equal(t, tc.max, cfgErr.MaxChunkSize)
			assert.Equal(t, tc.overlap, cfgErr.OverlapChars)
		})
	}
}

func TestNew_AcceptsBoundaryParameters(t *testing.T) {
	t.Parallel()

	c, err := New(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, c.MaxChunkSize())
	assert.Equal(t, 0, c.OverlapChars())

	_, err = New(10, 9)
	require.NoError(t, err)
}

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 1000, 200)

	for _, in := range []string{"", "   ", "\n\t \r\n"} {
		assert.Empty(t, c.Split(in), "input %q", in)
		assert.Empty(t, c.Chunks(in), "input %q", in)
	}
}

func TestSplit_ShortTextIsSingleNormalisedChunk(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 1000, 200)

	got := c.Split("  Hello,\n\n   world!\tHow  are you?  ")
	require.Len(t, got, 1)
	assert.Equal(t, "Hello, world! How are you?", got[0])
}

func TestSplit_FirstChunkEndsAtSpaceNearLimit(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 1000, 200)

	// 1500 characters with spaces at 1000 and 1200.
	b := []byte(strings.Repeat("x", 1500))
	b[1000] = ' '
	b[1200] = ' '
	text := string(b)

	spans := c.spans([]rune(text))
	require.Len(t, spans, 2)
	assert.Equal(t, span{start: 0, end: 1000}, spans[0])
	assert.GreaterOrEqual(t, spans[1].start, 800)

	got := c.Split(text)
	require.Len(t, got, 2)
	assert.Equal(t, text[:1000], got[0])
	assert.Equal(t, text[800:], got[1])
}

func TestSplit_SpaceAtLimitWinsOverEarlierSpace(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 10, 2)

	// Spaces at 4 and exactly at the limit (10): the split uses 10, giving a
	// full-size first chunk rather than stopping after "aaaa".
	text := "aaaa bbbbb ccc"
	spans := c.spans([]rune(text))
	require.NotEmpty(t, spans)
	assert.Equal(t, span{start: 0, end: 10}, spans[0])
	assert.Equal(t, []string{"aaaa bbbbb", "bbbbb ccc"}, c.Split(text))
}

func TestChunks_OffsetsIndexNormalisedText(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 20, 6)
	text := "alpha  beta\ngamma delta\tepsilon zeta"
	norm := []rune(Normalize(text))

	chunks := c.Chunks(text)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, ch.Text, string(norm[ch.Start:ch.End]))
	}
}

func TestSplit_OverlapSnapsToWordStart(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 20, 6)

	got := c.Split("alpha beta gamma delta epsilon zeta")
	require.Equal(t, []string{"alpha beta gamma", "gamma delta epsilon", "epsilon zeta"}, got)
}

func TestSplit_AlphaScenarioYieldsThreeChunks(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 1000, 200)

	text := strings.Repeat("abcdefghi ", 250)
	require.Len(t, text, 2500)

	got := c.Chunks(text)
	require.Len(t, got, 3)

	norm := Normalize(text)
	assert.Equal(t, norm[0:999], got[0].Text)
	assert.Equal(t, norm[800:1799], got[1].Text)
	assert.Equal(t, norm[1600:], got[2].Text)
	for i, ch := range got {
		assert.Equal(t, i, ch.Index)
	}
}

func TestSplit_LongTokenIsHardSplit(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 10, 3)

	got := c.Split(strings.Repeat("z", 25))
	require.NotEmpty(t, got)
	for _, ch := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 10)
	}
	assert.Equal(t, strings.Repeat("z", 10), got[0])
}

func TestSplit_MultiByteTextCountsRunes(t *testing.T) {
	t.Parallel()
	c := mustNew(t, 8, 2)

	text := strings.Repeat("日本語 ", 20)
	for _, ch := range c.Split(text) {
		assert.True(t, utf8.ValidString(ch))
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 8)
	}
}

// TestSplit_Properties checks size bounds, termination and coverage over a
// range of parameters and inputs.
func TestSplit_Properties(t *testing.T) {
	t.Parallel()

	inputs := []string{
		strings.Repeat("lorem ipsum dolor sit amet ", 200),
		strings.Repeat("a", 3000),
		strings.Repeat("word ", 7) + strings.Repeat("x", 400) + strings.Repeat(" tail", 30),
		"one two three four five six seven eight nine ten eleven twelve",
		strings.Repeat("ab\n\ncd\t", 150),
	}
	params := [][2]int{{1000, 200}, {50, 10}, {17, 16}, {5, 0}, {3, 1}, {120, 119}}

	for _, in := range inputs {
		norm := []rune(Normalize(in))
		for _, p := range params {
			c := mustNew(t, p[0], p[1])
			spans := c.spans(norm)
			require.LessOrEqual(t, len(spans), len(norm), "params %v", p)

			covered := make([]bool, len(norm))
			prev := -1
			for _, sp := range spans {
				require.Greater(t, sp.start, prev, "params %v: chunk starts must advance", p)
				require.Less(t, sp.start, sp.end)
				require.LessOrEqual(t, sp.end-sp.start, p[0], "params %v", p)
				assert.NotEqual(t, ' ', norm[sp.start])
				assert.NotEqual(t, ' ', norm[sp.end-1])
				for i := sp.start; i < sp.end; i++ {
					covered[i] = true
				}
				prev = sp.start
			}
			for i, ok := range covered {
				if !ok {
					assert.Equal(t, ' ', norm[i], "params %v: rune %d not covered", p, i)
				}
			}

			got := c.Split(in)
			require.Len(t, got, len(spans))
			for i, sp := range spans {
				assert.Equal(t, string(norm[sp.start:sp.end]), got[i])
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                 "",
		"  a  ":            "a",
		"a\n\nb\tc":        "a b c",
		"a \u00a0\u2003 b": "a b",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}
