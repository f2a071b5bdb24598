package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// fakeModel records every call and replies with a fixed answer or error.
// Stream sends deltas in order, then recvErr if set.
type fakeModel struct {
	reply   string
	err     error
	deltas  []string
	recvErr error
	calls   [][]*schema.Message
	opts    []*model.Options
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls = append(f.calls, input)
	f.opts = append(f.opts, model.GetCommonOptions(nil, opts...))
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.calls = append(f.calls, input)
	f.opts = append(f.opts, model.GetCommonOptions(nil, opts...))
	if f.err != nil {
		return nil, f.err
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.deltas) + 1)
	go func() {
		defer sw.Close()
		for _, d := range f.deltas {
			sw.Send(schema.AssistantMessage(d, nil), nil)
		}
		if f.recvErr != nil {
			sw.Send(nil, f.recvErr)
		}
	}()
	return sr, nil
}

// fakeRetriever returns canned hits and remembers the last topK.
type fakeRetriever struct {
	hits []rag.Hit
	err  error
	topK int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]rag.Hit, error) {
	f.topK = topK
	return f.hits, f.err
}

func hit(doc string, idx int64, text string, score float32) rag.Hit {
	return rag.Hit{
		ID:    doc,
		Score: score,
		Payload: rag.Payload{
			rag.FieldDocumentID: rag.StringValue(doc),
			rag.FieldChunkIndex: rag.IntValue(idx),
			rag.FieldText:       rag.StringValue(text),
			rag.FieldSourcePath: rag.StringValue("data/" + doc + ".pdf"),
		},
	}
}

func newSession(t *testing.T, m *fakeModel, r *fakeRetriever, mut ...func(*Config)) *Session {
	t.Helper()
	cfg := &Config{ChatModel: m, Retriever: r, Temperature: 0.7, MaxTokens: 500}
	for _, fn := range mut {
		fn(cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestSession_StoredVersusWireView(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "  Alpha is the first letter.  "}
	r := &fakeRetriever{hits: []rag.Hit{hit("Alpha", 0, "alpha text", 0.9)}}
	s := newSession(t, m, r)

	ans, err := s.Ask(context.Background(), "What is Alpha?")
	require.NoError(t, err)
	assert.Equal(t, "Alpha is the first letter.", ans.Text)

	require.Len(t, m.calls, 1)
	wire := m.calls[0]
	require.Len(t, wire, 2)
	assert.Equal(t, schema.System, wire[0].Role)
	assert.Equal(t, SystemPrompt, wire[0].Content)
	assert.Equal(t, schema.User, wire[1].Role)
	assert.Contains(t, wire[1].Content, "[Context 1] Document: Alpha, Chunk: 0\nalpha text")
	assert.Contains(t, wire[1].Content, "What is Alpha?")

	stored := s.Transcript().Messages()
	require.Len(t, stored, 3)
	assert.Equal(t, "What is Alpha?", stored[1].Content, "stored turn must be the bare question")
	assert.Equal(t, schema.Assistant, stored[2].Role)
	assert.Equal(t, "Alpha is the first letter.", stored[2].Content)
	assert.Equal(t, 1, s.Transcript().Exchanges())
}

func TestSession_AskStreamWritesDeltas(t *testing.T) {
	t.Parallel()
	m := &fakeModel{deltas: []string{"Alpha ", "", "is the first ", "letter.  "}}
	r := &fakeRetriever{hits: []rag.Hit{hit("Alpha", 0, "alpha text", 0.9)}}
	s := newSession(t, m, r)

	var out strings.Builder
	ans, err := s.AskStream(context.Background(), "What is Alpha?", &out)
	require.NoError(t, err)
	assert.Equal(t, "Alpha is the first letter.  ", out.String())
	assert.Equal(t, "Alpha is the first letter.", ans.Text)
	require.Len(t, ans.Sources, 1)

	require.Len(t, m.calls, 1)
	assert.Contains(t, m.calls[0][1].Content, "[Context 1] Document: Alpha, Chunk: 0\nalpha text")
	require.NotNil(t, m.opts[0].MaxTokens)
	assert.Equal(t, 500, *m.opts[0].MaxTokens)

	stored := s.Transcript().Messages()
	require.Len(t, stored, 3)
	assert.Equal(t, "Alpha is the first letter.", stored[2].Content)
}

func TestSession_AskStreamFailureLeavesTranscriptUntouched(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "open", model: &fakeModel{err: errors.New("429 rate limited")}},
		{name: "mid-stream", model: &fakeModel{deltas: []string{"partial "}, recvErr: errors.New("connection reset")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newSession(t, tc.model, &fakeRetriever{hits: []rag.Hit{hit("Alpha", 0, "alpha text", 0.9)}})
			_, err := s.AskStream(context.Background(), "What is Alpha?", nil)
			require.ErrorIs(t, err, ErrCompletion)
			assert.Equal(t, 1, s.Transcript().Len())
			assert.Zero(t, s.Transcript().Exchanges())
		})
	}
}

func TestSession_SecondQuestionCarriesHistory(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "ok"}
	r := &fakeRetriever{hits: []rag.Hit{hit("Alpha", 0, "alpha text", 0.9)}}
	s := newSession(t, m, r)

	_, err := s.Ask(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "second")
	require.NoError(t, err)

	wire := m.calls[1]
	require.Len(t, wire, 4)
	assert.Equal(t, "first", wire[1].Content)
	assert.Equal(t, "ok", wire[2].Content)
	assert.True(t, strings.HasSuffix(wire[3].Content, "Question: second"))
	assert.Equal(t, 5, s.Transcript().Len())
}

func TestSession_NoHitsUsesMarker(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "not in the material"}
	s := newSession(t, m, &fakeRetriever{})

	ans, err := s.Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Contains(t, m.calls[0][1].Content, rag.NoResultsMarker)
	assert.Empty(t, ans.Sources)
}

func TestSession_FailuresLeaveTranscriptUntouched(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		model   *fakeModel
		ret     *fakeRetriever
		wantErr error
	}{
		{
			name:    "retrieval",
			model:   &fakeModel{reply: "unused"},
			ret:     &fakeRetriever{err: errors.New("qdrant down")},
			wantErr: rag.ErrRetrieval,
		},
		{
			name:    "retrieval already wrapped",
			model:   &fakeModel{reply: "unused"},
			ret:     &fakeRetriever{err: rag.ErrRetrieval},
			wantErr: rag.ErrRetrieval,
		},
		{
			name:    "completion",
			model:   &fakeModel{err: errors.New("429 rate limited")},
			ret:     &fakeRetriever{hits: []rag.Hit{hit("Alpha", 0, "t", 0.5)}},
			wantErr: ErrCompletion,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newSession(t, tc.model, tc.ret)
			before := s.Transcript().Messages()

			_, err := s.Ask(context.Background(), "question")
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, before, s.Transcript().Messages())
			assert.Equal(t, 1, s.Transcript().Len())
		})
	}
}

func TestSession_EmptyQuestion(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "x"}
	s := newSession(t, m, &fakeRetriever{})
	_, err := s.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, m.calls)
}

func TestSession_OptionsAndTopK(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "x"}
	r := &fakeRetriever{}
	s := newSession(t, m, r, func(c *Config) { c.TopK = 3 })

	_, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 3, r.topK)
	require.NotNil(t, m.opts[0].Temperature)
	assert.InDelta(t, 0.7, *m.opts[0].Temperature, 1e-6)
	require.NotNil(t, m.opts[0].MaxTokens)
	assert.Equal(t, 500, *m.opts[0].MaxTokens)

	m2 := &fakeModel{reply: "x"}
	s2 := newSession(t, m2, &fakeRetriever{}, func(c *Config) { c.OmitTemperature = true; c.MaxTokens = 0 })
	_, err = s2.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, m2.opts[0].Temperature)
	assert.Nil(t, m2.opts[0].MaxTokens)
}

func TestSession_ContextBudgetLimitsHits(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("word ", 200)
	r := &fakeRetriever{hits: []rag.Hit{
		hit("Alpha", 0, long, 0.9),
		hit("Beta", 0, long, 0.8),
	}}
	m := &fakeModel{reply: "x"}
	s := newSession(t, m, r, func(c *Config) { c.MaxContextTokens = 300 })

	ans, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, ans.Hits, 1)
	assert.NotContains(t, m.calls[0][1].Content, "Document: Beta")
}

func TestSession_HistoryBudgetOmitsOldestExchange(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: strings.Repeat("long answer ", 40)}
	s := newSession(t, m, &fakeRetriever{}, func(c *Config) { c.MaxHistoryTokens = 250 })

	for _, q := range []string{"one", "two", "three"} {
		_, err := s.Ask(context.Background(), q)
		require.NoError(t, err)
	}
	last := m.calls[2]
	assert.Less(t, len(last), 6, "oldest exchanges must be left out of the prompt")
	assert.Equal(t, schema.System, last[0].Role)
	assert.Equal(t, 7, s.Transcript().Len(), "stored transcript is never trimmed")
}

func TestSession_Metrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := &fakeModel{reply: "x"}
	s := newSession(t, m, &fakeRetriever{}, func(c *Config) { c.Metrics = metrics.New(reg) })

	_, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "pdfrag_chat_questions_total")
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Config{Retriever: &fakeRetriever{}})
	assert.Error(t, err)
	_, err = New(&Config{ChatModel: &fakeModel{}})
	assert.Error(t, err)
}

func TestIsExit(t *testing.T) {
	t.Parallel()
	for _, w := range []string{"exit", "QUIT", " :q ", "Bye"} {
		assert.True(t, IsExit(w), w)
	}
	for _, w := range []string{"", "exit now", "q"} {
		assert.False(t, IsExit(w), w)
	}
}

func TestSummarizeSources(t *testing.T) {
	t.Parallel()
	hits := []rag.Hit{
		hit("Alpha", 0, "a", 0.7),
		hit("Beta", 3, "b", 0.6),
		hit("Alpha", 2, "c", 0.9),
		hit("Alpha", 0, "a", 0.7),
		{Score: 0.1, Payload: rag.Payload{rag.FieldText: rag.StringValue("orphan")}},
	}
	got := SummarizeSources(hits)
	require.Len(t, got, 3)
	assert.Equal(t, "Alpha", got[0].DocumentID)
	assert.Equal(t, []int64{0, 2}, got[0].Chunks)
	assert.InDelta(t, 0.9, got[0].BestScore, 1e-6)
	assert.Equal(t, "data/Alpha.pdf", got[0].SourcePath)
	assert.Equal(t, "Beta", got[1].DocumentID)
	assert.Equal(t, "unknown", got[2].DocumentID)

	assert.Equal(t,
		"- Alpha (chunks 0, 2; score 0.900)\n- Beta (chunk 3; score 0.600)\n- unknown (score 0.100)",
		FormatSources(got))
}

func TestSummarizeSources_PageRange(t *testing.T) {
	t.Parallel()
	withPages := func(h rag.Hit, first, last int64) rag.Hit {
		h.Payload[rag.FieldPageStart] = rag.IntValue(first)
		h.Payload[rag.FieldPageEnd] = rag.IntValue(last)
		return h
	}
	hits := []rag.Hit{
		withPages(hit("Alpha", 2, "c", 0.9), 3, 4),
		withPages(hit("Alpha", 0, "a", 0.7), 1, 1),
		withPages(hit("Beta", 5, "b", 0.6), 7, 7),
		hit("Gamma", 1, "g", 0.5),
	}
	got := SummarizeSources(hits)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].FirstPage)
	assert.Equal(t, int64(4), got[0].LastPage)
	assert.Zero(t, got[2].FirstPage)

	assert.Equal(t,
		"- Alpha (chunks 2, 0; pages 1-4; score 0.900)\n- Beta (chunk 5; page 7; score 0.600)\n- Gamma (chunk 1; score 0.500)",
		FormatSources(got))
}
