package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag-go/internal/budget"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

var (
	// ErrCompletion marks a failed chat completion call.
	ErrCompletion = errors.New("chat: completion failed")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("chat: question is empty")
)

// exitWords end an interactive session.
var exitWords = map[string]bool{"exit": true, "quit": true, ":q": true, "bye": true}

// IsExit reports whether line asks to end an interactive session.
func IsExit(line string) bool {
	return exitWords[strings.ToLower(strings.TrimSpace(line))]
}

// Config holds the dependencies and tuning for a Session.
type Config struct {
	// ChatModel is the completion backend built by the provider factory.
	ChatModel model.BaseChatModel

	// Retriever supplies the hits for each question.
	Retriever rag.Retriever

	// TopK is the number of hits requested per question (default 6).
	TopK int

	// Temperature is passed to the model unless OmitTemperature is set.
	Temperature float32

	// OmitTemperature suppresses the temperature option for models that
	// reject it (reasoning deployments).
	OmitTemperature bool

	// MaxTokens caps the answer length. Zero leaves it to the backend.
	MaxTokens int

	// MaxContextTokens bounds the retrieved context per question. Defaults to
	// budget.DefaultMaxContextTokens; negative disables the bound.
	MaxContextTokens int

	// MaxHistoryTokens bounds the prompt sent to the model by leaving out
	// the oldest stored exchanges. Zero sends the whole transcript.
	MaxHistoryTokens int

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Answer is the outcome of one successful exchange.
type Answer struct {
	// Text is the assistant's reply.
	Text string

	// Hits are the retrieved hits whose text made it into the context.
	Hits []rag.Hit

	// Sources summarises Hits per document, in first-seen order.
	Sources []Source
}

// Session answers questions against one collection and keeps the
// conversation transcript. It is not safe for concurrent use.
type Session struct {
	cfg        Config
	transcript *Transcript
}

// New constructs a Session with a fresh transcript.
func New(cfg *Config) (*Session, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("chat: Retriever must not be nil")
	}
	c := *cfg
	if c.TopK <= 0 {
		c.TopK = 6
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Session{cfg: c, transcript: NewTranscript()}, nil
}

// Transcript returns the session's stored conversation.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Ask runs one exchange. On any failure the transcript is left unchanged
// and the error wraps rag.ErrRetrieval or ErrCompletion.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	return s.ask(ctx, question, nil)
}

// AskStream is Ask with the reply streamed: every content delta is written
// to w as the model produces it. The returned Answer carries the full reply.
// A failure part-way leaves the transcript unchanged, though w may already
// hold part of the reply.
func (s *Session) AskStream(ctx context.Context, question string, w io.Writer) (*Answer, error) {
	if w == nil {
		w = io.Discard
	}
	return s.ask(ctx, question, w)
}

func (s *Session) ask(ctx context.Context, question string, w io.Writer) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	hits, err := s.cfg.Retriever.Retrieve(ctx, question, s.cfg.TopK)
	if err != nil {
		s.cfg.Metrics.Question(metrics.OutcomeError, time.Since(start))
		if !errors.Is(err, rag.ErrRetrieval) {
			err = fmt.Errorf("%w: %w", rag.ErrRetrieval, err)
		}
		return nil, err
	}

	maxCtx := s.cfg.MaxContextTokens
	if maxCtx < 0 {
		maxCtx = 0
	}
	contextText, used := rag.BuildContextWithBudget(hits, maxCtx)
	if dropped := countNonBlank(hits) - len(used); dropped > 0 {
		log.Debug("chat: context budget dropped hits",
			slog.Int("dropped", dropped),
			slog.Int("max_tokens", maxCtx),
		)
	}

	messages, omitted := s.transcript.wireViewTrimmed(question, contextText, s.cfg.MaxHistoryTokens)
	if omitted > 0 {
		log.Warn("budget: left out history messages to fit context window",
			slog.Int("omitted", omitted),
			slog.Int("max_tokens", s.cfg.MaxHistoryTokens),
		)
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "pdfrag.ask",
		Type:      "Session",
		Component: components.ComponentOfChatModel,
	})
	var text string
	if w == nil {
		text, err = s.generate(ctx, messages)
	} else {
		text, err = s.stream(ctx, messages, w)
	}
	if err != nil {
		s.cfg.Metrics.Question(metrics.OutcomeError, time.Since(start))
		return nil, err
	}

	s.transcript.record(question, text)
	s.cfg.Metrics.Question(metrics.OutcomeOK, time.Since(start))

	log.Debug("chat: answered",
		slog.Int("hits", len(hits)),
		slog.Int("context_hits", len(used)),
		slog.Int("exchanges", s.transcript.Exchanges()),
	)
	return &Answer{Text: text, Hits: used, Sources: SummarizeSources(used)}, nil
}

func (s *Session) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	reply, err := s.cfg.ChatModel.Generate(ctx, messages, s.options()...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	if reply == nil {
		return "", fmt.Errorf("%w: empty reply", ErrCompletion)
	}
	return strings.TrimSpace(reply.Content), nil
}

// stream copies deltas to w while accumulating the full reply.
func (s *Session) stream(ctx context.Context, messages []*schema.Message, w io.Writer) (string, error) {
	sr, err := s.cfg.ChatModel.Stream(ctx, messages, s.options()...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	defer sr.Close()

	var buf strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: stream receive: %w", ErrCompletion, err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		buf.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return "", fmt.Errorf("%w: write: %w", ErrCompletion, err)
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func (s *Session) options() []model.Option {
	var opts []model.Option
	if !s.cfg.OmitTemperature {
		opts = append(opts, model.WithTemperature(s.cfg.Temperature))
	}
	if s.cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(s.cfg.MaxTokens))
	}
	return opts
}

func countNonBlank(hits []rag.Hit) int {
	n := 0
	for _, h := range hits {
		if strings.TrimSpace(h.Text()) != "" {
			n++
		}
	}
	return n
}
