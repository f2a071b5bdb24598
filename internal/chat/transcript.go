// Package chat holds the conversation state for question answering over
// ingested documents and the Session that drives one exchange:
// retrieve → assemble context → complete → record.
package chat

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag-go/internal/budget"
)

// SystemPrompt is the single system turn every transcript starts with.
const SystemPrompt = "You are a helpful assistant for retrieval-augmented question answering. " +
	"Use ONLY the information provided in the context section of the user's message. " +
	"If the context does not contain the answer, say clearly that the provided material does not cover it. " +
	"Answer concisely and precisely."

// Transcript is the stored view of one conversation: the system turn
// followed by alternating user questions and assistant answers. Retrieved
// context is never stored, only the bare question.
//
// A Transcript is owned by one Session and is not safe for concurrent use.
type Transcript struct {
	messages []*schema.Message
}

// NewTranscript returns a transcript seeded with SystemPrompt.
func NewTranscript() *Transcript {
	return &Transcript{messages: []*schema.Message{schema.SystemMessage(SystemPrompt)}}
}

// Messages returns a copy of the stored turns.
func (t *Transcript) Messages() []*schema.Message {
	out := make([]*schema.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of stored turns including the system turn.
func (t *Transcript) Len() int { return len(t.messages) }

// Exchanges returns the number of completed question/answer pairs.
func (t *Transcript) Exchanges() int { return (len(t.messages) - 1) / 2 }

// WireView returns the messages sent to the model for question: the stored
// turns followed by one transient user turn carrying question and context.
// The transcript itself is not modified.
func (t *Transcript) WireView(question, context string) []*schema.Message {
	out := t.Messages()
	return append(out, schema.UserMessage(wireTurn(question, context)))
}

// wireViewTrimmed is WireView with the stored exchanges trimmed oldest-first
// to maxTokens. The system turn is always kept.
// It also reports how many stored turns were left out.
func (t *Transcript) wireViewTrimmed(question, context string, maxTokens int) ([]*schema.Message, int) {
	if maxTokens <= 0 {
		return t.WireView(question, context), 0
	}
	system := t.messages[0]
	user := schema.UserMessage(wireTurn(question, context))
	history := t.messages[1:]
	kept := budget.TrimHistory([]*schema.Message{system, user}, history, maxTokens)

	out := make([]*schema.Message, 0, len(kept)+2)
	out = append(out, system)
	out = append(out, kept...)
	out = append(out, user)
	return out, len(history) - len(kept)
}

// record appends one completed exchange.
func (t *Transcript) record(question, answer string) {
	t.messages = append(t.messages,
		schema.UserMessage(question),
		schema.AssistantMessage(answer, nil),
	)
}

func wireTurn(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nTask: Answer the following question using only the context above. ")
	sb.WriteString("If the context is not sufficient, say that the material does not contain the information.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}
