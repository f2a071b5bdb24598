// Package budget estimates token counts for retrieval context and chat
// history. pdfrag talks to several chat backends with different tokenizers,
// so it uses one conservative heuristic for all of them:
// 1 token ≈ 4 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most chat
	// APIs add to every message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens bounds the retrieved context placed in one
	// question's prompt.
	DefaultMaxContextTokens = 2000
)

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	chars := utf8.RuneCountInString(s)
	n := chars / charsPerToken
	if n == 0 && chars > 0 {
		return 1
	}
	return n
}

// EstimateMessages sums the estimate of role and content over msgs, plus a
// fixed per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits
// in maxTokens. fixed is never trimmed. Messages are removed in whole
// user/assistant exchanges so the returned history still starts with a user
// turn. maxTokens <= 0 returns history unchanged.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 && fixedTokens+EstimateMessages(history) > maxTokens {
		drop := 1
		if len(history) > 1 && history[0].Role == schema.User && history[1].Role == schema.Assistant {
			drop = 2
		}
		history = history[drop:]
	}
	return history
}
