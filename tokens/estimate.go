// Package tokens estimates token counts without a provider tokenizer.
//
// The estimate blends a character heuristic (about four non-whitespace
// characters per token) with a word heuristic (about 1.3 tokens per word).
// It is deterministic and tracks real tokenizers closely enough for budget
// enforcement; it is not meant to match any one tokenizer exactly.
package tokens

import (
	"polychat/model"
	"unicode"
)

const (
	// PerMessageOverhead covers role and framing tokens of each message.
	PerMessageOverhead = 4
	// ReplyPrimingOverhead covers the tokens that prime the assistant reply.
	ReplyPrimingOverhead = 3
	// MediaTokensLow is the flat cost of a low or default detail media part.
	MediaTokensLow = 85
	// MediaTokensHigh is the flat cost of a high detail media part.
	MediaTokensHigh = 765
)

// Estimate returns the estimated token count of text. Empty text costs 0;
// any other text costs at least 1.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	chars, words := 0, 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		chars++
		if !inWord {
			words++
			inWord = true
		}
	}

	byChars := (chars + 3) / 4
	byWords := (words*13 + 9) / 10
	return max((byChars+byWords+1)/2, 1)
}

// EstimateMessage returns the cost of one message's content, excluding the
// per-message overhead.
func EstimateMessage(msg model.Message) int {
	total := Estimate(msg.Name)
	for _, p := range msg.Parts {
		total += estimatePart(p)
	}
	return total
}

func estimatePart(p model.Part) int {
	switch {
	case p.Type == model.PartText:
		return Estimate(p.Text)
	case p.Type.IsMedia():
		if p.Media != nil && p.Media.Detail == "high" {
			return MediaTokensHigh
		}
		return MediaTokensLow
	case p.Type == model.PartToolCall && p.ToolCall != nil:
		return Estimate(p.ToolCall.Name) + Estimate(p.ToolCall.Arguments)
	case p.Type == model.PartToolResult && p.ToolResult != nil:
		return Estimate(p.ToolResult.Content)
	default:
		return 0
	}
}

// EstimateMessages returns the cost of sending msgs as one request: every
// message's content plus PerMessageOverhead, plus ReplyPrimingOverhead once.
func EstimateMessages(msgs []model.Message) int {
	total := ReplyPrimingOverhead
	for _, m := range msgs {
		total += EstimateMessage(m) + PerMessageOverhead
	}
	return total
}

// Estimator estimates the cost of a request context.
type Estimator interface {
	EstimateMessages(msgs []model.Message) int
}

// Heuristic is the Estimator backed by EstimateMessages.
type Heuristic struct{}

func (Heuristic) EstimateMessages(msgs []model.Message) int {
	return EstimateMessages(msgs)
}

// Default is the estimator used when none is configured.
var Default Estimator = Heuristic{}
