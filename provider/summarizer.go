package provider

import (
	"context"
	"fmt"
	"polychat/model"
	"strings"
	"time"
)

const summaryPrompt = "Summarize the conversation below in a few sentences. " +
	"Keep names, decisions, open questions and any facts the assistant will need later. " +
	"Reply with the summary only."

// Summarizer condenses history with a chat model. It satisfies
// window.Summarizer, so the summarize policy can run on any provider.
type Summarizer struct {
	provider model.Provider
	timeout  time.Duration
}

// NewSummarizer returns a summarizer backed by p. Each call is bounded by
// timeout; zero means no bound.
func NewSummarizer(p model.Provider, timeout time.Duration) *Summarizer {
	return &Summarizer{provider: p, timeout: timeout}
}

// Summarize asks the model for a synopsis of messages. The transcript is
// sent as a single user turn so tool exchanges need no pairing.
func (s *Summarizer) Summarize(messages []model.Message) (string, error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	system, err := model.NewSystemMessage(summaryPrompt)
	if err != nil {
		return "", err
	}
	user, err := model.NewUserMessage(transcript(messages))
	if err != nil {
		return "", err
	}

	resp, err := s.provider.Chat(ctx, []model.Message{system, user}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// transcript renders messages as "role: text" lines.
func transcript(messages []model.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		text := msg.Text()
		if res, ok := msg.ToolResult(); ok {
			text = res.Content
		}
		for _, tc := range msg.ToolCalls() {
			text += fmt.Sprintf("\n[called %s %s]", tc.Name, tc.Arguments)
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, text)
	}
	return b.String()
}
