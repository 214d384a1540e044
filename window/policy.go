package window

import (
	"fmt"
	"polychat/config"
	"polychat/model"
	"slices"
	"strings"
)

// Policy selects how the manager evicts messages once the context exceeds
// its budget.
type Policy string

const (
	// PolicySlidingWindow evicts the oldest user turn together with the
	// assistant reply that immediately follows it.
	PolicySlidingWindow Policy = "sliding-window"
	// PolicyTruncateOldest evicts the oldest non-system message.
	PolicyTruncateOldest Policy = "truncate-oldest"
	// PolicySummarize replaces the oldest half of the history with a synopsis
	// produced by the configured Summarizer.
	PolicySummarize Policy = "summarize"
)

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySlidingWindow, PolicyTruncateOldest, PolicySummarize:
		return p, nil
	case "":
		return PolicySlidingWindow, nil
	default:
		return "", fmt.Errorf("unknown eviction policy: %q", s)
	}
}

// Summarizer condenses a prefix of the history into a synopsis. It is called
// synchronously during enforcement.
type Summarizer interface {
	Summarize(messages []model.Message) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(messages []model.Message) (string, error)

func (f SummarizerFunc) Summarize(messages []model.Message) (string, error) {
	return f(messages)
}

// SummaryMetadataKey marks synopsis messages created by PolicySummarize.
const SummaryMetadataKey = "summary"

// eviction describes the result of applying a policy once.
type eviction struct {
	removed  []model.Message
	summary  *model.Message
	fallback bool
}

// evictOnce applies the configured policy to the stored sequence once.
// Callers hold m.mu and guarantee the sequence is non-empty.
func (m *Manager) evictOnce() eviction {
	msgs := m.conv.Messages()
	switch m.cfg.Policy {
	case PolicySummarize:
		return m.summarizeOldest(msgs)
	case PolicyTruncateOldest:
		return m.removeAll(truncateOldest(msgs))
	default:
		return m.removeAll(slidingWindow(msgs))
	}
}

// slidingWindow selects the first user message and the assistant reply that
// immediately follows it, plus any tool results answering that reply. Without
// a user message it selects the literal oldest message, whatever its role.
func slidingWindow(msgs []model.Message) []model.Message {
	i := slices.IndexFunc(msgs, func(m model.Message) bool { return m.Role == model.RoleUser })
	if i < 0 {
		return msgs[:1]
	}
	end := i + 1
	if end < len(msgs) && msgs[end].Role == model.RoleAssistant {
		calls := msgs[end].ToolCalls()
		end++
		for end < len(msgs) && msgs[end].Role == model.RoleTool && answers(msgs[end], calls) {
			end++
		}
	}
	return msgs[i:end]
}

func answers(toolMsg model.Message, calls []model.ToolCall) bool {
	res, ok := toolMsg.ToolResult()
	if !ok {
		return false
	}
	return slices.ContainsFunc(calls, func(c model.ToolCall) bool { return c.ID == res.ToolCallID })
}

// extendOverResults moves a cut at n past the tool results that answer calls
// made before the cut, so an exchange is never split.
func extendOverResults(msgs []model.Message, n int) int {
	var calls []model.ToolCall
	for _, msg := range msgs[:n] {
		if msg.Role == model.RoleAssistant {
			calls = append(calls, msg.ToolCalls()...)
		}
	}
	for n < len(msgs) && msgs[n].Role == model.RoleTool && answers(msgs[n], calls) {
		n++
	}
	return n
}

// truncateOldest selects the oldest non-system message, or the literal oldest
// when every message is a system message.
func truncateOldest(msgs []model.Message) []model.Message {
	i := slices.IndexFunc(msgs, func(m model.Message) bool { return m.Role != model.RoleSystem })
	if i < 0 {
		i = 0
	}
	return msgs[i : i+1]
}

func (m *Manager) removeAll(victims []model.Message) eviction {
	ev := eviction{}
	for _, v := range victims {
		if m.conv.Remove(v.ID) {
			ev.removed = append(ev.removed, v)
		}
	}
	return ev
}

// summarizeOldest replaces the oldest half of msgs (at least two messages,
// plus any tool results answering calls in that half) with one synopsis. It falls back to truncate-oldest when no summarizer is
// configured, the summarizer fails, or the synopsis would not shrink the
// context.
func (m *Manager) summarizeOldest(msgs []model.Message) eviction {
	fallback := func(reason string) eviction {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Window] summarize fell back to truncate-oldest: %s", reason)
		}
		ev := m.removeAll(truncateOldest(msgs))
		ev.fallback = true
		return ev
	}

	if m.cfg.Summarizer == nil {
		return fallback("no summarizer configured")
	}
	if len(msgs) < 2 {
		return fallback("fewer than two messages")
	}

	n := extendOverResults(msgs, max(len(msgs)/2, 2))
	prefix := msgs[:n]
	text, err := m.cfg.Summarizer.Summarize(prefix)
	if err != nil {
		return fallback(fmt.Sprintf("summarizer failed: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		return fallback("summarizer returned an empty synopsis")
	}

	summary, err := model.NewSystemMessage(text)
	if err != nil {
		return fallback(err.Error())
	}
	summary = summary.WithMetadata(SummaryMetadataKey, "true")

	est := m.cfg.Estimator
	if est.EstimateMessages([]model.Message{summary}) >= est.EstimateMessages(prefix) {
		return fallback("synopsis is not smaller than the messages it replaces")
	}

	removed, err := m.conv.ReplaceOldest(n, summary)
	if err != nil {
		return fallback(err.Error())
	}
	return eviction{removed: removed, summary: &summary}
}
