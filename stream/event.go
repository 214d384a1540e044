// Package stream turns raw, arbitrarily fragmented provider response bodies
// into one ordered sequence of unified events.
//
// Every provider dialect frames its stream differently (SSE "data:" lines for
// OpenAI, Anthropic and Gemini; newline-delimited JSON for Ollama) and uses its
// own JSON schema for deltas, tool calls, finish reasons and usage. The
// package splits the concern in three layers:
//
//   - LineBuffer reconstructs complete lines from fragments.
//   - Dialect.Payload and Dialect.Decode turn one line into zero or more Events.
//   - Normalize drives the two over a fragment source and enforces ordering:
//     one start event first, at most one terminal event last.
//
// Besides start, text and tool-call deltas, done and error, the sequence may
// contain metadata events. Some dialects report the finish reason or usage
// before the stream actually ends (an OpenAI usage chunk, a Gemini candidate
// with finishReason, an Anthropic message_delta); a metadata event carries
// those values and is never terminal. Consumers keep the last finish reason
// and usage seen on any event.
//
// Consumers fold events into a Response with Accumulator or Collect.
package stream

import "fmt"

// EventType identifies the kind of a unified stream event.
type EventType string

const (
	EventStart         EventType = "start"
	EventTextDelta     EventType = "text_delta"
	EventToolCallDelta EventType = "tool_call_delta"
	// EventMetadata carries a finish reason and/or usage reported before the
	// stream's explicit end. It is never terminal.
	EventMetadata EventType = "metadata"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Terminal reports whether no further events may follow an event of this type.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// FinishReason is the normalized reason a completion ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishMaxTokens     FinishReason = "max_tokens"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishUnknown       FinishReason = "unknown"
)

// Usage is the token accounting a provider reports for one completion.
// Zero means "not reported".
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// merge overlays the non-zero fields of o onto u.
func (u *Usage) merge(o Usage) {
	if o.PromptTokens != 0 {
		u.PromptTokens = o.PromptTokens
	}
	if o.CompletionTokens != 0 {
		u.CompletionTokens = o.CompletionTokens
	}
	if o.CachedTokens != 0 {
		u.CachedTokens = o.CachedTokens
	}
}

// ToolCallDelta is one fragment of a tool call. Fragments sharing an Index
// belong to the same call; ID and Name usually arrive only on the first one
// and ArgumentsDelta is a piece of the JSON argument text.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// Event is one unified stream event.
type Event struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCallDelta
	FinishReason FinishReason
	Usage        *Usage
	Err          error
}

func (e Event) String() string {
	switch e.Type {
	case EventTextDelta:
		return fmt.Sprintf("%s(%q)", e.Type, e.Text)
	case EventToolCallDelta:
		if e.ToolCall == nil {
			return string(e.Type)
		}
		return fmt.Sprintf("%s(#%d %s %q)", e.Type, e.ToolCall.Index, e.ToolCall.Name, e.ToolCall.ArgumentsDelta)
	case EventMetadata, EventDone:
		if e.FinishReason != "" {
			return fmt.Sprintf("%s(%s)", e.Type, e.FinishReason)
		}
		return string(e.Type)
	case EventError:
		return fmt.Sprintf("%s(%v)", e.Type, e.Err)
	default:
		return string(e.Type)
	}
}

func textEvent(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Err: err}
}

func doneEvent() Event {
	return Event{Type: EventDone}
}
