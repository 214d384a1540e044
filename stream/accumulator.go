package stream

import (
	"fmt"
	"iter"
	"strings"

	"github.com/tidwall/gjson"
)

// ToolCall is a fully assembled tool call. Arguments is the raw JSON text the
// model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is the folded result of one streamed completion.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// Accumulator folds events into a Response. The zero value is ready to use.
type Accumulator struct {
	text     strings.Builder
	calls    []ToolCall
	byIndex  map[int]int
	reason   FinishReason
	usage    Usage
	hasUsage bool
	err      error
}

// Add folds one event.
func (a *Accumulator) Add(ev Event) {
	switch ev.Type {
	case EventTextDelta:
		a.text.WriteString(ev.Text)
	case EventToolCallDelta:
		a.addToolCall(ev.ToolCall)
	case EventMetadata, EventDone:
		if ev.FinishReason != "" {
			a.reason = ev.FinishReason
		}
		if ev.Usage != nil {
			a.usage.merge(*ev.Usage)
			a.hasUsage = true
		}
	case EventError:
		if a.err == nil {
			a.err = ev.Err
		}
	}
}

func (a *Accumulator) addToolCall(d *ToolCallDelta) {
	if d == nil {
		return
	}
	if a.byIndex == nil {
		a.byIndex = make(map[int]int)
	}

	pos, ok := a.byIndex[d.Index]
	if ok && a.startsNewCall(a.calls[pos], d) {
		ok = false
	}
	if !ok {
		a.calls = append(a.calls, ToolCall{})
		pos = len(a.calls) - 1
		a.byIndex[d.Index] = pos
	}

	call := &a.calls[pos]
	if d.ID != "" {
		call.ID = d.ID
	}
	if d.Name != "" {
		call.Name = d.Name
	}
	call.Arguments += d.ArgumentsDelta
}

// startsNewCall reports whether d opens a second call at an index already in
// use. Dialects that deliver complete calls per chunk (Gemini, Ollama) restart
// their indices in every chunk.
func (a *Accumulator) startsNewCall(existing ToolCall, d *ToolCallDelta) bool {
	if d.Name == "" || existing.Name == "" {
		return false
	}
	if d.ID != "" && existing.ID != "" {
		return d.ID != existing.ID
	}
	return existing.Arguments != "" && gjson.Valid(existing.Arguments)
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Err returns the first error event seen, if any.
func (a *Accumulator) Err() error {
	return a.err
}

func (a *Accumulator) finishReason() FinishReason {
	switch {
	case a.reason != "":
		return a.reason
	case len(a.calls) > 0:
		return FinishToolCalls
	default:
		return FinishStop
	}
}

// Done synthesizes the final done event from the best-known finish reason
// and usage. Without a reported reason it is tool_calls when calls were
// assembled and stop otherwise.
func (a *Accumulator) Done() Event {
	ev := Event{Type: EventDone, FinishReason: a.finishReason()}
	if a.hasUsage {
		u := a.usage
		ev.Usage = &u
	}
	return ev
}

// Response returns a snapshot of the accumulated result.
func (a *Accumulator) Response() *Response {
	resp := &Response{
		Text:         a.text.String(),
		FinishReason: a.finishReason(),
		Usage:        a.usage,
	}
	if len(a.calls) > 0 {
		resp.ToolCalls = append([]ToolCall(nil), a.calls...)
	}
	return resp
}

// Collect drains events into a Response, forwarding them to fn when fn is not
// nil. The normalizer's own done event is replaced by exactly one synthesized
// done carrying the final finish reason and usage. An error event is
// forwarded and returned as a *StreamError holding the partial response. An
// error returned by fn stops the stream and is returned as is.
func Collect(events iter.Seq[Event], fn func(Event) error) (*Response, error) {
	var acc Accumulator
	for ev := range events {
		acc.Add(ev)
		switch ev.Type {
		case EventDone:
			continue
		case EventError:
			partial := acc.Response()
			if fn != nil {
				_ = fn(ev)
			}
			return partial, &StreamError{Partial: partial, Err: ev.Err}
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return acc.Response(), fmt.Errorf("stream callback failed: %w", err)
			}
		}
	}

	done := acc.Done()
	if fn != nil {
		if err := fn(done); err != nil {
			return acc.Response(), fmt.Errorf("stream callback failed: %w", err)
		}
	}
	return acc.Response(), nil
}
