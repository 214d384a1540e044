package stream

import "github.com/tidwall/gjson"

const openAIDoneSentinel = "[DONE]"

func decodeOpenAI(payload string) []Event {
	if payload == openAIDoneSentinel {
		return []Event{doneEvent()}
	}
	root, bad := DialectOpenAI.parseObject(payload)
	if bad != nil {
		return bad
	}
	if ev, ok := DialectOpenAI.providerError(root); ok {
		return []Event{ev}
	}

	var events []Event

	// Flat {"delta": "..."} chunks come from some compatible proxies.
	if d := root.Get("delta"); d.Type == gjson.String && d.String() != "" {
		events = append(events, textEvent(d.String()))
	}

	choice := root.Get("choices.0")
	delta := choice.Get("delta")
	if c := delta.Get("content"); c.Type == gjson.String && c.String() != "" {
		events = append(events, textEvent(c.String()))
	}
	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		events = append(events, Event{
			Type: EventToolCallDelta,
			ToolCall: &ToolCallDelta{
				Index:          int(tc.Get("index").Int()),
				ID:             tc.Get("id").String(),
				Name:           tc.Get("function.name").String(),
				ArgumentsDelta: tc.Get("function.arguments").String(),
			},
		})
		return true
	})

	var reason FinishReason
	if fr := choice.Get("finish_reason"); fr.Type == gjson.String && fr.String() != "" {
		reason = mapOpenAIFinishReason(fr.String())
	}
	usage := usageFrom(root.Get("usage"), "prompt_tokens", "completion_tokens", "prompt_tokens_details.cached_tokens")
	if ev, ok := metadataEvent(reason, usage); ok {
		events = append(events, ev)
	}
	return events
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishMaxTokens
	case "content_filter":
		return FinishContentFilter
	case "tool_calls", "function_call":
		return FinishToolCalls
	default:
		return FinishUnknown
	}
}
