package stream

import "github.com/tidwall/gjson"

// decodeOllama handles /api/chat newline-delimited JSON. The final object
// carries "done": true together with the evaluation counters.
func decodeOllama(payload string) []Event {
	root, bad := DialectOllama.parseObject(payload)
	if bad != nil {
		return bad
	}
	if ev, ok := DialectOllama.providerError(root); ok {
		return []Event{ev}
	}

	var events []Event
	msg := root.Get("message")
	if c := msg.Get("content"); c.Type == gjson.String && c.String() != "" {
		events = append(events, textEvent(c.String()))
	}
	i := 0
	msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		args := tc.Get("function.arguments").Raw
		if args == "" {
			args = "{}"
		}
		index := i
		if idx := tc.Get("function.index"); idx.Exists() {
			index = int(idx.Int())
		}
		events = append(events, Event{
			Type: EventToolCallDelta,
			ToolCall: &ToolCallDelta{
				Index:          index,
				ID:             tc.Get("id").String(),
				Name:           tc.Get("function.name").String(),
				ArgumentsDelta: args,
			},
		})
		i++
		return true
	})

	if !root.Get("done").Bool() {
		return events
	}

	var reason FinishReason
	if dr := root.Get("done_reason").String(); dr != "" {
		reason = mapOllamaDoneReason(dr)
	}
	usage := usageFrom(root, "prompt_eval_count", "eval_count", "")
	if ev, ok := metadataEvent(reason, usage); ok {
		events = append(events, ev)
	}
	return append(events, doneEvent())
}

func mapOllamaDoneReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishMaxTokens
	default:
		return FinishUnknown
	}
}
