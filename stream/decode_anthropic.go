package stream

import "github.com/tidwall/gjson"

// decodeAnthropic handles the typed Messages API events. The "event:" SSE
// field duplicates the payload's "type" and is discarded by the framing.
func decodeAnthropic(payload string) []Event {
	root, bad := DialectAnthropic.parseObject(payload)
	if bad != nil {
		return bad
	}

	switch root.Get("type").String() {
	case "message_start":
		usage := usageFrom(root.Get("message.usage"), "input_tokens", "output_tokens", "cache_read_input_tokens")
		if ev, ok := metadataEvent("", usage); ok {
			return []Event{ev}
		}
		return nil

	case "content_block_start":
		block := root.Get("content_block")
		index := int(root.Get("index").Int())
		switch block.Get("type").String() {
		case "tool_use":
			return []Event{{
				Type: EventToolCallDelta,
				ToolCall: &ToolCallDelta{
					Index: index,
					ID:    block.Get("id").String(),
					Name:  block.Get("name").String(),
				},
			}}
		case "text":
			if text := block.Get("text").String(); text != "" {
				return []Event{textEvent(text)}
			}
		}
		return nil

	case "content_block_delta":
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			if text := delta.Get("text").String(); text != "" {
				return []Event{textEvent(text)}
			}
		case "input_json_delta":
			if partial := delta.Get("partial_json").String(); partial != "" {
				return []Event{{
					Type: EventToolCallDelta,
					ToolCall: &ToolCallDelta{
						Index:          int(root.Get("index").Int()),
						ArgumentsDelta: partial,
					},
				}}
			}
		}
		return nil

	case "message_delta":
		var reason FinishReason
		if sr := root.Get("delta.stop_reason"); sr.Type == gjson.String && sr.String() != "" {
			reason = mapAnthropicStopReason(sr.String())
		}
		usage := usageFrom(root.Get("usage"), "input_tokens", "output_tokens", "cache_read_input_tokens")
		if ev, ok := metadataEvent(reason, usage); ok {
			return []Event{ev}
		}
		return nil

	case "message_stop":
		return []Event{doneEvent()}

	case "error":
		ev, _ := DialectAnthropic.providerError(root)
		if ev.Type == "" {
			ev = errorEvent(&ProviderError{Dialect: DialectAnthropic, Message: root.Raw})
		}
		return []Event{ev}

	default:
		// ping, content_block_stop and event types added after this was written.
		return nil
	}
}

func mapAnthropicStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return FinishStop
	case "max_tokens":
		return FinishMaxTokens
	case "tool_use":
		return FinishToolCalls
	case "refusal":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}
