package stream

import "github.com/tidwall/gjson"

// decodeGemini handles streamGenerateContent chunks (alt=sse). Gemini has no
// explicit end-of-stream marker; the stream simply closes.
func decodeGemini(payload string) []Event {
	root, bad := DialectGemini.parseObject(payload)
	if bad != nil {
		return bad
	}
	if ev, ok := DialectGemini.providerError(root); ok {
		return []Event{ev}
	}

	usage := usageFrom(root.Get("usageMetadata"), "promptTokenCount", "candidatesTokenCount", "cachedContentTokenCount")

	candidates := root.Get("candidates")
	if !candidates.IsArray() || len(candidates.Array()) == 0 {
		// No candidates and a block reason means the prompt was blocked.
		// No candidates and no block reason means nothing has been produced yet.
		blocked := root.Get("promptFeedback.blockReason").String()
		if blocked == "" {
			blocked = root.Get("blockReason").String()
		}
		var reason FinishReason
		if blocked != "" {
			reason = FinishContentFilter
		}
		if ev, ok := metadataEvent(reason, usage); ok {
			return []Event{ev}
		}
		return nil
	}

	var events []Event
	candidate := candidates.Get("0")
	calls := 0
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if part.Get("thought").Bool() {
			return true
		}
		if text := part.Get("text"); text.Type == gjson.String && text.String() != "" {
			events = append(events, textEvent(text.String()))
		}
		if fc := part.Get("functionCall"); fc.IsObject() {
			args := fc.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			events = append(events, Event{
				Type: EventToolCallDelta,
				ToolCall: &ToolCallDelta{
					Index:          calls,
					ID:             fc.Get("id").String(),
					Name:           fc.Get("name").String(),
					ArgumentsDelta: args,
				},
			})
			calls++
		}
		return true
	})

	var reason FinishReason
	if fr := candidate.Get("finishReason").String(); fr != "" && fr != "FINISH_REASON_UNSPECIFIED" {
		reason = mapGeminiFinishReason(fr)
	}
	if ev, ok := metadataEvent(reason, usage); ok {
		events = append(events, ev)
	}
	return events
}

func mapGeminiFinishReason(reason string) FinishReason {
	switch reason {
	case "STOP":
		return FinishStop
	case "MAX_TOKENS":
		return FinishMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return FinishContentFilter
	case "MALFORMED_FUNCTION_CALL", "UNEXPECTED_TOOL_CALL":
		return FinishToolCalls
	default:
		return FinishUnknown
	}
}
