package stream

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Dialect names a provider wire schema. OpenAI-compatible services
// (OpenRouter, vLLM, LM Studio) share the OpenAI dialect.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
	DialectGemini    Dialect = "gemini"
	DialectOllama    Dialect = "ollama"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{DialectOpenAI, DialectAnthropic, DialectGemini, DialectOllama}

// ParseDialect maps a provider or dialect name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "openrouter", "openai-compatible":
		return DialectOpenAI, nil
	case "anthropic", "claude":
		return DialectAnthropic, nil
	case "gemini", "google":
		return DialectGemini, nil
	case "ollama":
		return DialectOllama, nil
	default:
		return "", fmt.Errorf("unknown stream dialect: %q", name)
	}
}

// Payload applies the dialect's framing rule to one complete line. It returns
// the payload and true for actionable lines. Blank lines, SSE comments, event:
// and id: fields and empty data fields are not actionable.
func (d Dialect) Payload(line string) (string, bool) {
	if d == DialectOllama {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			return "", false
		}
		return trimmed, true
	}

	rest, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	rest = strings.TrimPrefix(rest, " ")
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}

// Decode converts one payload into unified events. It never returns an error:
// a payload that cannot be parsed yields exactly one error event wrapping
// ErrMalformedChunk. Decode holds no state between calls.
func (d Dialect) Decode(payload string) []Event {
	switch d {
	case DialectOpenAI:
		return decodeOpenAI(payload)
	case DialectAnthropic:
		return decodeAnthropic(payload)
	case DialectGemini:
		return decodeGemini(payload)
	case DialectOllama:
		return decodeOllama(payload)
	default:
		return []Event{errorEvent(fmt.Errorf("unknown stream dialect: %q", d))}
	}
}

// parseObject validates payload as a JSON object.
func (d Dialect) parseObject(payload string) (gjson.Result, []Event) {
	if !gjson.Valid(payload) {
		return gjson.Result{}, []Event{d.malformed(payload)}
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return gjson.Result{}, []Event{d.malformed(payload)}
	}
	return root, nil
}

func (d Dialect) malformed(payload string) Event {
	return errorEvent(&ChunkError{Dialect: d, Line: payload, Err: ErrMalformedChunk})
}

// providerError extracts an in-stream error object. Providers use both
// {"error": {"type": ..., "message": ...}} and {"error": "text"}.
func (d Dialect) providerError(root gjson.Result) (Event, bool) {
	e := root.Get("error")
	if !e.Exists() || e.Type == gjson.Null {
		return Event{}, false
	}
	if e.IsObject() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Raw
		}
		kind := e.Get("type").String()
		if kind == "" {
			kind = e.Get("status").String()
		}
		return errorEvent(&ProviderError{Dialect: d, Type: kind, Message: msg}), true
	}
	return errorEvent(&ProviderError{Dialect: d, Message: e.String()}), true
}

func metadataEvent(reason FinishReason, usage *Usage) (Event, bool) {
	if reason == "" && usage == nil {
		return Event{}, false
	}
	return Event{Type: EventMetadata, FinishReason: reason, Usage: usage}, true
}

// usageFrom builds a Usage from the given JSON paths, or nil when none of
// them is present. An empty cached path means the dialect does not report it.
func usageFrom(obj gjson.Result, prompt, completion, cached string) *Usage {
	if !obj.Exists() || obj.Type == gjson.Null {
		return nil
	}
	p, c := obj.Get(prompt), obj.Get(completion)
	var k gjson.Result
	if cached != "" {
		k = obj.Get(cached)
	}
	if !p.Exists() && !c.Exists() && !k.Exists() {
		return nil
	}
	return &Usage{
		PromptTokens:     int(p.Int()),
		CompletionTokens: int(c.Int()),
		CachedTokens:     int(k.Int()),
	}
}
