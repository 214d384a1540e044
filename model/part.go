package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidContent is wrapped by every validation failure of a part or message.
var ErrInvalidContent = errors.New("invalid content")

// PartType discriminates the payload a Part carries.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartAudio      PartType = "audio"
	PartDocument   PartType = "document"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// IsMedia reports whether the part type carries a Media payload.
func (t PartType) IsMedia() bool {
	return t == PartImage || t == PartAudio || t == PartDocument
}

// Media is an image, audio clip or document, referenced by URL or inlined as
// base64 data. Exactly one of URL and Data is set.
type Media struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	// Detail is a resolution hint for images ("low", "high", "auto").
	Detail string `json:"detail,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ToolCall is a function invocation requested by the assistant.
// Arguments holds the raw JSON the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args decodes Arguments into a map. Unparseable arguments yield an empty map.
func (tc ToolCall) Args() map[string]any {
	args := make(map[string]any)
	if tc.Arguments == "" {
		return args
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

// ToolResult is the output of a tool call, sent back in a tool message.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Part is one piece of message content. Type selects which payload field
// is meaningful; the others are empty.
type Part struct {
	Type       PartType    `json:"type"`
	Text       string      `json:"text,omitempty"`
	Media      *Media      `json:"media,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImageURL(url, detail string) Part {
	return Part{Type: PartImage, Media: &Media{URL: url, Detail: detail}}
}

func ImageData(data, mimeType, detail string) Part {
	return Part{Type: PartImage, Media: &Media{Data: data, MIMEType: mimeType, Detail: detail}}
}

func AudioData(data, mimeType string) Part {
	return Part{Type: PartAudio, Media: &Media{Data: data, MIMEType: mimeType}}
}

func DocumentURL(url, name string) Part {
	return Part{Type: PartDocument, Media: &Media{URL: url, Name: name}}
}

func DocumentData(data, mimeType, name string) Part {
	return Part{Type: PartDocument, Media: &Media{Data: data, MIMEType: mimeType, Name: name}}
}

func ToolCallPart(id, name, arguments string) Part {
	return Part{Type: PartToolCall, ToolCall: &ToolCall{ID: id, Name: name, Arguments: arguments}}
}

func ToolResultPart(toolCallID, content string, isError bool) Part {
	return Part{Type: PartToolResult, ToolResult: &ToolResult{ToolCallID: toolCallID, Content: content, IsError: isError}}
}

// Validate checks the part's payload against its type.
func (p Part) Validate() error {
	switch {
	case p.Type == PartText:
		return nil

	case p.Type.IsMedia():
		if p.Media == nil {
			return fmt.Errorf("%w: %s part has no media", ErrInvalidContent, p.Type)
		}
		hasURL, hasData := p.Media.URL != "", p.Media.Data != ""
		if hasURL == hasData {
			return fmt.Errorf("%w: %s part needs exactly one of url or data", ErrInvalidContent, p.Type)
		}
		if hasData && p.Media.MIMEType == "" {
			return fmt.Errorf("%w: inline %s data needs a mime type", ErrInvalidContent, p.Type)
		}
		return nil

	case p.Type == PartToolCall:
		if p.ToolCall == nil || p.ToolCall.ID == "" || p.ToolCall.Name == "" {
			return fmt.Errorf("%w: tool call needs an id and a name", ErrInvalidContent)
		}
		return nil

	case p.Type == PartToolResult:
		if p.ToolResult == nil || p.ToolResult.ToolCallID == "" {
			return fmt.Errorf("%w: tool result must reference a tool call id", ErrInvalidContent)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown part type %q", ErrInvalidContent, p.Type)
	}
}
