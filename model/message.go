package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one immutable entry of a conversation. Use the With* methods to
// derive modified copies.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Parts     []Part            `json:"parts"`
	Name      string            `json:"name,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage builds and validates a message. It fails with an error wrapping
// ErrInvalidContent when the parts do not fit the role.
func NewMessage(role Role, parts ...Part) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     slices.Clone(parts),
		CreatedAt: time.Now(),
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func NewSystemMessage(text string) (Message, error) {
	return NewMessage(RoleSystem, TextPart(text))
}

func NewUserMessage(text string) (Message, error) {
	return NewMessage(RoleUser, TextPart(text))
}

// NewAssistantMessage builds an assistant reply. The text part is omitted
// when text is empty and the reply consists only of tool calls.
func NewAssistantMessage(text string, toolCalls ...ToolCall) (Message, error) {
	parts := make([]Part, 0, len(toolCalls)+1)
	if text != "" || len(toolCalls) == 0 {
		parts = append(parts, TextPart(text))
	}
	for _, tc := range toolCalls {
		parts = append(parts, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	return NewMessage(RoleAssistant, parts...)
}

func NewToolMessage(toolCallID, content string, isError bool) (Message, error) {
	return NewMessage(RoleTool, ToolResultPart(toolCallID, content, isError))
}

// Validate checks every part and the role/part pairing rules.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidContent, m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("%w: %s message has no content", ErrInvalidContent, m.Role)
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}

	switch m.Role {
	case RoleSystem:
		if len(m.Parts) != 1 || m.Parts[0].Type != PartText {
			return fmt.Errorf("%w: system message must be a single text part", ErrInvalidContent)
		}
	case RoleTool:
		if len(m.Parts) != 1 || m.Parts[0].Type != PartToolResult {
			return fmt.Errorf("%w: tool message must be a single tool result part", ErrInvalidContent)
		}
	case RoleUser:
		for _, p := range m.Parts {
			if p.Type == PartToolCall || p.Type == PartToolResult {
				return fmt.Errorf("%w: user message cannot carry %s parts", ErrInvalidContent, p.Type)
			}
		}
	case RoleAssistant:
		for _, p := range m.Parts {
			if p.Type == PartToolResult {
				return fmt.Errorf("%w: assistant message cannot carry tool results", ErrInvalidContent)
			}
		}
	}
	return nil
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls an assistant message requested.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Type == PartToolCall && p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// ToolResult returns the result carried by a tool message.
func (m Message) ToolResult() (ToolResult, bool) {
	for _, p := range m.Parts {
		if p.Type == PartToolResult && p.ToolResult != nil {
			return *p.ToolResult, true
		}
	}
	return ToolResult{}, false
}

// HasMedia reports whether any part is an image, audio clip or document.
func (m Message) HasMedia() bool {
	return slices.ContainsFunc(m.Parts, func(p Part) bool { return p.Type.IsMedia() })
}

func (m Message) WithName(name string) Message {
	m.Name = name
	return m
}

func (m Message) WithMetadata(key, value string) Message {
	md := maps.Clone(m.Metadata)
	if md == nil {
		md = make(map[string]string, 1)
	}
	md[key] = value
	m.Metadata = md
	return m
}

// WithParts returns a copy with different content. The copy is validated.
func (m Message) WithParts(parts ...Part) (Message, error) {
	m.Parts = slices.Clone(parts)
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
