package model

import (
	"errors"
	"testing"
)

func TestNewMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		parts   []Part
		wantErr bool
	}{
		{"user text", RoleUser, []Part{TextPart("hi")}, false},
		{"user text and image url", RoleUser, []Part{TextPart("look"), ImageURL("https://x/y.png", "high")}, false},
		{"user inline image", RoleUser, []Part{ImageData("aGVsbG8=", "image/png", "")}, false},
		{"user inline audio", RoleUser, []Part{AudioData("aGVsbG8=", "audio/wav")}, false},
		{"user document url", RoleUser, []Part{DocumentURL("https://x/doc.pdf", "doc.pdf")}, false},
		{"assistant tool call", RoleAssistant, []Part{ToolCallPart("c1", "f", "{}")}, false},
		{"tool result", RoleTool, []Part{ToolResultPart("c1", "ok", false)}, false},
		{"system text", RoleSystem, []Part{TextPart("be brief")}, false},

		{"unknown role", Role("robot"), []Part{TextPart("hi")}, true},
		{"no parts", RoleUser, nil, true},
		{"media with neither url nor data", RoleUser, []Part{{Type: PartImage, Media: &Media{}}}, true},
		{"media with both url and data", RoleUser, []Part{{Type: PartImage, Media: &Media{URL: "u", Data: "d", MIMEType: "image/png"}}}, true},
		{"media without payload", RoleUser, []Part{{Type: PartAudio}}, true},
		{"inline data without mime type", RoleUser, []Part{ImageData("aGVsbG8=", "", "")}, true},
		{"unknown part type", RoleUser, []Part{{Type: "video"}}, true},
		{"tool result without call id", RoleTool, []Part{ToolResultPart("", "ok", false)}, true},
		{"tool call without name", RoleAssistant, []Part{ToolCallPart("c1", "", "{}")}, true},
		{"system with two parts", RoleSystem, []Part{TextPart("a"), TextPart("b")}, true},
		{"system with image", RoleSystem, []Part{ImageURL("https://x/y.png", "")}, true},
		{"tool message with text", RoleTool, []Part{TextPart("ok")}, true},
		{"user with tool call", RoleUser, []Part{ToolCallPart("c1", "f", "{}")}, true},
		{"assistant with tool result", RoleAssistant, []Part{ToolResultPart("c1", "ok", false)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.role, tt.parts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidContent) {
					t.Errorf("error %v does not wrap ErrInvalidContent", err)
				}
				return
			}
			if msg.ID == "" || msg.CreatedAt.IsZero() {
				t.Errorf("message missing id or timestamp: %+v", msg)
			}
		})
	}
}

func TestNewMessageCopiesParts(t *testing.T) {
	parts := []Part{TextPart("original")}
	msg, err := NewMessage(RoleUser, parts...)
	if err != nil {
		t.Fatal(err)
	}
	parts[0] = TextPart("changed")
	if got := msg.Text(); got != "original" {
		t.Errorf("Text() = %q after caller mutated its slice", got)
	}
}

func TestMessageHelpers(t *testing.T) {
	asst, err := NewAssistantMessage("", ToolCall{ID: "c1", Name: "search", Arguments: `{"q":"go"}`})
	if err != nil {
		t.Fatal(err)
	}
	if len(asst.Parts) != 1 {
		t.Errorf("tool-only reply has %d parts, want 1", len(asst.Parts))
	}
	calls := asst.ToolCalls()
	if len(calls) != 1 || calls[0].Args()["q"] != "go" {
		t.Errorf("ToolCalls() = %+v", calls)
	}

	empty, err := NewAssistantMessage("")
	if err != nil {
		t.Fatalf("empty assistant reply rejected: %v", err)
	}
	if empty.Text() != "" {
		t.Errorf("Text() = %q", empty.Text())
	}

	tool, err := NewToolMessage("c1", "42", true)
	if err != nil {
		t.Fatal(err)
	}
	res, ok := tool.ToolResult()
	if !ok || res.ToolCallID != "c1" || !res.IsError {
		t.Errorf("ToolResult() = %+v, %v", res, ok)
	}

	named := asst.WithName("planner").WithMetadata("k", "v")
	if asst.Name != "" || asst.Metadata != nil {
		t.Error("With* mutated the receiver")
	}
	if named.Name != "planner" || named.Metadata["k"] != "v" || named.ID != asst.ID {
		t.Errorf("derived message = %+v", named)
	}

	if _, err := asst.WithParts(ToolResultPart("c1", "x", false)); err == nil {
		t.Error("WithParts accepted a tool result on an assistant message")
	}
}

func TestToolCallArgs(t *testing.T) {
	tests := []struct {
		name string
		args string
		want int
	}{
		{"valid", `{"a":1,"b":"x"}`, 2},
		{"empty", "", 0},
		{"invalid", `{"a":`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (ToolCall{Arguments: tt.args}).Args(); len(got) != tt.want {
				t.Errorf("Args() = %v, want %d keys", got, tt.want)
			}
		})
	}
}
