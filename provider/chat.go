package provider

import (
	"context"
	"fmt"
	"polychat/config"
	"polychat/model"
	"polychat/stream"
	"polychat/transport"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// streamChat posts one request and folds the normalized stream. On failure
// the partial response is returned together with the error.
func streamChat(ctx context.Context, tc *transport.Client, dialect stream.Dialect, req transport.Request, callback model.StreamCallback) (*stream.Response, error) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s request to %s", dialect, req.URL)
	}

	var fn func(stream.Event) error
	if callback != nil {
		fn = callback
	}
	resp, err := stream.Collect(stream.Normalize(dialect, tc.Stream(ctx, req)), fn)
	fillToolCallIDs(resp)

	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] %s stream failed: %v", dialect, err)
		}
		return resp, err
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s stream finished: %s, %d chars, %d tool calls, %d tokens",
			dialect, resp.FinishReason, len(resp.Text), len(resp.ToolCalls), resp.Usage.Total())
	}
	return resp, nil
}

// fillToolCallIDs assigns ids to tool calls the provider left unnamed
// (Gemini never sends them) so results can reference them.
func fillToolCallIDs(resp *stream.Response) {
	if resp == nil {
		return
	}
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ID == "" {
			resp.ToolCalls[i].ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
		}
	}
}

// withStreaming marks a marshalled request body as streamed. Each pair is a
// gjson-style path and the value to set.
func withStreaming(body []byte, pairs ...any) ([]byte, error) {
	out, err := sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("failed to set stream flag: %w", err)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		path, _ := pairs[i].(string)
		if out, err = sjson.SetBytes(out, path, pairs[i+1]); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return out, nil
}

// ToResponseMessage turns a folded response into the assistant message to
// store in the conversation.
func ToResponseMessage(resp *stream.Response) (model.Message, error) {
	calls := make([]model.ToolCall, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		args := tc.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		calls[i] = model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args}
	}
	return model.NewAssistantMessage(resp.Text, calls...)
}
