package main

import (
	"context"
	"fmt"
	"io"
	"polychat/config"
	"polychat/mcp"
	"polychat/model"
	"polychat/provider"
	"polychat/render"
	"polychat/stream"
	"polychat/window"
)

// maxToolRounds bounds how many times one prompt may loop through tool calls.
const maxToolRounds = 8

// toolCaller executes namespaced tool calls; *mcp.Registry in production.
type toolCaller interface {
	Call(ctx context.Context, name, arguments string) (mcp.Result, error)
}

type turn struct {
	provider model.Provider
	window   *window.Manager
	tools    []mcp.Tool
	caller   toolCaller
	prompt   string
	// live prints text deltas as they arrive.
	live bool
	out  io.Writer
}

type turnResult struct {
	text    string
	usage   *stream.Usage
	rounds  int
	evicted int
}

// runTurn appends the prompt, streams the reply and runs any tool calls the
// model makes, feeding results back until it answers in text.
func runTurn(ctx context.Context, t turn) (result turnResult, err error) {
	evictedBefore := t.window.Evicted()
	defer func() { result.evicted = t.window.Evicted() - evictedBefore }()

	if _, err := t.window.AppendUser(t.prompt); err != nil {
		return result, fmt.Errorf("failed to append prompt: %w", err)
	}

	tools := t.tools
	if t.caller == nil {
		tools = nil
	}

	for result.rounds < maxToolRounds {
		result.rounds++

		resp, err := t.provider.ChatWithTools(ctx, t.window.Prepare(), tools, func(ev stream.Event) error {
			if t.live && ev.Type == stream.EventTextDelta {
				_, err := io.WriteString(t.out, ev.Text)
				return err
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("chat failed: %w", err)
		}
		if t.live && resp.Text != "" {
			fmt.Fprintln(t.out)
		}
		if resp.Usage != (stream.Usage{}) {
			result.usage = addUsage(result.usage, resp.Usage)
		}

		msg, err := provider.ToResponseMessage(resp)
		if err != nil {
			return result, fmt.Errorf("failed to build reply: %w", err)
		}
		if err := t.window.AppendMessage(msg); err != nil {
			return result, fmt.Errorf("failed to append reply: %w", err)
		}
		result.text = resp.Text

		if len(resp.ToolCalls) == 0 {
			break
		}
		calls := msg.ToolCalls()
		results := make([]model.ToolResult, 0, len(calls))
		for _, call := range calls {
			content, isErr := t.callTool(ctx, call)
			results = append(results, model.ToolResult{ToolCallID: call.ID, Content: content, IsError: isErr})
		}
		if _, err := t.window.AppendToolResults(results...); err != nil {
			return result, fmt.Errorf("failed to append tool results: %w", err)
		}
	}

	return result, nil
}

func (t turn) callTool(ctx context.Context, call model.ToolCall) (string, bool) {
	if t.live {
		fmt.Fprintln(t.out, render.DimStyle.Render(fmt.Sprintf("[calling %s %s]", call.Name, call.Arguments)))
	}
	res, err := t.caller.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Main] tool %s failed: %v", call.Name, err)
		}
		return err.Error(), true
	}
	return res.Content, res.IsError
}

func addUsage(total *stream.Usage, u stream.Usage) *stream.Usage {
	if total == nil {
		total = &stream.Usage{}
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.CachedTokens += u.CachedTokens
	return total
}
