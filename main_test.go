package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"polychat/config"
	"polychat/mcp"
	"polychat/model"
	"polychat/provider/testutil"
	"polychat/storage"
	"polychat/stream"
	"polychat/window"
	"strings"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

type fakeCaller struct {
	calls   []string
	results map[string]mcp.Result
	err     error
}

func (f *fakeCaller) Call(ctx context.Context, name, arguments string) (mcp.Result, error) {
	f.calls = append(f.calls, name+" "+arguments)
	if f.err != nil {
		return mcp.Result{}, f.err
	}
	return f.results[name], nil
}

func newWindow(t *testing.T, maxTokens int) *window.Manager {
	t.Helper()
	mgr, err := window.New(model.NewConversation("be brief"), window.Config{MaxTokens: maxTokens})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func TestRunTurnText(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		if tools != nil {
			t.Errorf("tools = %v, want none without a caller", tools)
		}
		return testutil.Reply(callback,
			stream.Event{Type: stream.EventStart},
			stream.Event{Type: stream.EventTextDelta, Text: "Hel"},
			stream.Event{Type: stream.EventTextDelta, Text: "lo"},
			stream.Event{Type: stream.EventDone, FinishReason: stream.FinishStop, Usage: &stream.Usage{PromptTokens: 5, CompletionTokens: 2}},
		)
	}

	var out bytes.Buffer
	mgr := newWindow(t, 4096)
	result, err := runTurn(context.Background(), turn{
		provider: mock,
		window:   mgr,
		tools:    testutil.TestMCPTools(),
		prompt:   "hi",
		live:     true,
		out:      &out,
	})
	if err != nil {
		t.Fatalf("runTurn() error = %v", err)
	}

	if out.String() != "Hello\n" {
		t.Errorf("output = %q", out.String())
	}
	if result.text != "Hello" || result.rounds != 1 || result.usage == nil || result.usage.Total() != 7 {
		t.Errorf("result = %+v", result)
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0][0].Role != model.RoleSystem || calls[0][1].Text() != "hi" {
		t.Errorf("request = %+v", calls)
	}
	msgs := mgr.Conversation().Messages()
	if len(msgs) != 2 || msgs[1].Role != model.RoleAssistant || msgs[1].Text() != "Hello" {
		t.Errorf("conversation = %+v", msgs)
	}
}

func TestRunTurnToolLoop(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	round := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		round++
		if round == 1 {
			return testutil.Reply(callback, testutil.ToolCallEvents("call_1", "weather__get_weather", `{"location":"Paris"}`)...)
		}
		last := messages[len(messages)-1]
		if res, ok := last.ToolResult(); !ok || res.Content != "18°C" || res.ToolCallID != "call_1" {
			t.Errorf("last message = %+v, want the tool result", last)
		}
		return testutil.Reply(callback, testutil.TextEvents("It is 18°C in Paris.")...)
	}
	caller := &fakeCaller{results: map[string]mcp.Result{"weather__get_weather": {Content: "18°C"}}}

	mgr := newWindow(t, 4096)
	result, err := runTurn(context.Background(), turn{
		provider: mock,
		window:   mgr,
		tools:    testutil.TestMCPTools(),
		caller:   caller,
		prompt:   "weather in Paris?",
		out:      &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("runTurn() error = %v", err)
	}

	if result.rounds != 2 || result.text != "It is 18°C in Paris." {
		t.Errorf("result = %+v", result)
	}
	if len(caller.calls) != 1 || caller.calls[0] != `weather__get_weather {"location":"Paris"}` {
		t.Errorf("tool calls = %v", caller.calls)
	}
	roles := []model.Role{}
	for _, m := range mgr.Conversation().Messages() {
		roles = append(roles, m.Role)
	}
	want := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("roles = %v, want %v", roles, want)
			break
		}
	}
}

func TestRunTurnToolFailureIsReported(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	round := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		round++
		if round == 1 {
			return testutil.Reply(callback, testutil.ToolCallEvents("call_9", "files__read", `{}`)...)
		}
		return testutil.Reply(callback, testutil.TextEvents("sorry")...)
	}
	caller := &fakeCaller{err: errors.New("no tool server named \"files\"")}

	mgr := newWindow(t, 4096)
	if _, err := runTurn(context.Background(), turn{provider: mock, window: mgr, caller: caller, prompt: "read it", out: &bytes.Buffer{}}); err != nil {
		t.Fatalf("runTurn() error = %v", err)
	}

	res, ok := mgr.Conversation().Messages()[2].ToolResult()
	if !ok || !res.IsError || !strings.Contains(res.Content, "files") {
		t.Errorf("tool result = %+v", res)
	}
}

func TestRunTurnStopsAfterMaxRounds(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	n := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		n++
		return testutil.Reply(callback, testutil.ToolCallEvents("call_"+string(rune('a'+n)), "loop__again", `{}`)...)
	}
	caller := &fakeCaller{results: map[string]mcp.Result{"loop__again": {Content: "again"}}}

	result, err := runTurn(context.Background(), turn{provider: mock, window: newWindow(t, 100000), caller: caller, prompt: "go", out: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("runTurn() error = %v", err)
	}
	if result.rounds != maxToolRounds || n != maxToolRounds {
		t.Errorf("rounds = %d, provider calls = %d, want %d", result.rounds, n, maxToolRounds)
	}
}

func TestRunTurnChatError(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		return nil, errors.New("connection refused")
	}
	mgr := newWindow(t, 4096)

	_, err := runTurn(context.Background(), turn{provider: mock, window: mgr, prompt: "hello", out: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("runTurn() error = %v", err)
	}
	// The prompt stays in the conversation so it can be saved.
	if mgr.Conversation().Len() != 1 {
		t.Errorf("Len() = %d, want 1", mgr.Conversation().Len())
	}
}

func TestRunTurnCountsEvictions(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		return testutil.Reply(callback, testutil.TextEvents(strings.Repeat("answer ", 20))...)
	}

	mgr := newWindow(t, 120)
	var total int
	for i := 0; i < 4; i++ {
		result, err := runTurn(context.Background(), turn{provider: mock, window: mgr, prompt: strings.Repeat("question ", 20), out: &bytes.Buffer{}})
		if err != nil {
			t.Fatal(err)
		}
		total += result.evicted
	}
	if total == 0 {
		t.Error("no evictions reported for a conversation over budget")
	}
	if mgr.EstimatedTokens() > mgr.Config().Budget() && !mgr.Overflow() {
		t.Error("over budget without overflow")
	}
}

func TestRunTurnParallelCallsUnderBudgetPressure(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	round := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		round++
		if round == 1 {
			return testutil.Reply(callback,
				stream.Event{Type: stream.EventStart},
				stream.Event{Type: stream.EventToolCallDelta, ToolCall: &stream.ToolCallDelta{Index: 0, ID: "call_1", Name: "weather__get_weather", ArgumentsDelta: `{"location":"Paris"}`}},
				stream.Event{Type: stream.EventToolCallDelta, ToolCall: &stream.ToolCallDelta{Index: 1, ID: "call_2", Name: "weather__get_forecast", ArgumentsDelta: `{"location":"Rome"}`}},
				stream.Event{Type: stream.EventDone, FinishReason: stream.FinishToolCalls},
			)
		}
		return testutil.Reply(callback, testutil.TextEvents("Paris is cloudy.")...)
	}
	caller := &fakeCaller{results: map[string]mcp.Result{
		"weather__get_weather":  {Content: strings.Repeat("word ", 300)},
		"weather__get_forecast": {Content: "sunny"},
	}}

	mgr := newWindow(t, 200)
	result, err := runTurn(context.Background(), turn{
		provider: mock,
		window:   mgr,
		tools:    testutil.TestMCPTools(),
		caller:   caller,
		prompt:   "weather in Paris and Rome?",
		out:      &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("runTurn() error = %v", err)
	}
	if result.rounds != 2 || len(caller.calls) != 2 {
		t.Errorf("rounds = %d, tool calls = %v", result.rounds, caller.calls)
	}
	if result.evicted != 4 {
		t.Errorf("evicted = %d, want the whole tool exchange (4)", result.evicted)
	}
}

func TestRunTurnCountsSummarizedMessages(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		return testutil.Reply(callback, testutil.TextEvents(strings.Repeat("answer ", 20))...)
	}
	summarizer := window.SummarizerFunc(func([]model.Message) (string, error) { return "recap", nil })
	mgr, err := window.New(nil, window.Config{MaxTokens: 150, Policy: window.PolicySummarize, Summarizer: summarizer})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)

	var total int
	for i := 0; i < 4; i++ {
		before := mgr.Evicted()
		result, err := runTurn(context.Background(), turn{provider: mock, window: mgr, prompt: strings.Repeat("question ", 20), out: &bytes.Buffer{}})
		if err != nil {
			t.Fatal(err)
		}
		if result.evicted != mgr.Evicted()-before {
			t.Errorf("turn %d: evicted = %d, manager evicted %d", i, result.evicted, mgr.Evicted()-before)
		}
		total += result.evicted
	}
	if total == 0 {
		t.Error("no evictions reported")
	}
}

func TestParseFlags(t *testing.T) {
	opts, args, err := parseFlags([]string{"-p", "openai", "--model", "gpt-4o", "--session", "last", "--budget", "2048", "--render", "tell", "me"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.provider != "openai" || opts.model != "gpt-4o" || opts.session != "last" || opts.budget != 2048 || !opts.render {
		t.Errorf("opts = %+v", opts)
	}
	if strings.Join(args, " ") != "tell me" {
		t.Errorf("args = %v", args)
	}

	if _, _, err := parseFlags([]string{"--nope"}); err == nil {
		t.Error("parseFlags(--nope) succeeded, want error")
	}
}

func TestWindowConfig(t *testing.T) {
	cfg := &config.Config{Context: config.ContextConfig{MaxTokens: 8192, ReservedTokens: 1024, Policy: "summarize"}}
	mock := testutil.NewMockProvider("mock")

	wc := windowConfig(cfg, &options{budget: 512}, mock)
	if wc.MaxTokens != 512 || wc.ReservedTokens != 64 {
		t.Errorf("budget override = %d/%d, want 512/64", wc.MaxTokens, wc.ReservedTokens)
	}
	if wc.Summarizer == nil {
		t.Error("summarize policy has no summarizer")
	}

	cfg.Context.Policy = "truncate-oldest"
	if wc := windowConfig(cfg, &options{}, mock); wc.Summarizer != nil || wc.MaxTokens != 8192 {
		t.Errorf("windowConfig() = %+v", wc)
	}
}

func TestOpenConversation(t *testing.T) {
	dataDir := t.TempDir()
	cfg := &config.Config{DataDirectory: dataDir, DefaultSystemPrompt: "default prompt"}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	fresh, err := openConversation(store, cfg, &options{})
	if err != nil || fresh.SystemPrompt() != "default prompt" {
		t.Fatalf("new conversation = %v, %v", fresh, err)
	}
	msg, _ := model.NewUserMessage("remember me")
	fresh.Append(msg)
	if err := store.Save(fresh); err != nil {
		t.Fatal(err)
	}
	if err := storage.SaveCurrentID(dataDir, fresh.ID()); err != nil {
		t.Fatal(err)
	}

	resumed, err := openConversation(store, cfg, &options{session: "last", system: "new prompt"})
	if err != nil {
		t.Fatalf("resume last error = %v", err)
	}
	if resumed.ID() != fresh.ID() || resumed.Len() != 1 || resumed.SystemPrompt() != "new prompt" {
		t.Errorf("resumed = %s len %d prompt %q", resumed.ID(), resumed.Len(), resumed.SystemPrompt())
	}

	if _, err := openConversation(store, cfg, &options{session: "unknown"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown session error = %v", err)
	}
}

func TestPrintModels(t *testing.T) {
	models := []model.ModelInfo{
		{Name: "llama3.1:latest", Size: 4_900_000_000},
		{Name: "qwen2.5:7b"},
	}
	var out bytes.Buffer
	printModels(&out, models, "qwen2.5:7b")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.Contains(lines[0], "4.9 GB") || strings.Contains(lines[0], "* ") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "* qwen2.5:7b") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestApplySettings(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dataDir := t.TempDir()

	err := applySettings(dataDir, []string{"openai.enabled=true", "openai.model=gpt-4o", "data_directory=~/chats"})
	if err != nil {
		t.Fatalf("applySettings() error = %v", err)
	}

	userCfg, err := config.LoadUserConfig(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, p := range userCfg.Providers {
		if p.ID == "openai" {
			found = true
			if !p.Enabled || p.Model != "gpt-4o" {
				t.Errorf("openai = %+v", p)
			}
		}
	}
	if !found {
		t.Error("openai entry not saved")
	}

	sys, err := config.LoadSystemConfig()
	if err != nil || sys.DataDirectory != "~/chats" {
		t.Errorf("system config = %+v, %v", sys, err)
	}

	for _, bad := range []string{"novalue", "nodot=1", "openai.color=red"} {
		if err := applySettings(dataDir, []string{bad}); err == nil {
			t.Errorf("applySettings(%q) succeeded, want error", bad)
		}
	}
}

func TestExport(t *testing.T) {
	dataDir := t.TempDir()
	cfg := &config.Config{DataDirectory: dataDir}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := model.NewConversation("")
	msg, _ := model.NewUserMessage("export me")
	c.Append(msg)
	if err := store.Save(c); err != nil {
		t.Fatal(err)
	}

	path := t.TempDir() + "/out.json"
	if err := export(store, cfg, &options{session: c.ID(), export: path}); err != nil {
		t.Fatalf("export() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if restored, err := model.FromJSON(data); err != nil || restored.ID() != c.ID() {
		t.Errorf("exported = %v, %v", restored, err)
	}

	if err := export(store, cfg, &options{export: "auto"}); err == nil {
		t.Error("export() without --session succeeded")
	}
}

func TestSearchOutput(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := model.NewConversation("")
	msg, _ := model.NewUserMessage("how do goroutines work")
	c.Append(msg)
	if err := store.Save(c); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := search(&out, storage.NewSearchIndex(store), "goroutines"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), c.ID()) || !strings.Contains(out.String(), "how do goroutines work") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	search(&out, storage.NewSearchIndex(store), "zzzz")
	if !strings.Contains(out.String(), "no matches") {
		t.Errorf("output = %q", out.String())
	}
}
