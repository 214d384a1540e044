package window

import (
	"errors"
	"polychat/model"
	"slices"
	"strings"
	"testing"
	"time"
)

func next(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatal("update channel closed")
		}
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := New(nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{MaxTokens: 100}, false},
		{"reserved within budget", Config{MaxTokens: 100, ReservedTokens: 99}, false},
		{"zero max", Config{MaxTokens: 0}, true},
		{"negative reserved", Config{MaxTokens: 100, ReservedTokens: -1}, true},
		{"reserved equals max", Config{MaxTokens: 100, ReservedTokens: 100}, true},
		{"unknown policy", Config{MaxTokens: 100, Policy: "random"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}

	m := newManager(t, Config{MaxTokens: 100})
	if m.Config().Policy != PolicySlidingWindow {
		t.Errorf("default policy = %q", m.Config().Policy)
	}
	if m.Config().Estimator == nil {
		t.Error("default estimator not set")
	}
}

func TestSlidingWindowKeepsBudget(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 100, Estimator: fixedEstimator(15)})
	updates, stop := m.Subscribe()
	defer stop()

	var all []model.Message
	for i := range 5 {
		u, err := m.AppendUser("question")
		if err != nil {
			t.Fatal(err)
		}
		a, err := m.AppendAssistant("answer")
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, u, a)
		if got := m.EstimatedTokens(); got > 100 {
			t.Fatalf("after turn %d: %d tokens exceed budget", i, got)
		}
	}

	got := m.Conversation().Messages()
	if !slices.Equal(ids(got), ids(all[4:])) {
		t.Errorf("surviving messages = %v, want the last six", ids(got))
	}
	if m.EstimatedTokens() != 90 || m.AvailableBudget() != 10 {
		t.Errorf("EstimatedTokens() = %d, AvailableBudget() = %d", m.EstimatedTokens(), m.AvailableBudget())
	}

	// Seven appends precede the first truncation, which removes the
	// oldest user turn with its reply.
	var kinds []UpdateKind
	for range 12 {
		kinds = append(kinds, next(t, updates).Kind)
	}
	wantKinds := []UpdateKind{
		UpdateMessageAdded, UpdateMessageAdded, UpdateMessageAdded, UpdateMessageAdded,
		UpdateMessageAdded, UpdateMessageAdded, UpdateMessageAdded, UpdateMessageTruncated,
		UpdateMessageAdded, UpdateMessageAdded, UpdateMessageTruncated, UpdateMessageAdded,
	}
	if !slices.Equal(kinds, wantKinds) {
		t.Errorf("update kinds = %v\nwant %v", kinds, wantKinds)
	}
}

func TestSlidingWindowEvictsToolExchange(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 60, Estimator: fixedEstimator(15)})
	updates, stop := m.Subscribe()
	defer stop()

	u1, _ := m.AppendUser("weather?")
	a1, err := m.AppendAssistant("", model.ToolCall{ID: "call_1", Name: "weather", Arguments: `{"city":"Oslo"}`})
	if err != nil {
		t.Fatal(err)
	}
	t1, err := m.AppendToolResult("call_1", "sunny", false)
	if err != nil {
		t.Fatal(err)
	}
	m.AppendUser("thanks")
	m.AppendAssistant("you're welcome")

	for range 5 {
		next(t, updates)
	}
	u := next(t, updates)
	if u.Kind != UpdateMessageTruncated {
		t.Fatalf("got %s, want truncation", u.Kind)
	}
	want := []string{u1.ID, a1.ID, t1.ID}
	if !slices.Equal(u.MessageIDs, want) {
		t.Errorf("truncated %v, want %v", u.MessageIDs, want)
	}
	if u.MessageCount != 2 || u.EstimatedTokens != 30 {
		t.Errorf("update state = %d messages, %d tokens", u.MessageCount, u.EstimatedTokens)
	}
}

func TestTruncateOldestKeepsSystemMessages(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 30, Policy: PolicyTruncateOldest, Estimator: fixedEstimator(15)})

	sys, err := model.NewSystemMessage("rules")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AppendMessage(sys); err != nil {
		t.Fatal(err)
	}
	m.AppendUser("one")
	m.AppendAssistant("two")
	last, _ := m.AppendUser("three")

	got := ids(m.Conversation().Messages())
	if want := []string{sys.ID, last.ID}; !slices.Equal(got, want) {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 100, ReservedTokens: 20, Estimator: fixedEstimator(15)})
	for range 8 {
		if _, err := m.AppendUser("hi"); err != nil {
			t.Fatal(err)
		}
	}

	first := m.Prepare()
	before := m.Conversation().UpdatedAt()
	second := m.Prepare()

	if !slices.Equal(ids(first), ids(second)) {
		t.Errorf("second Prepare() changed the context: %v vs %v", ids(first), ids(second))
	}
	if !m.Conversation().UpdatedAt().Equal(before) {
		t.Error("second Prepare() mutated the conversation")
	}
	if m.EstimatedTokens() > 80 {
		t.Errorf("EstimatedTokens() = %d exceeds budget 80", m.EstimatedTokens())
	}
}

func TestSystemPromptOverflow(t *testing.T) {
	conv := model.NewConversation("a very long system prompt")
	m, err := New(conv, Config{MaxTokens: 10, Estimator: fixedEstimator(15)})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if _, err := m.AppendUser("hello"); err != nil {
		t.Fatalf("AppendUser() error = %v, want nil on unsatisfiable budget", err)
	}
	if m.Conversation().Len() != 0 {
		t.Errorf("history has %d messages, want 0", m.Conversation().Len())
	}
	prepared := m.Prepare()
	if len(prepared) != 1 || prepared[0].Role != model.RoleSystem {
		t.Errorf("Prepare() = %v, want only the system prompt", ids(prepared))
	}
	if !m.Overflow() {
		t.Error("Overflow() = false, want true")
	}
	if got := m.AvailableBudget(); got != -5 {
		t.Errorf("AvailableBudget() = %d, want -5", got)
	}
}

func TestAppendToolResultRequiresCall(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 1000})
	if _, err := m.AppendToolResult("missing", "x", false); !errors.Is(err, ErrUnknownToolCall) {
		t.Errorf("AppendToolResult() error = %v, want ErrUnknownToolCall", err)
	}
	if m.Conversation().Len() != 0 {
		t.Error("rejected tool result was stored")
	}

	if _, err := m.AppendAssistant("", model.ToolCall{ID: "c1", Name: "f", Arguments: "{}"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AppendToolResult("c1", "ok", false); err != nil {
		t.Errorf("AppendToolResult() error = %v", err)
	}
}

func TestRemoveClearReset(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 1000})
	updates, stop := m.Subscribe()
	defer stop()

	a, _ := m.AppendUser("a")
	b, _ := m.AppendUser("b")
	next(t, updates)
	next(t, updates)

	if !m.Remove(a.ID) {
		t.Fatal("Remove() = false for stored message")
	}
	if m.Remove("nope") {
		t.Error("Remove() = true for unknown id")
	}
	if u := next(t, updates); u.Kind != UpdateMessageRemoved || !slices.Equal(u.MessageIDs, []string{a.ID}) || u.MessageCount != 1 {
		t.Errorf("unexpected update %+v", u)
	}

	m.Clear()
	if u := next(t, updates); u.Kind != UpdateCleared || !slices.Equal(u.MessageIDs, []string{b.ID}) || u.MessageCount != 0 {
		t.Errorf("unexpected update %+v", u)
	}

	c, _ := m.AppendUser("c")
	next(t, updates)
	oldID := m.Conversation().ID()
	m.Reset("fresh prompt")
	u := next(t, updates)
	if u.Kind != UpdateReset || !slices.Equal(u.MessageIDs, []string{c.ID}) {
		t.Errorf("unexpected update %+v", u)
	}
	conv := m.Conversation()
	if conv.ID() == oldID || conv.SystemPrompt() != "fresh prompt" || conv.Len() != 0 {
		t.Errorf("Reset() left id=%s prompt=%q len=%d", conv.ID(), conv.SystemPrompt(), conv.Len())
	}
}

func weatherTurn(t *testing.T, m *Manager) {
	t.Helper()
	if _, err := m.AppendUser("What's the weather in Paris and Rome?"); err != nil {
		t.Fatal(err)
	}
	_, err := m.AppendAssistant("",
		model.ToolCall{ID: "c1", Name: "weather", Arguments: `{"city":"Paris"}`},
		model.ToolCall{ID: "c2", Name: "weather", Arguments: `{"city":"Rome"}`},
	)
	if err != nil {
		t.Fatal(err)
	}
}

func TestToolResultAfterExchangeEvicted(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 200})
	weatherTurn(t, m)
	updates, stop := m.Subscribe()
	defer stop()

	if _, err := m.AppendToolResult("c1", strings.Repeat("word ", 300), false); err != nil {
		t.Fatalf("first result: AppendToolResult() error = %v", err)
	}
	if m.Conversation().Len() != 0 {
		t.Fatalf("oversized result should evict the whole exchange, %d messages left", m.Conversation().Len())
	}

	second, err := m.AppendToolResult("c2", "22°C, sunny", false)
	if err != nil {
		t.Fatalf("second result: AppendToolResult() error = %v", err)
	}
	if m.Conversation().Len() != 0 {
		t.Error("result for an evicted call was stored")
	}
	if got := m.Evicted(); got != 4 {
		t.Errorf("Evicted() = %d, want 4", got)
	}

	next(t, updates) // first result added
	next(t, updates) // exchange truncated
	if u := next(t, updates); u.Kind != UpdateMessageAdded || u.MessageIDs[0] != second.ID {
		t.Errorf("got %+v, want message-added for the dropped result", u)
	}
	if u := next(t, updates); u.Kind != UpdateMessageTruncated || u.MessageIDs[0] != second.ID {
		t.Errorf("got %+v, want message-truncated for the dropped result", u)
	}

	if _, err := m.AppendToolResult("c9", "x", false); !errors.Is(err, ErrUnknownToolCall) {
		t.Errorf("unknown call: AppendToolResult() error = %v, want ErrUnknownToolCall", err)
	}
}

func TestAppendToolResultsEnforcesOnce(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 200})
	weatherTurn(t, m)

	msgs, err := m.AppendToolResults(
		model.ToolResult{ToolCallID: "c1", Content: strings.Repeat("word ", 300)},
		model.ToolResult{ToolCallID: "c2", Content: "city not found", IsError: true},
	)
	if err != nil {
		t.Fatalf("AppendToolResults() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if res, _ := msgs[1].ToolResult(); !res.IsError {
		t.Error("error flag lost")
	}
	if m.Conversation().Len() != 0 || m.Evicted() != 4 {
		t.Errorf("got %d messages and %d evicted, want the exchange evicted as one", m.Conversation().Len(), m.Evicted())
	}
}

func TestAppendToolResultsChecksEveryCall(t *testing.T) {
	m := newManager(t, Config{MaxTokens: 1000})
	weatherTurn(t, m)

	_, err := m.AppendToolResults(
		model.ToolResult{ToolCallID: "c1", Content: "18°C"},
		model.ToolResult{ToolCallID: "missing", Content: "x"},
	)
	if !errors.Is(err, ErrUnknownToolCall) {
		t.Fatalf("AppendToolResults() error = %v, want ErrUnknownToolCall", err)
	}
	if got := m.Conversation().Len(); got != 2 {
		t.Errorf("got %d messages, want none of the batch stored", got)
	}
}

func TestEvictedCountsSummarizedMessages(t *testing.T) {
	summarizer := SummarizerFunc(func([]model.Message) (string, error) { return "recap", nil })
	m := newManager(t, Config{MaxTokens: 100, Policy: PolicySummarize, Summarizer: summarizer, Estimator: lengthEstimator{}})

	for range 5 {
		if _, err := m.AppendUser(strings.Repeat("x", 20)); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.Evicted(); got != 2 {
		t.Errorf("Evicted() = %d, want the 2 messages the synopsis replaced", got)
	}
}
