package testutil

import (
	"context"
	"polychat/model"
	"polychat/stream"
	"slices"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// MockProvider implements model.Provider for testing. Each Func field can be
// replaced; the defaults reply with a fixed text.
type MockProvider struct {
	ChatFunc          func(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error)
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error)
	ListModelsFunc    func(ctx context.Context) ([]model.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	mu           sync.Mutex
	currentModel string
	calls        [][]model.Message
}

// NewMockProvider creates a mock provider with default implementations.
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{currentModel: modelName}
	mock.ChatFunc = func(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
		return Reply(callback, TextEvents("Mock response")...)
	}
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
		return Reply(callback, TextEvents("Mock response with tools")...)
	}
	mock.ListModelsFunc = func(ctx context.Context) ([]model.ModelInfo, error) {
		return []model.ModelInfo{
			{Name: "mock-model-1", Size: 1000, Provider: "mock", InternalName: "mock-model-1"},
			{Name: "mock-model-2", Size: 2000, Provider: "mock", InternalName: "mock-model-2"},
		}, nil
	}
	mock.PingFunc = func(ctx context.Context) error { return nil }
	return mock
}

// Reply folds events the way a real provider does, forwarding each to
// callback.
func Reply(callback model.StreamCallback, events ...stream.Event) (*stream.Response, error) {
	var fn func(stream.Event) error
	if callback != nil {
		fn = callback
	}
	return stream.Collect(slices.Values(events), fn)
}

// TextEvents is a complete stream answering with text.
func TextEvents(text string) []stream.Event {
	return []stream.Event{
		{Type: stream.EventStart},
		{Type: stream.EventTextDelta, Text: text},
		{Type: stream.EventDone, FinishReason: stream.FinishStop},
	}
}

// ToolCallEvents is a complete stream requesting one tool call.
func ToolCallEvents(id, name, arguments string) []stream.Event {
	return []stream.Event{
		{Type: stream.EventStart},
		{Type: stream.EventToolCallDelta, ToolCall: &stream.ToolCallDelta{ID: id, Name: name, ArgumentsDelta: arguments}},
		{Type: stream.EventDone, FinishReason: stream.FinishToolCalls},
	}
}

func (m *MockProvider) record(messages []model.Message) {
	m.mu.Lock()
	m.calls = append(m.calls, slices.Clone(messages))
	m.mu.Unlock()
}

// Calls returns the messages of every chat request, in order.
func (m *MockProvider) Calls() [][]model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
	m.record(messages)
	return m.ChatFunc(ctx, messages, callback)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	m.record(messages)
	return m.ChatWithToolsFunc(ctx, messages, tools, callback)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

// GetDisplayName returns the same value as GetModel.
func (m *MockProvider) GetDisplayName() string {
	return m.GetModel()
}

func (m *MockProvider) SetModel(name string) {
	m.mu.Lock()
	m.currentModel = name
	m.mu.Unlock()
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
