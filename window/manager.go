// Package window keeps a conversation's materialized context within a token
// budget.
//
// A Manager wraps one model.Conversation. Every append is followed by an
// enforcement pass: while the estimated size of the system prompt plus the
// history exceeds MaxTokens-ReservedTokens, the configured Policy evicts from
// the front of the history. The system prompt itself is never evicted, so a
// prompt that alone exceeds the budget leaves the context over budget; the
// manager tolerates this and reports it through Overflow.
//
// Changes are published on a feed (see Subscribe) in mutation order. An
// append's message-added update always precedes the truncations it causes.
package window

import (
	"errors"
	"fmt"
	"polychat/config"
	"polychat/model"
	"polychat/tokens"
	"slices"
	"sync"
	"time"
)

var (
	// ErrInvalidConfig is returned by New for an unusable budget or policy.
	ErrInvalidConfig = errors.New("invalid context window config")
	// ErrUnknownToolCall is returned when a tool result answers no stored call.
	ErrUnknownToolCall = errors.New("no tool call with this id")
)

// Config defines the budget and eviction behavior of a Manager.
type Config struct {
	MaxTokens      int
	ReservedTokens int
	Policy         Policy
	// Summarizer backs PolicySummarize. When nil, summarize evictions fall
	// back to truncate-oldest.
	Summarizer Summarizer
	// Estimator defaults to tokens.Default.
	Estimator tokens.Estimator
}

// Budget returns the token ceiling the materialized context must fit under.
func (c Config) Budget() int {
	return c.MaxTokens - c.ReservedTokens
}

func (c Config) validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	if c.ReservedTokens < 0 || c.ReservedTokens >= c.MaxTokens {
		return fmt.Errorf("%w: reserved tokens must be in [0, %d), got %d", ErrInvalidConfig, c.MaxTokens, c.ReservedTokens)
	}
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Manager owns a conversation and enforces its token budget. Mutations are
// serialized; no other component may mutate the wrapped conversation.
type Manager struct {
	mu   sync.Mutex
	conv *model.Conversation
	cfg  Config
	feed feed

	// evictedCalls holds the ids of tool calls whose assistant message was
	// evicted; results still arriving for them are dropped, not rejected.
	evictedCalls map[string]bool
	evicted      int
}

// New wraps conv, or a fresh conversation when conv is nil.
func New(conv *model.Conversation, cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Policy, _ = ParsePolicy(string(cfg.Policy))
	if cfg.Estimator == nil {
		cfg.Estimator = tokens.Default
	}
	if conv == nil {
		conv = model.NewConversation("")
	}
	return &Manager{conv: conv, cfg: cfg}, nil
}

// Conversation returns the managed conversation. Callers may read it but
// must mutate it only through the manager.
func (m *Manager) Conversation() *model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv
}

func (m *Manager) Config() Config {
	return m.cfg
}

// Subscribe returns a channel of updates and a function that stops delivery.
// Updates are queued without bound, so a slow reader never blocks mutations.
// After the stop function is called, pending updates are discarded and the
// channel is closed.
func (m *Manager) Subscribe() (<-chan Update, func()) {
	return m.feed.subscribe()
}

// Close stops every subscription.
func (m *Manager) Close() {
	m.feed.close()
}

// AppendUser appends a user text message.
func (m *Manager) AppendUser(text string) (model.Message, error) {
	msg, err := model.NewUserMessage(text)
	if err != nil {
		return model.Message{}, err
	}
	return msg, m.AppendMessage(msg)
}

// AppendUserParts appends a user message with mixed content.
func (m *Manager) AppendUserParts(parts ...model.Part) (model.Message, error) {
	msg, err := model.NewMessage(model.RoleUser, parts...)
	if err != nil {
		return model.Message{}, err
	}
	return msg, m.AppendMessage(msg)
}

// AppendAssistant appends an assistant reply.
func (m *Manager) AppendAssistant(text string, toolCalls ...model.ToolCall) (model.Message, error) {
	msg, err := model.NewAssistantMessage(text, toolCalls...)
	if err != nil {
		return model.Message{}, err
	}
	return msg, m.AppendMessage(msg)
}

// AppendToolResult appends the result of a tool call. The call must have been
// requested by an assistant message still in the history. A result for a
// call whose assistant message was already evicted is dropped: it is
// reported on the feed as added and then truncated, and no error is returned.
func (m *Manager) AppendToolResult(toolCallID, content string, isError bool) (model.Message, error) {
	msg, err := model.NewToolMessage(toolCallID, content, isError)
	if err != nil {
		return model.Message{}, err
	}
	return msg, m.AppendMessage(msg)
}

// AppendToolResults appends the results of one round of tool calls and
// enforces the budget once, after the last of them. Every result is checked
// against the stored tool calls before any is appended.
func (m *Manager) AppendToolResults(results ...model.ToolResult) ([]model.Message, error) {
	msgs := make([]model.Message, 0, len(results))
	for _, r := range results {
		msg, err := model.NewToolMessage(r.ToolCallID, r.Content, r.IsError)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range msgs {
		if err := m.checkToolResult(msg); err != nil {
			return nil, err
		}
	}
	for _, msg := range msgs {
		if err := m.add(msg); err != nil {
			return nil, err
		}
	}
	m.enforce()
	return msgs, nil
}

// AppendMessage appends a pre-built message and enforces the budget before
// returning.
func (m *Manager) AppendMessage(msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToolResult(msg); err != nil {
		return err
	}
	if err := m.add(msg); err != nil {
		return err
	}
	m.enforce()
	return nil
}

func (m *Manager) checkToolResult(msg model.Message) error {
	res, ok := msg.ToolResult()
	if !ok || msg.Role != model.RoleTool || m.hasToolCall(res.ToolCallID) || m.evictedCalls[res.ToolCallID] {
		return nil
	}
	return fmt.Errorf("failed to append tool result %q: %w", res.ToolCallID, ErrUnknownToolCall)
}

// add stores msg, or drops it when it answers an evicted tool call.
// Callers hold m.mu and have run checkToolResult.
func (m *Manager) add(msg model.Message) error {
	if res, ok := msg.ToolResult(); ok && msg.Role == model.RoleTool && !m.hasToolCall(res.ToolCallID) {
		m.publish(UpdateMessageAdded, []string{msg.ID})
		m.evicted++
		m.publish(UpdateMessageTruncated, []string{msg.ID})
		return nil
	}
	if err := m.conv.Append(msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	m.publish(UpdateMessageAdded, []string{msg.ID})
	return nil
}

func (m *Manager) hasToolCall(id string) bool {
	for _, msg := range m.conv.Messages() {
		if msg.Role != model.RoleAssistant {
			continue
		}
		if slices.ContainsFunc(msg.ToolCalls(), func(tc model.ToolCall) bool { return tc.ID == id }) {
			return true
		}
	}
	return false
}

// Remove deletes a message by id and reports whether it existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.conv.Remove(id) {
		return false
	}
	m.publish(UpdateMessageRemoved, []string{id})
	return true
}

// Clear removes the whole history. The system prompt is kept.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := messageIDs(m.conv.Messages())
	m.conv.Clear()
	m.publish(UpdateCleared, ids)
}

// Reset discards the conversation and starts a new one with systemPrompt.
func (m *Manager) Reset(systemPrompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := messageIDs(m.conv.Messages())
	m.conv = model.NewConversation(systemPrompt)
	m.evictedCalls = nil
	m.publish(UpdateReset, ids)
}

// Prepare re-enforces the budget and returns the materialized context: the
// system prompt followed by the surviving history.
func (m *Manager) Prepare() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enforce()
	return m.conv.WithSystemPrompt()
}

// EstimatedTokens returns the estimated size of the materialized context.
func (m *Manager) EstimatedTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimate()
}

// AvailableBudget returns MaxTokens minus the estimated context minus
// ReservedTokens. It is negative when the context is over budget.
func (m *Manager) AvailableBudget() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.MaxTokens - m.estimate() - m.cfg.ReservedTokens
}

// Evicted returns how many messages enforcement has evicted since the
// manager was created. A summarize eviction counts every message the
// synopsis replaced.
func (m *Manager) Evicted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evicted
}

// Overflow reports whether the context exceeds the budget even though
// nothing more can be evicted.
func (m *Manager) Overflow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimate() > m.cfg.Budget()
}

func (m *Manager) estimate() int {
	return m.cfg.Estimator.EstimateMessages(m.conv.WithSystemPrompt())
}

// enforce evicts until the context fits or the history is empty. Every
// eviction shortens the history, so the loop always terminates. Callers
// hold m.mu.
func (m *Manager) enforce() {
	budget := m.cfg.Budget()
	for m.conv.Len() > 0 && m.estimate() > budget {
		ev := m.evictOnce()
		if len(ev.removed) == 0 {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Window] %s evicted nothing; stopping enforcement", m.cfg.Policy)
			}
			return
		}
		m.evicted += len(ev.removed)
		for _, msg := range ev.removed {
			m.rememberCalls(msg)
		}
		u := m.update(UpdateMessageTruncated, messageIDs(ev.removed))
		u.Fallback = ev.fallback
		if ev.summary != nil {
			u.SummaryID = ev.summary.ID
		}
		m.feed.publish(u)
	}
	if m.conv.Len() == 0 && m.estimate() > budget && config.DebugLog != nil {
		config.DebugLog.Printf("[Window] system prompt alone exceeds budget of %d tokens", budget)
	}
}

func (m *Manager) rememberCalls(msg model.Message) {
	calls := msg.ToolCalls()
	if msg.Role != model.RoleAssistant || len(calls) == 0 {
		return
	}
	if m.evictedCalls == nil {
		m.evictedCalls = make(map[string]bool)
	}
	for _, tc := range calls {
		m.evictedCalls[tc.ID] = true
	}
}

func (m *Manager) update(kind UpdateKind, ids []string) Update {
	return Update{
		Kind:            kind,
		MessageIDs:      ids,
		MessageCount:    m.conv.Len(),
		EstimatedTokens: m.estimate(),
		At:              time.Now(),
	}
}

func (m *Manager) publish(kind UpdateKind, ids []string) {
	m.feed.publish(m.update(kind, ids))
}

func messageIDs(msgs []model.Message) []string {
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	return ids
}
