package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is an ordered message history plus an optional system prompt.
// It is safe for concurrent use. Every mutation advances UpdatedAt strictly.
//
// The system prompt is kept apart from the message sequence and is never
// evicted; WithSystemPrompt materializes the two for a request.
type Conversation struct {
	mu           sync.RWMutex
	id           string
	title        string
	systemPrompt string
	messages     []Message
	createdAt    time.Time
	updatedAt    time.Time
	metadata     map[string]string

	now func() time.Time
}

// Snapshot is a consistent read of a conversation's sequence.
type Snapshot struct {
	SystemPrompt string
	Messages     []Message
	UpdatedAt    time.Time
}

// NewConversation creates an empty conversation.
func NewConversation(systemPrompt string) *Conversation {
	now := time.Now()
	return &Conversation{
		id:           uuid.NewString(),
		systemPrompt: systemPrompt,
		createdAt:    now,
		updatedAt:    now,
		now:          time.Now,
	}
}

// touch advances updatedAt. Callers hold the write lock.
func (c *Conversation) touch() {
	clock := c.now
	if clock == nil {
		clock = time.Now
	}
	t := clock()
	if !t.After(c.updatedAt) {
		t = c.updatedAt.Add(time.Nanosecond)
	}
	c.updatedAt = t
}

// Append validates msg and adds it to the end of the sequence.
func (c *Conversation) Append(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.touch()
	return nil
}

// Remove deletes the message with the given id. It reports false, and leaves
// the conversation untouched, when no such message exists.
func (c *Conversation) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.messages, func(m Message) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	c.messages = slices.Delete(c.messages, i, i+1)
	c.touch()
	return true
}

// ReplaceOldest swaps the first n messages for replacement and returns the
// removed messages. n is clamped to the sequence length.
func (c *Conversation) ReplaceOldest(n int, replacement ...Message) ([]Message, error) {
	for _, m := range replacement {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n = min(max(n, 0), len(c.messages))
	removed := slices.Clone(c.messages[:n])
	c.messages = slices.Concat(replacement, c.messages[n:])
	c.touch()
	return removed, nil
}

// Clear removes every message. The system prompt is kept.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.touch()
}

// SetSystemPrompt replaces the system prompt.
func (c *Conversation) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = prompt
	c.touch()
}

// Messages returns a copy of the sequence, oldest first.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

// WithSystemPrompt returns the materialized request context: a synthetic
// system message holding the system prompt, if any, followed by the sequence.
// The result is freshly built on every call.
func (c *Conversation) WithSystemPrompt() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.materialize()
}

func (c *Conversation) materialize() []Message {
	if c.systemPrompt == "" {
		return slices.Clone(c.messages)
	}
	out := make([]Message, 0, len(c.messages)+1)
	out = append(out, Message{
		ID:        c.id + ":system",
		Role:      RoleSystem,
		Parts:     []Part{TextPart(c.systemPrompt)},
		CreatedAt: c.createdAt,
	})
	return append(out, c.messages...)
}

// Snapshot returns the sequence and UpdatedAt read under one lock.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		SystemPrompt: c.systemPrompt,
		Messages:     slices.Clone(c.messages),
		UpdatedAt:    c.updatedAt,
	}
}

// Find returns the message with the given id.
func (c *Conversation) Find(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func (c *Conversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.title
}

func (c *Conversation) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
	c.touch()
}

func (c *Conversation) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systemPrompt
}

func (c *Conversation) CreatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createdAt
}

func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Metadata returns a copy of the conversation's free-form metadata.
func (c *Conversation) Metadata() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.metadata)
}

func (c *Conversation) SetMetadata(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metadata == nil {
		c.metadata = make(map[string]string)
	}
	c.metadata[key] = value
	c.touch()
}

// Equal reports whether two conversations share an identity.
func (c *Conversation) Equal(other *Conversation) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.ID() == other.ID()
}

type conversationDocument struct {
	ID           string            `json:"id"`
	Title        string            `json:"title,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Messages     []Message         `json:"messages"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (c *Conversation) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	doc := conversationDocument{
		ID:           c.id,
		Title:        c.title,
		SystemPrompt: c.systemPrompt,
		Messages:     c.messages,
		CreatedAt:    c.createdAt,
		UpdatedAt:    c.updatedAt,
		Metadata:     c.metadata,
	}
	if doc.Messages == nil {
		doc.Messages = []Message{}
	}
	data, err := json.Marshal(doc)
	c.mu.RUnlock()
	return data, err
}

// UnmarshalJSON replaces the conversation with the decoded document. Every
// message is validated.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var doc conversationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode conversation: %w", err)
	}
	if doc.ID == "" {
		return fmt.Errorf("failed to decode conversation: missing id")
	}
	for i, m := range doc.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("failed to decode conversation: message %d: %w", i, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = doc.ID
	c.title = doc.Title
	c.systemPrompt = doc.SystemPrompt
	c.messages = doc.Messages
	c.createdAt = doc.CreatedAt
	c.updatedAt = doc.UpdatedAt
	c.metadata = doc.Metadata
	if c.now == nil {
		c.now = time.Now
	}
	return nil
}

// ToJSON serializes the conversation.
func (c *Conversation) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON restores a conversation written by ToJSON.
func FromJSON(data []byte) (*Conversation, error) {
	c := &Conversation{}
	if err := c.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return c, nil
}
