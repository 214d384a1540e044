package storage

import (
	"fmt"
	"polychat/config"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

// SearchResult is a message that matched a search.
type SearchResult struct {
	ConversationID    string
	ConversationTitle string
	MessageIndex      int
	Role              string
	// Preview is the text around the first match.
	Preview string
}

// SearchIndex searches across every conversation in a store.
type SearchIndex struct {
	store Store
}

// NewSearchIndex creates a search index over store.
func NewSearchIndex(store Store) *SearchIndex {
	return &SearchIndex{store: store}
}

// SearchTitles fuzzy-matches query against conversation titles and returns
// the matches best first. An empty query returns every conversation.
func (si *SearchIndex) SearchTitles(query string) ([]ConversationMetadata, error) {
	list, err := si.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if query == "" {
		return list, nil
	}

	titles := make([]string, len(list))
	for i, m := range list {
		titles[i] = m.Title
	}
	matches := fuzzy.Find(query, titles)

	results := make([]ConversationMetadata, 0, len(matches))
	for _, match := range matches {
		results = append(results, list[match.Index])
	}
	return results, nil
}

// SearchMessages finds messages containing query, case-insensitively, in
// every stored conversation. Results follow the store's listing order.
func (si *SearchIndex) SearchMessages(query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	list, err := si.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	needle := strings.ToLower(query)
	var results []SearchResult
	for _, meta := range list {
		c, err := si.store.Load(meta.ID)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Search] Skipping conversation %s: %v", meta.ID, err)
			}
			continue
		}

		for i, msg := range c.Messages() {
			text := msg.Text()
			if text == "" {
				if res, ok := msg.ToolResult(); ok {
					text = res.Content
				}
			}
			lower := strings.ToLower(text)
			idx := strings.Index(lower, needle)
			if idx < 0 {
				continue
			}
			results = append(results, SearchResult{
				ConversationID:    meta.ID,
				ConversationTitle: meta.Title,
				MessageIndex:      i,
				Role:              string(msg.Role),
				Preview:           matchPreview(text, lower, idx, len(needle)),
			})
		}
	}
	return results, nil
}

// matchPreview returns about 100 characters of text centered on a match at
// byte offset idx of lower.
func matchPreview(text, lower string, idx, n int) string {
	const context = 40

	// Lower-casing can change byte lengths; fall back to the head of the text.
	if len(lower) != len(text) {
		return Preview(text, 100)
	}

	start := idx
	for i := 0; i < context && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := idx + n
	for i := 0; i < context && end < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}

	preview := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		preview = "..." + preview
	}
	if end < len(text) {
		preview += "..."
	}
	return preview
}
