// Package storage persists conversations. Two backends implement Store: a
// directory of JSON documents and a SQLite database. Both hold the same
// document, written by model.Conversation.ToJSON.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"polychat/config"
	"polychat/model"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// ErrNotFound is returned by Load and Delete for an unknown id.
var ErrNotFound = errors.New("conversation not found")

// previewWidth is the display width of a listing preview, in terminal cells.
const previewWidth = 60

// Store persists conversations.
type Store interface {
	Save(c *model.Conversation) error
	Load(id string) (*model.Conversation, error)
	// List returns metadata for every stored conversation, newest first.
	List() ([]ConversationMetadata, error)
	Delete(id string) error
	Close() error
}

// ConversationMetadata is a lightweight view of a conversation for listing.
type ConversationMetadata struct {
	ID           string
	Title        string
	SystemPrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	// Preview is the start of the first user message.
	Preview string
}

// Open returns the store named by kind ("file" or "sqlite") under dataDir.
func Open(kind, dataDir string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFileStore(config.GetConversationsDir(dataDir))
	case "sqlite":
		return NewSQLiteStore(config.GetDatabasePath(dataDir))
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", kind)
	}
}

func metadataOf(c *model.Conversation) ConversationMetadata {
	snap := c.Snapshot()
	return ConversationMetadata{
		ID:           c.ID(),
		Title:        c.Title(),
		SystemPrompt: snap.SystemPrompt,
		CreatedAt:    c.CreatedAt(),
		UpdatedAt:    snap.UpdatedAt,
		MessageCount: len(snap.Messages),
		Preview:      Preview(firstUserText(snap.Messages), previewWidth),
	}
}

func firstUserText(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == model.RoleUser {
			if text := m.Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

// Preview flattens text to one line and truncates it to width terminal
// cells, so wide characters are counted correctly.
func Preview(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	return runewidth.Truncate(text, width, "...")
}

// GenerateTitle derives a conversation title from its first user message.
func GenerateTitle(firstMessage string) string {
	title := Preview(firstMessage, 30)
	if title == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	return title
}

// ensureTitle names an untitled conversation after its first user message.
func ensureTitle(c *model.Conversation) {
	if c.Title() != "" {
		return
	}
	if text := firstUserText(c.Messages()); text != "" {
		c.SetTitle(GenerateTitle(text))
	}
}

// SanitizeFilename removes or replaces characters that are invalid in filenames.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, name)
	name = strings.Trim(name, "-.")
	name = runewidth.Truncate(name, 50, "")
	if name == "" {
		name = "conversation"
	}
	return name
}

// GenerateExportPath returns a default export path in the user's Downloads
// directory.
func GenerateExportPath(title string) string {
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("polychat-%s-%s.json", SanitizeFilename(title), timestamp)
	return filepath.Join(config.GetHomeDir(), "Downloads", filename)
}

// Export writes a conversation document to path.
func Export(c *model.Conversation, path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// 0600: exports contain the full conversation history.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SaveCurrentID records the id of the last active conversation.
func SaveCurrentID(dataDir, id string) error {
	return os.WriteFile(filepath.Join(dataDir, "current_conversation.id"), []byte(id), 0600)
}

// LoadCurrentID returns the id of the last active conversation.
func LoadCurrentID(dataDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "current_conversation.id"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
