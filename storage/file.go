package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"polychat/config"
	"polychat/model"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps one JSON document per conversation in a directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a store rooted at dir, creating it with 0700
// permissions if needed.
func NewFileStore(dir string) (*FileStore, error) {
	// 0700: conversations may contain sensitive content
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid conversation id: %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save writes the conversation, replacing any earlier version. An untitled
// conversation is named after its first user message.
func (s *FileStore) Save(c *model.Conversation) error {
	path, err := s.path(c.ID())
	if err != nil {
		return err
	}
	ensureTitle(c)

	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a temp file and rename so a crash never leaves a torn document.
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set conversation file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	return nil
}

// Load reads a conversation by id.
func (s *FileStore) Load(id string) (*model.Conversation, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	c, err := model.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return c, nil
}

// List returns metadata for all stored conversations, newest first. Files
// that fail to parse are logged and skipped.
func (s *FileStore) List() ([]ConversationMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	var list []ConversationMetadata
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		c, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Storage] Skipping corrupted conversation file %s: %v", name, err)
			}
			continue
		}
		list = append(list, metadataOf(c))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// Delete removes a conversation.
func (s *FileStore) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}
