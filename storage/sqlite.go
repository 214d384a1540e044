package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"polychat/config"
	"polychat/model"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps conversations in a SQLite database. The full document is
// stored alongside the listing columns, so List never decodes messages.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// database/sql pools connections; a single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := os.Chmod(dbPath, 0600); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Storage] Failed to restrict database permissions: %v", err)
	}

	return store, nil
}

// initialize creates the schema if it doesn't exist
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		document TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.migrateSchema()
}

// migrateSchema adds columns introduced after the first release.
func (s *SQLiteStore) migrateSchema() error {
	exists, err := s.columnExists("conversations", "preview")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := s.db.Exec(`ALTER TABLE conversations ADD COLUMN preview TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add preview column: %w", err)
		}
	}
	return nil
}

// columnExists checks if a column exists in a table
func (s *SQLiteStore) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}

// Save inserts or replaces a conversation.
func (s *SQLiteStore) Save(c *model.Conversation) error {
	ensureTitle(c)
	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	meta := metadataOf(c)

	query := `
	INSERT OR REPLACE INTO conversations
	(id, title, system_prompt, created_at, updated_at, message_count, preview, document)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		meta.ID, meta.Title, meta.SystemPrompt,
		meta.CreatedAt.UTC(), meta.UpdatedAt.UTC(),
		meta.MessageCount, meta.Preview, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Load retrieves a conversation by id.
func (s *SQLiteStore) Load(id string) (*model.Conversation, error) {
	var document string
	err := s.db.QueryRow(`SELECT document FROM conversations WHERE id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	c, err := model.FromJSON([]byte(document))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return c, nil
}

// List returns metadata for every conversation, newest first.
func (s *SQLiteStore) List() ([]ConversationMetadata, error) {
	query := `
	SELECT id, title, system_prompt, created_at, updated_at, message_count, preview
	FROM conversations
	ORDER BY updated_at DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var list []ConversationMetadata
	for rows.Next() {
		var m ConversationMetadata
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&m.ID, &m.Title, &m.SystemPrompt, &createdAt, &updatedAt, &m.MessageCount, &m.Preview); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		m.CreatedAt = createdAt.Local()
		m.UpdatedAt = updatedAt.Local()
		list = append(list, m)
	}

	return list, rows.Err()
}

// Delete removes a conversation.
func (s *SQLiteStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
