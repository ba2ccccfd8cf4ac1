// SPDX-License-Identifier: AGPL-3.0-only

// Package session persists per-conversation mutable state: chat
// configuration, categorized notes and recent history. The agent core only
// ever sees a per-conversation Handle.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// ChatConfig is the per-chat configuration surfaced to the agent.
// Nil fields are unset.
type ChatConfig struct {
	CustomPrompt *string `json:"custom_prompt"`
	Language     *string `json:"language"`
	Personality  *string `json:"personality"`
}

// ConfigPatch is a partial-field update. A field is applied only when its Set
// flag is true; a set field with a nil value clears it. This distinguishes
// "not provided" from "explicitly cleared".
type ConfigPatch struct {
	CustomPrompt    *string
	SetCustomPrompt bool

	Language    *string
	SetLanguage bool

	Personality    *string
	SetPersonality bool
}

// Note is one entry in a chat's keyed note store.
type Note struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one recorded conversation entry.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Sender    string    `json:"sender,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQLite-backed session store.
type Store struct {
	db           *sql.DB
	historyLimit int
}

// NewStore opens (or creates) the SQLite database at dbPath, enables WAL
// mode, and runs any pending schema migrations. historyLimit caps the
// retained history entries per chat.
func NewStore(dbPath string, historyLimit int) (*Store, error) {
	// Ensure the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if historyLimit <= 0 {
		historyLimit = 50
	}

	return &Store{db: db, historyLimit: historyLimit}, nil
}

// Handle returns the per-conversation handle for chatID.
func (s *Store) Handle(chatID string) *Handle {
	return &Handle{store: s, chatID: chatID}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Handle scopes all reads and writes to one conversation.
type Handle struct {
	store  *Store
	chatID string
}

// ChatID returns the conversation this handle is bound to.
func (h *Handle) ChatID() string { return h.chatID }

// Config returns the chat configuration. A chat with no stored row gets the
// zero configuration (all fields unset).
func (h *Handle) Config() (ChatConfig, error) {
	var cfg ChatConfig
	row := h.store.db.QueryRow(`
		SELECT custom_prompt, language, personality
		FROM chat_config WHERE chat_id = ?`, h.chatID)
	err := row.Scan(&cfg.CustomPrompt, &cfg.Language, &cfg.Personality)
	if err == sql.ErrNoRows {
		return ChatConfig{}, nil
	}
	if err != nil {
		return ChatConfig{}, fmt.Errorf("query chat config: %w", err)
	}
	return cfg, nil
}

// ApplyConfig applies a partial update to the chat configuration.
func (h *Handle) ApplyConfig(patch ConfigPatch) (ChatConfig, error) {
	cfg, err := h.Config()
	if err != nil {
		return ChatConfig{}, err
	}

	if patch.SetCustomPrompt {
		cfg.CustomPrompt = patch.CustomPrompt
	}
	if patch.SetLanguage {
		cfg.Language = patch.Language
	}
	if patch.SetPersonality {
		cfg.Personality = patch.Personality
	}

	_, err = h.store.db.Exec(`
		INSERT INTO chat_config (chat_id, custom_prompt, language, personality, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			custom_prompt = excluded.custom_prompt,
			language      = excluded.language,
			personality   = excluded.personality,
			updated_at    = excluded.updated_at`,
		h.chatID, cfg.CustomPrompt, cfg.Language, cfg.Personality,
		time.Now().Format(timeFormat),
	)
	if err != nil {
		return ChatConfig{}, fmt.Errorf("upsert chat config: %w", err)
	}
	return cfg, nil
}

// ResetConfig returns all configuration fields to their default (unset) state.
func (h *Handle) ResetConfig() error {
	if _, err := h.store.db.Exec("DELETE FROM chat_config WHERE chat_id = ?", h.chatID); err != nil {
		return fmt.Errorf("reset chat config: %w", err)
	}
	return nil
}

// AddNote stores a note under a category and returns it with its new ID.
// Category normalization is the caller's responsibility.
func (h *Handle) AddNote(category, content, createdBy string) (Note, error) {
	note := Note{
		ID:        uuid.NewString(),
		Category:  category,
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	_, err := h.store.db.Exec(`
		INSERT INTO notes (id, chat_id, category, content, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		note.ID, h.chatID, note.Category, note.Content, note.CreatedBy,
		note.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

// Notes returns the chat's notes, oldest first. An empty category returns
// every note across all categories.
func (h *Handle) Notes(category string) ([]Note, error) {
	query := `
		SELECT id, category, content, created_by, created_at
		FROM notes WHERE chat_id = ?`
	args := []interface{}{h.chatID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at, id"

	rows, err := h.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var createdStr string
		if err := rows.Scan(&n.ID, &n.Category, &n.Content, &n.CreatedBy, &createdStr); err != nil {
			return nil, fmt.Errorf("scan note row: %w", err)
		}
		n.CreatedAt, _ = time.Parse(timeFormat, createdStr)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note rows: %w", err)
	}
	return notes, nil
}

// RemoveNote deletes a note by ID. Returns false if the note does not exist
// in this chat. A category with no remaining notes disappears from listings
// because categories only exist as note rows.
func (h *Handle) RemoveNote(id string) (bool, error) {
	res, err := h.store.db.Exec(
		"DELETE FROM notes WHERE id = ? AND chat_id = ?", id, h.chatID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check delete result: %w", err)
	}
	return rows > 0, nil
}

// AppendHistory records one conversation entry and trims the chat's history
// to the store's retention limit.
func (h *Handle) AppendHistory(role, sender, content string) error {
	_, err := h.store.db.Exec(`
		INSERT INTO history (chat_id, role, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		h.chatID, role, sender, content, time.Now().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	_, err = h.store.db.Exec(`
		DELETE FROM history WHERE chat_id = ? AND id NOT IN (
			SELECT id FROM history WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		)`, h.chatID, h.chatID, h.store.historyLimit)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit entries, oldest first.
func (h *Handle) RecentHistory(limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > h.store.historyLimit {
		limit = h.store.historyLimit
	}

	rows, err := h.store.db.Query(`
		SELECT role, sender, content, created_at FROM (
			SELECT id, role, sender, content, created_at
			FROM history WHERE chat_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id`, h.chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var createdStr string
		if err := rows.Scan(&e.Role, &e.Sender, &e.Content, &createdStr); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeFormat, createdStr)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// Clear removes all stored state for the conversation. Used when the bot is
// removed from a chat.
func (h *Handle) Clear() error {
	for _, table := range []string{"chat_config", "notes", "history"} {
		if _, err := h.store.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE chat_id = ?", table), h.chatID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
