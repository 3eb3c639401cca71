package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/mfarraj/tg-guardian/lib/guard"
)

// CensoredWords is a storage for per-chat censored vocabulary. A word is either
// strict (whole-token match only) or smart (boundary-aware substring match).
// Re-adding an existing word overwrites its mode.
type CensoredWords struct {
	db   *sqlx.DB
	lock *sync.RWMutex
}

// NewCensoredWords creates the censored vocabulary storage and its schema.
func NewCensoredWords(db *sqlx.DB) (*CensoredWords, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	schema := `
        CREATE TABLE IF NOT EXISTS censored_words (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
            chat_id INTEGER NOT NULL,
            word TEXT NOT NULL,
            is_strict BOOLEAN NOT NULL DEFAULT 0,
            UNIQUE(chat_id, word)
        );
        CREATE INDEX IF NOT EXISTS idx_censored_words_chat ON censored_words(chat_id);
    `
	if _, err = tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &CensoredWords{db: db, lock: &sync.RWMutex{}}, nil
}

// Add inserts or updates a censored word for the chat.
func (c *CensoredWords) Add(ctx context.Context, chatID int64, word string, strict bool) error {
	if word == "" {
		return fmt.Errorf("word cannot be empty")
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	query := `INSERT INTO censored_words (chat_id, word, is_strict) VALUES (?, ?, ?)
        ON CONFLICT(chat_id, word) DO UPDATE SET is_strict = excluded.is_strict`
	if _, err := c.db.ExecContext(ctx, query, chatID, word, strict); err != nil {
		return fmt.Errorf("failed to add censored word %q: %w", word, err)
	}
	return nil
}

// Remove deletes a censored word, returns false if it wasn't censored.
func (c *CensoredWords) Remove(ctx context.Context, chatID int64, word string) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	res, err := c.db.ExecContext(ctx,
		`DELETE FROM censored_words WHERE chat_id = ? AND word = ?`, chatID, word)
	if err != nil {
		return false, fmt.Errorf("failed to remove censored word %q: %w", word, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// RemoveAll deletes every censored word in the chat, returns the removed count.
func (c *CensoredWords) RemoveAll(ctx context.Context, chatID int64) (int64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM censored_words WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove all censored words for chat %d: %w", chatID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

// List returns the chat's censored vocabulary, oldest first, in the form the
// matcher consumes directly.
func (c *CensoredWords) List(ctx context.Context, chatID int64) ([]guard.CensoredWord, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var words []guard.CensoredWord
	query := `SELECT word, is_strict FROM censored_words WHERE chat_id = ? ORDER BY timestamp, id`
	if err := c.db.SelectContext(ctx, &words, query, chatID); err != nil {
		return nil, fmt.Errorf("failed to list censored words: %w", err)
	}
	return words, nil
}
