package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// BlockedSets is a storage for sticker set names blocked per chat.
type BlockedSets struct {
	db   *sqlx.DB
	lock *sync.RWMutex
}

// NewBlockedSets creates the blocked sticker sets storage and its schema.
func NewBlockedSets(db *sqlx.DB) (*BlockedSets, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	schema := `
        CREATE TABLE IF NOT EXISTS blocked_sets (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
            chat_id INTEGER NOT NULL,
            set_name TEXT NOT NULL,
            UNIQUE(chat_id, set_name)
        );
        CREATE INDEX IF NOT EXISTS idx_blocked_sets_chat ON blocked_sets(chat_id);
    `
	if _, err = tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &BlockedSets{db: db, lock: &sync.RWMutex{}}, nil
}

// Add blocks a sticker set in the chat, returns false if it was already blocked.
func (b *BlockedSets) Add(ctx context.Context, chatID int64, setName string) (bool, error) {
	if setName == "" {
		return false, fmt.Errorf("set name cannot be empty")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	res, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocked_sets (chat_id, set_name) VALUES (?, ?)`, chatID, setName)
	if err != nil {
		return false, fmt.Errorf("failed to block set %q: %w", setName, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// Remove unblocks a sticker set, returns false if it wasn't blocked.
func (b *BlockedSets) Remove(ctx context.Context, chatID int64, setName string) (bool, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	res, err := b.db.ExecContext(ctx,
		`DELETE FROM blocked_sets WHERE chat_id = ? AND set_name = ?`, chatID, setName)
	if err != nil {
		return false, fmt.Errorf("failed to unblock set %q: %w", setName, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// RemoveAll unblocks every sticker set in the chat, returns the removed count.
func (b *BlockedSets) RemoveAll(ctx context.Context, chatID int64) (int64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	res, err := b.db.ExecContext(ctx, `DELETE FROM blocked_sets WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to unblock all sets for chat %d: %w", chatID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

// List returns all blocked sticker set names for the chat, oldest first.
func (b *BlockedSets) List(ctx context.Context, chatID int64) ([]string, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	var names []string
	query := `SELECT set_name FROM blocked_sets WHERE chat_id = ? ORDER BY timestamp, id`
	if err := b.db.SelectContext(ctx, &names, query, chatID); err != nil {
		return nil, fmt.Errorf("failed to list blocked sets: %w", err)
	}
	return names, nil
}

// IsBlocked reports whether the sticker set is blocked in the chat.
func (b *BlockedSets) IsBlocked(ctx context.Context, chatID int64, setName string) (bool, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	var count int
	query := `SELECT COUNT(*) FROM blocked_sets WHERE chat_id = ? AND set_name = ?`
	if err := b.db.GetContext(ctx, &count, query, chatID, setName); err != nil {
		return false, fmt.Errorf("failed to check blocked set %q: %w", setName, err)
	}
	return count > 0, nil
}
