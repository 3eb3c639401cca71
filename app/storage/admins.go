package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// PromotedAdmins tracks admins promoted through the bot. Only these admins may
// later be demoted or kicked by bot commands, externally promoted admins are
// untouchable.
type PromotedAdmins struct {
	db   *sqlx.DB
	lock *sync.RWMutex
}

// NewPromotedAdmins creates the promoted admins storage and its schema.
func NewPromotedAdmins(db *sqlx.DB) (*PromotedAdmins, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	schema := `
        CREATE TABLE IF NOT EXISTS bot_promoted_admins (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
            chat_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            custom_title TEXT NOT NULL DEFAULT '',
            UNIQUE(chat_id, user_id)
        );
    `
	if _, err = tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &PromotedAdmins{db: db, lock: &sync.RWMutex{}}, nil
}

// Add records a bot-promoted admin, updating the title on repeat promotion.
func (p *PromotedAdmins) Add(ctx context.Context, chatID, userID int64, title string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	query := `INSERT INTO bot_promoted_admins (chat_id, user_id, custom_title) VALUES (?, ?, ?)
        ON CONFLICT(chat_id, user_id) DO UPDATE SET custom_title = excluded.custom_title`
	if _, err := p.db.ExecContext(ctx, query, chatID, userID, title); err != nil {
		return fmt.Errorf("failed to record promoted admin %d: %w", userID, err)
	}
	return nil
}

// Remove forgets a bot-promoted admin, returns false if it wasn't recorded.
func (p *PromotedAdmins) Remove(ctx context.Context, chatID, userID int64) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	res, err := p.db.ExecContext(ctx,
		`DELETE FROM bot_promoted_admins WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove promoted admin %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// IsPromoted reports whether the user was promoted through the bot in the chat.
func (p *PromotedAdmins) IsPromoted(ctx context.Context, chatID, userID int64) (bool, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	var count int
	query := `SELECT COUNT(*) FROM bot_promoted_admins WHERE chat_id = ? AND user_id = ?`
	if err := p.db.GetContext(ctx, &count, query, chatID, userID); err != nil {
		return false, fmt.Errorf("failed to check promoted admin %d: %w", userID, err)
	}
	return count > 0, nil
}
