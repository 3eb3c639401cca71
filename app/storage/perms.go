package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// AdminPerms controls whether chat admins bypass moderation checks.
// Without a row admins are allowed to bypass, the restrictive state is opt-in.
type AdminPerms struct {
	db   *sqlx.DB
	lock *sync.RWMutex
}

// NewAdminPerms creates the admin permissions storage and its schema.
func NewAdminPerms(db *sqlx.DB) (*AdminPerms, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	schema := `
        CREATE TABLE IF NOT EXISTS admin_perms (
            chat_id INTEGER PRIMARY KEY,
            admins_allowed BOOLEAN NOT NULL DEFAULT 1
        );
    `
	if _, err = tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &AdminPerms{db: db, lock: &sync.RWMutex{}}, nil
}

// Allowed reports whether admins of the chat bypass moderation, true by default.
func (a *AdminPerms) Allowed(ctx context.Context, chatID int64) (bool, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	var allowed bool
	err := a.db.GetContext(ctx, &allowed, `SELECT admins_allowed FROM admin_perms WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get admin perms for chat %d: %w", chatID, err)
	}
	return allowed, nil
}

// Set stores the bypass flag for the chat.
func (a *AdminPerms) Set(ctx context.Context, chatID int64, allowed bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	query := `INSERT INTO admin_perms (chat_id, admins_allowed) VALUES (?, ?)
        ON CONFLICT(chat_id) DO UPDATE SET admins_allowed = excluded.admins_allowed`
	if _, err := a.db.ExecContext(ctx, query, chatID, allowed); err != nil {
		return fmt.Errorf("failed to set admin perms for chat %d: %w", chatID, err)
	}
	return nil
}
