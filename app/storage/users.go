package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

// KnownUsers maps usernames to telegram user ids, fed from observed messages.
// The bot api offers no username lookup, so commands taking @username arguments
// can only resolve users seen before. Usernames are stored lowercased.
type KnownUsers struct {
	db   *sqlx.DB
	lock *sync.RWMutex
}

// NewKnownUsers creates the known users storage and its schema.
func NewKnownUsers(db *sqlx.DB) (*KnownUsers, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	schema := `
        CREATE TABLE IF NOT EXISTS known_users (
            user_id INTEGER PRIMARY KEY,
            username TEXT NOT NULL,
            timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_known_users_username ON known_users(username);
    `
	if _, err = tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &KnownUsers{db: db, lock: &sync.RWMutex{}}, nil
}

// Seen records the user, keeping the latest username for the id. Users without
// a username are skipped.
func (k *KnownUsers) Seen(ctx context.Context, userID int64, username string) error {
	username = strings.ToLower(strings.TrimPrefix(username, "@"))
	if username == "" || userID == 0 {
		return nil
	}

	k.lock.Lock()
	defer k.lock.Unlock()

	query := `INSERT INTO known_users (user_id, username) VALUES (?, ?)
        ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, timestamp = CURRENT_TIMESTAMP`
	if _, err := k.db.ExecContext(ctx, query, userID, username); err != nil {
		return fmt.Errorf("failed to record user %d: %w", userID, err)
	}
	return nil
}

// IDOf resolves a username to a user id, 0 if the user was never seen.
// When the same username moved between accounts the latest owner wins.
func (k *KnownUsers) IDOf(ctx context.Context, username string) (int64, error) {
	username = strings.ToLower(strings.TrimPrefix(username, "@"))

	k.lock.RLock()
	defer k.lock.RUnlock()

	var id int64
	query := `SELECT user_id FROM known_users WHERE username = ? ORDER BY timestamp DESC LIMIT 1`
	err := k.db.GetContext(ctx, &id, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve username %q: %w", username, err)
	}
	return id, nil
}
