package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// defaults applied when a chat has no settings row yet
const (
	DefaultSpamLimit      = 6
	DefaultMutePenaltyMin = 15
	DefaultAIThreshold    = 75.0
)

// ChatSettings is a per-chat moderation configuration row.
type ChatSettings struct {
	ChatID          int64   `db:"chat_id"`
	AntispamEnabled bool    `db:"antispam_enabled"`
	SpamLimit       int     `db:"spam_limit"`
	MutePenaltyMin  int     `db:"mute_penalty_min"`
	AIEnabled       bool    `db:"ai_enabled"`
	AIThreshold     float64 `db:"ai_threshold"`
}

// Settings is a storage for per-chat tunables. A chat without a row behaves as
// if it had the defaults, the row is created lazily on the first change.
type Settings struct {
	db   *sqlx.DB
	lock *sync.RWMutex
}

// NewSettings creates the settings storage and its schema.
func NewSettings(db *sqlx.DB) (*Settings, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	schema := `
        CREATE TABLE IF NOT EXISTS chat_settings (
            chat_id INTEGER PRIMARY KEY,
            antispam_enabled BOOLEAN NOT NULL DEFAULT 0,
            spam_limit INTEGER NOT NULL DEFAULT 6,
            mute_penalty_min INTEGER NOT NULL DEFAULT 15,
            ai_enabled BOOLEAN NOT NULL DEFAULT 0,
            ai_threshold REAL NOT NULL DEFAULT 75
        );
    `
	if _, err = tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &Settings{db: db, lock: &sync.RWMutex{}}, nil
}

// Get returns the chat settings, defaults if the chat has no row.
func (s *Settings) Get(ctx context.Context, chatID int64) (ChatSettings, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var res ChatSettings
	err := s.db.GetContext(ctx, &res, `SELECT * FROM chat_settings WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSettings{
			ChatID:         chatID,
			SpamLimit:      DefaultSpamLimit,
			MutePenaltyMin: DefaultMutePenaltyMin,
			AIThreshold:    DefaultAIThreshold,
		}, nil
	}
	if err != nil {
		return ChatSettings{}, fmt.Errorf("failed to get settings for chat %d: %w", chatID, err)
	}
	return res, nil
}

// SetAntispam enables or disables the sliding-window spam check for the chat.
func (s *Settings) SetAntispam(ctx context.Context, chatID int64, enabled bool) error {
	return s.set(ctx, chatID, "antispam_enabled", enabled)
}

// SetSpamLimit sets the max messages allowed inside the spam window.
func (s *Settings) SetSpamLimit(ctx context.Context, chatID int64, limit int) error {
	if limit < 1 {
		return fmt.Errorf("spam limit must be positive, got %d", limit)
	}
	return s.set(ctx, chatID, "spam_limit", limit)
}

// SetMutePenalty sets the mute duration, in minutes, applied on a spam burst.
func (s *Settings) SetMutePenalty(ctx context.Context, chatID int64, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("mute penalty must be positive, got %d", minutes)
	}
	return s.set(ctx, chatID, "mute_penalty_min", minutes)
}

// SetAIEnabled enables or disables the classifier check for the chat.
func (s *Settings) SetAIEnabled(ctx context.Context, chatID int64, enabled bool) error {
	return s.set(ctx, chatID, "ai_enabled", enabled)
}

// SetAIThreshold sets the classifier score above which a message is removed.
func (s *Settings) SetAIThreshold(ctx context.Context, chatID int64, threshold float64) error {
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("threshold must be in [0, 100], got %v", threshold)
	}
	return s.set(ctx, chatID, "ai_threshold", threshold)
}

// set updates a single column, creating the row with defaults first if needed.
// The column name is always a compile-time constant from the setters above.
func (s *Settings) set(ctx context.Context, chatID int64, column string, value any) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO chat_settings (chat_id) VALUES (?)`, chatID); err != nil {
		return fmt.Errorf("failed to ensure settings row: %w", err)
	}
	query := fmt.Sprintf("UPDATE chat_settings SET %s = ? WHERE chat_id = ?", column) //nolint:gosec // column is a constant
	if _, err = tx.ExecContext(ctx, query, value, chatID); err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
