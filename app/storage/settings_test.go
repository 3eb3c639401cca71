package storage

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	db, err := NewSqlite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewSettings(t *testing.T) {
	db := setupTestDB(t)

	s, err := NewSettings(db)
	assert.NoError(t, err)
	assert.NotNil(t, s)

	s, err = NewSettings(nil)
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestSettings_Defaults(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewSettings(db)
	require.NoError(t, err)

	res, err := s.Get(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, int64(123), res.ChatID)
	assert.False(t, res.AntispamEnabled)
	assert.Equal(t, 6, res.SpamLimit)
	assert.Equal(t, 15, res.MutePenaltyMin)
	assert.False(t, res.AIEnabled)
	assert.InDelta(t, 75.0, res.AIThreshold, 0.001)
}

func TestSettings_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewSettings(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SetAntispam(ctx, 123, true))
	require.NoError(t, s.SetSpamLimit(ctx, 123, 10))
	require.NoError(t, s.SetMutePenalty(ctx, 123, 30))
	require.NoError(t, s.SetAIEnabled(ctx, 123, true))
	require.NoError(t, s.SetAIThreshold(ctx, 123, 80.5))

	res, err := s.Get(ctx, 123)
	require.NoError(t, err)
	assert.True(t, res.AntispamEnabled)
	assert.Equal(t, 10, res.SpamLimit)
	assert.Equal(t, 30, res.MutePenaltyMin)
	assert.True(t, res.AIEnabled)
	assert.InDelta(t, 80.5, res.AIThreshold, 0.001)

	// a different chat still has defaults
	other, err := s.Get(ctx, 456)
	require.NoError(t, err)
	assert.False(t, other.AntispamEnabled)
	assert.Equal(t, 6, other.SpamLimit)
}

func TestSettings_PartialUpdateKeepsDefaults(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewSettings(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SetSpamLimit(ctx, 123, 3))

	res, err := s.Get(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SpamLimit)
	assert.Equal(t, 15, res.MutePenaltyMin, "untouched columns stay at defaults")
	assert.InDelta(t, 75.0, res.AIThreshold, 0.001)
}

func TestSettings_Validation(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewSettings(db)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, s.SetSpamLimit(ctx, 123, 0))
	assert.Error(t, s.SetSpamLimit(ctx, 123, -1))
	assert.Error(t, s.SetMutePenalty(ctx, 123, 0))
	assert.Error(t, s.SetAIThreshold(ctx, 123, -0.1))
	assert.Error(t, s.SetAIThreshold(ctx, 123, 100.1))

	res, err := s.Get(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, 6, res.SpamLimit, "rejected updates don't mutate state")
}
