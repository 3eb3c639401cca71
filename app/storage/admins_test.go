package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromotedAdmins_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	p, err := NewPromotedAdmins(db)
	require.NoError(t, err)
	ctx := context.Background()

	promoted, err := p.IsPromoted(ctx, 123, 777)
	require.NoError(t, err)
	assert.False(t, promoted)

	require.NoError(t, p.Add(ctx, 123, 777, "helper"))

	promoted, err = p.IsPromoted(ctx, 123, 777)
	require.NoError(t, err)
	assert.True(t, promoted)

	// per-chat scope
	promoted, err = p.IsPromoted(ctx, 456, 777)
	require.NoError(t, err)
	assert.False(t, promoted)

	removed, err := p.Remove(ctx, 123, 777)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = p.Remove(ctx, 123, 777)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPromotedAdmins_RepeatPromotion(t *testing.T) {
	db := setupTestDB(t)
	p, err := NewPromotedAdmins(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, 123, 777, "first"))
	require.NoError(t, p.Add(ctx, 123, 777, "second"))

	var title string
	err = db.Get(&title, `SELECT custom_title FROM bot_promoted_admins WHERE chat_id = 123 AND user_id = 777`)
	require.NoError(t, err)
	assert.Equal(t, "second", title)
}
