package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfarraj/tg-guardian/app/bot"
)

func TestMakeAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := makeAuditLogger(&buf)

	msg := &bot.Message{
		ChatID: -100123,
		From: bot.User{
			ID:          123,
			DisplayName: "Test User",
			Username:    "testuser",
		},
		Text: "Test message 🙈\nblah blah  \n\n\n",
	}
	response := &bot.Response{Text: "censored word detected", DeleteMessage: true}

	logger.Save(msg, response)

	var entry struct {
		TS          string `json:"ts"`
		ChatID      int64  `json:"chat_id"`
		DisplayName string `json:"display_name"`
		UserName    string `json:"user_name"`
		UserID      int64  `json:"user_id"`
		Text        string `json:"text"`
		Reason      string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, int64(-100123), entry.ChatID)
	assert.Equal(t, "Test User", entry.DisplayName)
	assert.Equal(t, "testuser", entry.UserName)
	assert.Equal(t, int64(123), entry.UserID)
	assert.Equal(t, "Test message  blah blah", entry.Text, "emojis and newlines stripped")
	assert.Equal(t, "censored word detected", entry.Reason)
	assert.NotEmpty(t, entry.TS)
}

func TestMakeAuditLogWriter(t *testing.T) {
	setupLog(true, "super-secret-token")

	t.Run("happy path", func(t *testing.T) {
		file, err := os.CreateTemp(os.TempDir(), "log")
		require.NoError(t, err)
		defer os.Remove(file.Name())

		var opts options
		opts.Logger.Enabled = true
		opts.Logger.FileName = file.Name()
		opts.Logger.MaxSize = "1M"
		opts.Logger.MaxBackups = 1

		writer, err := makeAuditLogWriter(opts)
		require.NoError(t, err)

		_, err = writer.Write([]byte("Test log entry\n"))
		assert.NoError(t, err)
		err = writer.Close()
		assert.NoError(t, err)

		file, err = os.Open(file.Name())
		require.NoError(t, err)

		content, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, "Test log entry\n", string(content))
	})

	t.Run("disabled", func(t *testing.T) {
		var opts options
		opts.Logger.Enabled = false

		writer, err := makeAuditLogWriter(opts)
		require.NoError(t, err)

		_, err = writer.Write([]byte("Test log entry\n"))
		assert.NoError(t, err)
		assert.NoError(t, writer.Close())
	})

	t.Run("bad max size", func(t *testing.T) {
		var opts options
		opts.Logger.Enabled = true
		opts.Logger.MaxSize = "not-a-size"

		_, err := makeAuditLogWriter(opts)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "can't parse logger MaxSize"))
	})
}
