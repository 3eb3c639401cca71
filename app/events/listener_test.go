package events

import (
	"context"
	"testing"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfarraj/tg-guardian/app/bot"
	"github.com/mfarraj/tg-guardian/lib/guard"
)

type botStub struct {
	resp  bot.Response
	seen  []bot.Message
	calls int
}

func (b *botStub) OnMessage(_ context.Context, msg bot.Message) bot.Response {
	b.calls++
	b.seen = append(b.seen, msg)
	return b.resp
}

type userTrackerStub struct{ seen map[int64]string }

func (u *userTrackerStub) Seen(_ context.Context, userID int64, username string) error {
	if u.seen == nil {
		u.seen = map[int64]string{}
	}
	u.seen[userID] = username
	return nil
}

func runListener(t *testing.T, l *TelegramListener, stub *tbAPIStub, updates ...tbapi.Update) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go func() {
		for _, u := range updates {
			stub.updatesCh <- u
		}
		// give the loop time to drain before the context cancels
	}()
	err := l.Do(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func msgUpdate(chatID int64, msgID int, userID int64, username, text string) tbapi.Update {
	return tbapi.Update{Message: &tbapi.Message{
		MessageID: msgID,
		From:      &tbapi.User{ID: userID, UserName: username},
		Chat:      tbapi.Chat{ID: chatID},
		Text:      text,
	}}
}

func TestListener_ForwardsToBot(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{}
	l := &TelegramListener{TbAPI: stub, Bot: b, History: guard.NewHistory(100)}

	runListener(t, l, stub, msgUpdate(123, 1, 5, "alice", "hello"))

	require.Len(t, b.seen, 1)
	assert.Equal(t, "hello", b.seen[0].Text)
	assert.Equal(t, int64(123), b.seen[0].ChatID)
}

func TestListener_TracksHistoryAndUsers(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{}
	users := &userTrackerStub{}
	history := guard.NewHistory(100)
	l := &TelegramListener{TbAPI: stub, Bot: b, History: history, Users: users}

	runListener(t, l, stub,
		msgUpdate(123, 1, 5, "Alice", "one"),
		msgUpdate(123, 2, 6, "", "two"))

	recs := history.Recent(123, nil, 10)
	require.Len(t, recs, 2)
	assert.Equal(t, "unknown", recs[0].Username, "missing username recorded as unknown")
	assert.Equal(t, "alice", recs[1].Username, "username lowercased")
	assert.Equal(t, "Alice", users.seen[5])
}

func TestListener_SkipsEmptyAndNonMessages(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{}
	l := &TelegramListener{TbAPI: stub, Bot: b}

	runListener(t, l, stub,
		tbapi.Update{},
		msgUpdate(123, 1, 5, "alice", "   "),
		msgUpdate(123, 2, 5, "alice", "real"))

	require.Len(t, b.seen, 1)
	assert.Equal(t, "real", b.seen[0].Text)
}

func TestListener_AppliesDeleteResponse(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{resp: bot.Response{DeleteMessage: true}}
	var audited []*bot.Response
	l := &TelegramListener{TbAPI: stub, Bot: b,
		AuditLogger: AuditLoggerFunc(func(_ *bot.Message, resp *bot.Response) { audited = append(audited, resp) })}

	runListener(t, l, stub, msgUpdate(123, 42, 5, "alice", "bad message"))

	assert.Equal(t, []int{42}, stub.deletedIDs())
	assert.Len(t, audited, 1, "enforcement recorded in audit log")
}

func TestListener_AppliesBurstAndMute(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{resp: bot.Response{
		DeleteMessages: []int{40, 41, 42},
		MuteInterval:   15 * time.Minute,
		User:           bot.User{ID: 5, Username: "alice"},
	}}
	l := &TelegramListener{TbAPI: stub, Bot: b}

	runListener(t, l, stub, msgUpdate(123, 42, 5, "alice", "flood"))

	assert.Equal(t, []int{40, 41, 42}, stub.deletedIDs())

	var muted bool
	for _, r := range stub.requests() {
		if restrict, ok := r.(tbapi.RestrictChatMemberConfig); ok {
			muted = true
			assert.Equal(t, int64(5), restrict.UserID)
		}
	}
	assert.True(t, muted, "mute request issued")
}

func TestListener_AppliesReaction(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{resp: bot.Response{ReactEmoji: "❤"}}
	audits := 0
	l := &TelegramListener{TbAPI: stub, Bot: b,
		AuditLogger: AuditLoggerFunc(func(*bot.Message, *bot.Response) { audits++ })}

	runListener(t, l, stub, msgUpdate(123, 42, 5, "alice", "شاطرة"))

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	_, ok := reqs[0].(tbapi.SetMessageReactionConfig)
	assert.True(t, ok)
	assert.Zero(t, audits, "reactions are not enforcements")
}

func TestListener_SendsReply(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{resp: bot.Response{Text: "نعم", Send: true, ReplyTo: 42}}
	l := &TelegramListener{TbAPI: stub, Bot: b}

	runListener(t, l, stub, msgUpdate(123, 42, 5, "alice", "بنتي"))

	texts := stub.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "نعم", texts[0])
}

func TestListener_UnknownCommandGoesThroughPipeline(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{}
	l := &TelegramListener{TbAPI: stub, Bot: b, Commands: newTestCommands(t, stub)}

	runListener(t, l, stub,
		msgUpdate(123, 1, 5, "alice", "/ping"),
		msgUpdate(123, 2, 5, "alice", "/notacommand badword"))

	// recognized command consumed, unrecognized one still moderated
	require.Len(t, b.seen, 1)
	assert.Equal(t, "/notacommand badword", b.seen[0].Text)
}

func TestListener_EditedMessagesTrackedNotEvaluated(t *testing.T) {
	stub := newTbAPIStub()
	b := &botStub{}
	history := guard.NewHistory(100)
	l := &TelegramListener{TbAPI: stub, Bot: b, History: history}

	edited := tbapi.Update{EditedMessage: &tbapi.Message{
		MessageID: 7,
		From:      &tbapi.User{ID: 5, UserName: "alice"},
		Chat:      tbapi.Chat{ID: 123},
		Text:      "edited text",
	}}
	runListener(t, l, stub, edited)

	assert.Zero(t, b.calls, "edits don't go through the pipeline")
	assert.Len(t, history.Recent(123, nil, 10), 1, "edits still tracked for clears")
}
