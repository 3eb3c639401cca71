// Package events provides the telegram event loop and all the high-level
// handlers. It parses updates, feeds messages to the moderation pipeline,
// executes the resulting enforcements (deletes, mutes, reactions) and
// dispatches the command surface.
package events

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/go-multierror"

	"github.com/mfarraj/tg-guardian/app/bot"
	"github.com/mfarraj/tg-guardian/lib/guard"
)

// deleteDelay is the pause between consecutive delete calls on bulk removals,
// keeps the bot under the telegram rate limits without a retry layer.
const deleteDelay = 50 * time.Millisecond

// UserTracker records observed users, for @username resolution in commands.
type UserTracker interface {
	Seen(ctx context.Context, userID int64, username string) error
}

// TelegramListener listens to tg updates, forwards messages to the pipeline
// and executes the resulting responses. Not thread safe.
type TelegramListener struct {
	TbAPI       TbAPI
	Bot         Bot
	AuditLogger AuditLogger
	Commands    *Commands
	History     *guard.History
	Users       UserTracker
}

// Do process all events, blocked call
func (l *TelegramListener) Do(ctx context.Context) error {
	log.Printf("[INFO] start telegram listener")

	u := tbapi.NewUpdate(0)
	u.Timeout = 60

	updates := l.TbAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram update chan closed")
			}

			msg := update.Message
			if msg == nil {
				msg = update.EditedMessage
			}
			if msg == nil {
				continue
			}
			if msg.Chat.ID == 0 {
				log.Print("[DEBUG] ignoring message not from chat")
				continue
			}

			l.trackMessage(ctx, msg)

			if update.EditedMessage != nil {
				continue // edits are tracked for bulk clears but not re-evaluated
			}

			if strings.HasPrefix(msg.Text, "/") && l.Commands != nil {
				handled, err := l.Commands.Handle(ctx, msg)
				if err != nil {
					log.Printf("[WARN] failed to process command %q: %v", msg.Text, err)
				}
				if handled {
					continue
				}
				// unknown commands go through the regular checks
			}

			if err := l.procEvent(ctx, msg); err != nil {
				log.Printf("[WARN] failed to process update: %v", err)
			}
		}
	}
}

// trackMessage records the message in the history buffer and the sender in the
// known users table. Both feed moderation commands, not the pipeline itself.
func (l *TelegramListener) trackMessage(ctx context.Context, msg *tbapi.Message) {
	if msg.From == nil {
		return
	}
	username := "unknown"
	if msg.From.UserName != "" {
		username = strings.ToLower(msg.From.UserName)
	}
	if l.History != nil {
		l.History.Push(guard.HistoryRecord{
			ChatID:   msg.Chat.ID,
			MsgID:    msg.MessageID,
			UserID:   msg.From.ID,
			Username: username,
		})
	}
	if l.Users != nil {
		if err := l.Users.Seen(ctx, msg.From.ID, msg.From.UserName); err != nil {
			log.Printf("[WARN] failed to record user %d: %v", msg.From.ID, err)
		}
	}
}

func (l *TelegramListener) procEvent(ctx context.Context, tbMsg *tbapi.Message) error {
	msg := transform(tbMsg)
	if strings.TrimSpace(msg.Text) == "" && msg.StickerSetName == "" {
		return nil
	}

	log.Printf("[DEBUG] incoming msg: %+v", strings.ReplaceAll(msg.Text, "\n", " "))
	resp := l.Bot.OnMessage(ctx, *msg)
	return l.applyResponse(msg, resp)
}

// applyResponse executes the pipeline verdict: reply, reaction, deletes and
// mute. Failures of individual remote calls are aggregated, a failed delete
// never prevents the following ones.
func (l *TelegramListener) applyResponse(msg *bot.Message, resp bot.Response) error {
	errs := new(multierror.Error)

	if resp.Send {
		if err := l.sendBotResponse(resp, msg.ChatID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if resp.ReactEmoji != "" {
		// reactions are cosmetic, failure is logged and swallowed
		if err := setReaction(l.TbAPI, msg.ChatID, msg.ID, resp.ReactEmoji); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}

	enforced := false

	if resp.DeleteMessage {
		enforced = true
		if err := deleteMessage(l.TbAPI, msg.ChatID, msg.ID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if len(resp.DeleteMessages) > 0 {
		enforced = true
		for i, id := range resp.DeleteMessages {
			if i > 0 {
				time.Sleep(deleteDelay)
			}
			if err := deleteMessage(l.TbAPI, msg.ChatID, id); err != nil {
				log.Printf("[WARN] %v", err)
			}
		}
	}

	if resp.MuteInterval > 0 {
		enforced = true
		req := muteRequest{tbAPI: l.TbAPI, userID: resp.User.ID, chatID: msg.ChatID,
			duration: resp.MuteInterval, userName: resp.User.Username}
		if err := muteUser(req); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to mute %s: %w", bot.DisplayName(*msg), err))
		}
	}

	if enforced && l.AuditLogger != nil {
		l.AuditLogger.Save(msg, &resp)
	}

	return errs.ErrorOrNil()
}

// sendBotResponse sends bot's answer to tg channel
func (l *TelegramListener) sendBotResponse(resp bot.Response, chatID int64) error {
	if !resp.Send {
		return nil
	}

	log.Printf("[DEBUG] bot response - %+v, reply-to:%d", strings.ReplaceAll(resp.Text, "\n", "\\n"), resp.ReplyTo)
	tbMsg := tbapi.NewMessage(chatID, resp.Text)
	tbMsg.ParseMode = tbapi.ModeMarkdown
	if resp.ReplyTo != 0 {
		tbMsg.ReplyParameters = tbapi.ReplyParameters{MessageID: resp.ReplyTo}
	}

	if err := send(tbMsg, l.TbAPI); err != nil {
		return fmt.Errorf("can't send message to telegram %q: %w", resp.Text, err)
	}

	return nil
}
