package events

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/mfarraj/tg-guardian/app/bot"
)

// TbAPI is an interface for telegram bot API, only subset of methods used
type TbAPI interface {
	GetUpdatesChan(config tbapi.UpdateConfig) tbapi.UpdatesChannel
	Send(c tbapi.Chattable) (tbapi.Message, error)
	Request(c tbapi.Chattable) (*tbapi.APIResponse, error)
	GetChat(config tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error)
	GetChatMember(config tbapi.GetChatMemberConfig) (tbapi.ChatMember, error)
}

// AuditLogger records enforcement actions
type AuditLogger interface {
	Save(msg *bot.Message, response *bot.Response)
}

// AuditLoggerFunc is a function that implements AuditLogger interface
type AuditLoggerFunc func(msg *bot.Message, response *bot.Response)

// Save is a function that implements AuditLogger interface
func (f AuditLoggerFunc) Save(msg *bot.Message, response *bot.Response) {
	f(msg, response)
}

// Bot is an interface for the message evaluation pipeline.
type Bot interface {
	OnMessage(ctx context.Context, msg bot.Message) bot.Response
}

func escapeMarkDownV1Text(text string) string {
	escSymbols := []string{"_", "*", "`", "["}
	for _, esc := range escSymbols {
		text = strings.ReplaceAll(text, esc, "\\"+esc)
	}
	return text
}

// send a message to the telegram as markdown first and if failed - as plain text
func send(tbMsg tbapi.Chattable, tbAPI TbAPI) error {
	withParseMode := func(tbMsg tbapi.Chattable, parseMode string) tbapi.Chattable {
		switch msg := tbMsg.(type) {
		case tbapi.MessageConfig:
			msg.ParseMode = parseMode
			msg.LinkPreviewOptions = tbapi.LinkPreviewOptions{IsDisabled: true}
			return msg
		case tbapi.EditMessageTextConfig:
			msg.ParseMode = parseMode
			msg.LinkPreviewOptions = tbapi.LinkPreviewOptions{IsDisabled: true}
			return msg
		}
		return tbMsg // don't touch other types
	}

	msg := withParseMode(tbMsg, tbapi.ModeMarkdown) // try markdown first
	if _, err := tbAPI.Send(msg); err != nil {
		log.Printf("[WARN] failed to send message as markdown, %v", err)
		msg = withParseMode(tbMsg, "") // try plain text
		if _, err := tbAPI.Send(msg); err != nil {
			return fmt.Errorf("can't send message to telegram: %w", err)
		}
	}
	return nil
}

// deleteMessage removes a single message, the bot must have delete rights
func deleteMessage(tbAPI TbAPI, chatID int64, msgID int) error {
	_, err := tbAPI.Request(tbapi.DeleteMessageConfig{
		BaseChatMessage: tbapi.BaseChatMessage{
			ChatConfig: tbapi.ChatConfig{ChatID: chatID},
			MessageID:  msgID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %d: %w", msgID, err)
	}
	return nil
}

// setReaction puts an emoji reaction on a message, instead of replying
func setReaction(tbAPI TbAPI, chatID int64, msgID int, emoji string) error {
	_, err := tbAPI.Request(tbapi.SetMessageReactionConfig{
		BaseChatMessage: tbapi.BaseChatMessage{
			ChatConfig: tbapi.ChatConfig{ChatID: chatID},
			MessageID:  msgID,
		},
		Reaction: []tbapi.ReactionType{{Type: "emoji", Emoji: emoji}},
	})
	if err != nil {
		return fmt.Errorf("failed to set reaction on message %d: %w", msgID, err)
	}
	return nil
}

type muteRequest struct {
	tbAPI TbAPI

	userID   int64
	chatID   int64
	duration time.Duration
	userName string
}

// The bot must be an administrator in the supergroup for this to work
// and must have the appropriate admin rights.
func muteUser(r muteRequest) error {
	// From Telegram Bot API documentation:
	// > If user is restricted for more than 366 days or less than 30 seconds from the current time,
	// > they are considered to be restricted forever.
	if r.duration < 30*time.Second {
		r.duration = 1 * time.Minute
	}

	resp, err := r.tbAPI.Request(tbapi.RestrictChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: r.chatID},
			UserID:     r.userID,
		},
		UntilDate: time.Now().Add(r.duration).Unix(),
		Permissions: &tbapi.ChatPermissions{
			CanSendMessages:      false,
			CanSendAudios:        false,
			CanSendDocuments:     false,
			CanSendPhotos:        false,
			CanSendVideos:        false,
			CanSendVideoNotes:    false,
			CanSendVoiceNotes:    false,
			CanSendOtherMessages: false,
			CanChangeInfo:        false,
			CanInviteUsers:       false,
			CanPinMessages:       false,
		},
	})
	if err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("response is not Ok: %v", string(resp.Result))
	}
	log.Printf("[INFO] %s muted by bot for %v", r.userName, r.duration)
	return nil
}

func transform(msg *tbapi.Message) *bot.Message {
	message := bot.Message{
		ID:   msg.MessageID,
		Sent: msg.Time(),
		Text: msg.Text,
	}

	message.ChatID = msg.Chat.ID

	if msg.From != nil {
		message.From = bot.User{
			ID:       msg.From.ID,
			Username: msg.From.UserName,
		}
	}

	if msg.From != nil && strings.TrimSpace(msg.From.FirstName) != "" {
		message.From.DisplayName = msg.From.FirstName
	}
	if msg.From != nil && strings.TrimSpace(msg.From.LastName) != "" {
		message.From.DisplayName += " " + msg.From.LastName
	}

	if msg.Sticker != nil {
		message.StickerSetName = msg.Sticker.SetName
	}

	if msg.ReplyToMessage != nil {
		message.ReplyTo = &bot.ReplyTo{
			ID:   msg.ReplyToMessage.MessageID,
			Text: msg.ReplyToMessage.Text,
		}
		if msg.ReplyToMessage.From != nil {
			message.ReplyTo.From = bot.User{
				ID:          msg.ReplyToMessage.From.ID,
				Username:    msg.ReplyToMessage.From.UserName,
				DisplayName: strings.TrimSpace(msg.ReplyToMessage.From.FirstName + " " + msg.ReplyToMessage.From.LastName),
			}
		}
	}

	if msg.Caption != "" && message.Text == "" {
		message.Text = msg.Caption
	}
	return &message
}
