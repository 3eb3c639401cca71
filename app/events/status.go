package events

import (
	"context"
	"fmt"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	cache "github.com/go-pkgz/expirable-cache/v3"
)

// statusTTL is how long a member status stays cached. Promotions and demotions
// done through the bot invalidate the entry immediately.
const statusTTL = 5 * time.Minute

// StatusFetcher resolves chat member statuses with a small TTL cache, so the
// pipeline doesn't hit the telegram api for every message.
type StatusFetcher struct {
	tbAPI TbAPI
	cache cache.Cache[string, tbapi.ChatMember]
}

// NewStatusFetcher creates a fetcher for the given api client.
func NewStatusFetcher(tbAPI TbAPI) *StatusFetcher {
	return &StatusFetcher{
		tbAPI: tbAPI,
		cache: cache.NewCache[string, tbapi.ChatMember]().WithMaxKeys(10000).WithTTL(statusTTL),
	}
}

// Member returns the chat member info, cached.
func (s *StatusFetcher) Member(chatID, userID int64) (tbapi.ChatMember, error) {
	key := fmt.Sprintf("%d:%d", chatID, userID)
	if member, ok := s.cache.Get(key); ok {
		return member, nil
	}

	member, err := s.tbAPI.GetChatMember(tbapi.GetChatMemberConfig{
		ChatConfigWithUser: tbapi.ChatConfigWithUser{
			ChatConfig: tbapi.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return tbapi.ChatMember{}, fmt.Errorf("failed to get member %d of chat %d: %w", userID, chatID, err)
	}
	s.cache.Set(key, member, statusTTL)
	return member, nil
}

// CanModerate reports whether the user may moderate the chat: the chat
// creator always, an administrator only with delete rights.
func (s *StatusFetcher) CanModerate(_ context.Context, chatID, userID int64) (bool, error) {
	member, err := s.Member(chatID, userID)
	if err != nil {
		return false, err
	}
	if member.IsCreator() {
		return true, nil
	}
	return member.IsAdministrator() && member.CanDeleteMessages, nil
}

// Invalidate drops the cached status for the user, called after promotions,
// demotions and kicks done through the bot.
func (s *StatusFetcher) Invalidate(chatID, userID int64) {
	s.cache.Invalidate(fmt.Sprintf("%d:%d", chatID, userID))
}
