package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mfarraj/tg-guardian/app/storage"
	"github.com/mfarraj/tg-guardian/lib/guard"
)

// SettingsReader provides per-chat tunables for the pipeline.
type SettingsReader interface {
	Get(ctx context.Context, chatID int64) (storage.ChatSettings, error)
}

// PermsReader reports whether chat admins bypass moderation.
type PermsReader interface {
	Allowed(ctx context.Context, chatID int64) (bool, error)
}

// BlockedChecker reports whether a sticker set is blocked in a chat.
type BlockedChecker interface {
	IsBlocked(ctx context.Context, chatID int64, setName string) (bool, error)
}

// CensoredReader provides the censored vocabulary of a chat.
type CensoredReader interface {
	List(ctx context.Context, chatID int64) ([]guard.CensoredWord, error)
}

// StatusChecker reports whether a user may moderate a chat, i.e. is the
// creator or an administrator with delete rights.
type StatusChecker interface {
	CanModerate(ctx context.Context, chatID, userID int64) (bool, error)
}

// Moderator runs every incoming message through the ordered checks: spam
// window, sticker block, censored vocabulary, classifier, auto-responses.
// The first check producing an enforcement short-circuits the rest.
type Moderator struct {
	ownerID    int64
	tracker    *guard.SpamTracker
	classifier *guard.Classifier
	settings   SettingsReader
	perms      PermsReader
	blocked    BlockedChecker
	censored   CensoredReader
	status     StatusChecker
	responder  *Responder

	timeNow func() time.Time // test injection
}

// ModeratorParams groups the dependencies of a Moderator.
type ModeratorParams struct {
	OwnerID    int64
	Tracker    *guard.SpamTracker
	Classifier *guard.Classifier
	Settings   SettingsReader
	Perms      PermsReader
	Blocked    BlockedChecker
	Censored   CensoredReader
	Status     StatusChecker
	Responder  *Responder // nil disables auto-responses
}

// NewModerator creates a moderator with the given dependencies.
func NewModerator(params ModeratorParams) *Moderator {
	return &Moderator{
		ownerID:    params.OwnerID,
		tracker:    params.Tracker,
		classifier: params.Classifier,
		settings:   params.Settings,
		perms:      params.Perms,
		blocked:    params.Blocked,
		censored:   params.Censored,
		status:     params.Status,
		responder:  params.Responder,
		timeNow:    time.Now,
	}
}

// OnMessage runs the pipeline for a single message and returns the resulting
// enforcement or reply. A zero-value Response means the message passed clean.
func (m *Moderator) OnMessage(ctx context.Context, msg Message) Response {
	settings := m.chatSettings(ctx, msg.ChatID)

	// spam window applies to everyone but the owner, even admins
	if settings.AntispamEnabled && msg.From.ID != m.ownerID {
		burst, spam := m.tracker.Check(msg.ChatID, msg.From.ID, msg.ID, m.timeNow(), settings.SpamLimit)
		if spam {
			log.Printf("[INFO] spam burst from %q in chat %d, deleting %d messages", DisplayName(msg), msg.ChatID, len(burst))
			return Response{
				DeleteMessages: burst,
				MuteInterval:   time.Duration(settings.MutePenaltyMin) * time.Minute,
				User:           msg.From,
			}
		}
	}

	bypass := m.canBypass(ctx, msg)

	if msg.StickerSetName != "" && !bypass {
		blocked, err := m.blocked.IsBlocked(ctx, msg.ChatID, strings.ToLower(msg.StickerSetName))
		if err != nil {
			log.Printf("[WARN] failed to check sticker set %q: %v", msg.StickerSetName, err)
		}
		if blocked {
			log.Printf("[INFO] blocked sticker set %q from %q in chat %d", msg.StickerSetName, DisplayName(msg), msg.ChatID)
			return Response{DeleteMessage: true}
		}
	}

	if msg.Text != "" && !bypass {
		if resp, removed := m.checkVocabulary(ctx, msg); removed {
			return resp
		}
		if settings.AIEnabled && m.classifier != nil {
			if score := m.classifier.Score(msg.Text); score > settings.AIThreshold {
				log.Printf("[INFO] classifier removed message %d from %q in chat %d, score %.1f",
					msg.ID, DisplayName(msg), msg.ChatID, score)
				return Response{DeleteMessage: true}
			}
		}
	}

	if msg.Text != "" && m.responder != nil {
		if resp, matched := m.responder.Match(msg, msg.From.ID == m.ownerID); matched {
			return resp
		}
	}

	return Response{}
}

func (m *Moderator) checkVocabulary(ctx context.Context, msg Message) (Response, bool) {
	entries, err := m.censored.List(ctx, msg.ChatID)
	if err != nil {
		log.Printf("[WARN] failed to load censored words for chat %d: %v", msg.ChatID, err)
		return Response{}, false
	}
	normalized := guard.Normalize(strings.ToLower(msg.Text))
	if word, matched := guard.MatchCensored(normalized, entries); matched {
		log.Printf("[INFO] censored word %q matched message %d from %q in chat %d", word.Word, msg.ID, DisplayName(msg), msg.ChatID)
		return Response{DeleteMessage: true}, true
	}
	return Response{}, false
}

// canBypass reports whether the sender skips sticker, vocabulary and
// classifier checks. The owner always does, admins with delete rights only
// while the chat's bypass flag is on. Lookup failures fall back to no bypass.
func (m *Moderator) canBypass(ctx context.Context, msg Message) bool {
	if msg.From.ID == m.ownerID {
		return true
	}
	allowed, err := m.perms.Allowed(ctx, msg.ChatID)
	if err != nil {
		log.Printf("[WARN] failed to get admin perms for chat %d: %v", msg.ChatID, err)
		return false
	}
	if !allowed {
		return false
	}
	canModerate, err := m.status.CanModerate(ctx, msg.ChatID, msg.From.ID)
	if err != nil {
		log.Printf("[WARN] failed to get member status for user %d in chat %d: %v", msg.From.ID, msg.ChatID, err)
		return false
	}
	return canModerate
}

// chatSettings loads the chat tunables, falling back to defaults on error.
func (m *Moderator) chatSettings(ctx context.Context, chatID int64) storage.ChatSettings {
	settings, err := m.settings.Get(ctx, chatID)
	if err != nil {
		log.Printf("[WARN] failed to load settings for chat %d: %v", chatID, err)
		return storage.ChatSettings{
			ChatID:         chatID,
			SpamLimit:      storage.DefaultSpamLimit,
			MutePenaltyMin: storage.DefaultMutePenaltyMin,
			AIThreshold:    storage.DefaultAIThreshold,
		}
	}
	return settings
}
