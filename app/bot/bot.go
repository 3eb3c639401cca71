// Package bot implements the message evaluation pipeline and its response
// types. The pipeline is transport-agnostic, it consumes normalized Message
// records and produces a Response describing the enforcement or reply to make.
package bot

import (
	"fmt"
	"strings"
	"time"
)

// Response describes bot's reaction on a particular message
type Response struct {
	Text           string        // reply text, sent as markdown with a plain-text fallback
	Send           bool          // status
	ReplyTo        int           // message to reply to, if 0 then no reply but common message
	DeleteMessage  bool          // delete the evaluated message
	DeleteMessages []int         // extra message ids to delete, set on a spam burst
	MuteInterval   time.Duration // user muting interval, 0 means no mute
	User           User          // user to mute
	ReactEmoji     string        // emoji reaction to set on the message instead of replying
}

// Message is primary record to pass data from/to bots
type Message struct {
	ID             int
	From           User
	ChatID         int64
	Sent           time.Time
	Text           string `json:",omitempty"`
	StickerSetName string `json:",omitempty"`
	ReplyTo        *ReplyTo
}

// ReplyTo holds the referenced message info for replies
type ReplyTo struct {
	From User
	Text string `json:",omitempty"`
	ID   int
}

// User defines user info of the Message
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"user_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// DisplayName returns user's display name or username or id
func DisplayName(msg Message) string {
	displayUsername := msg.From.DisplayName
	if displayUsername == "" {
		displayUsername = msg.From.Username
	}
	if displayUsername == "" {
		displayUsername = fmt.Sprintf("%d", msg.From.ID)
	}
	return strings.TrimSpace(displayUsername)
}
