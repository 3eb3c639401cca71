package events

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/mfarraj/tg-guardian/app/bot"
	"github.com/mfarraj/tg-guardian/app/storage"
	"github.com/mfarraj/tg-guardian/lib/guard"
)

// statusMsgTTL is how long bulk-clear status messages stay before self-delete
const statusMsgTTL = 2 * time.Second

// maxCustomTitleLen is the telegram limit for admin custom titles
const maxCustomTitleLen = 16

type authLevel int

// command authorization levels
const (
	authAny       authLevel = iota // anyone in the chat
	authModerator                  // chat creator, admin with delete rights, or the bot owner
	authOwner                      // the bot owner only
)

type command struct {
	auth    authLevel
	handler func(ctx context.Context, req *cmdRequest) error
}

// cmdRequest is a parsed slash command
type cmdRequest struct {
	msg    *tbapi.Message
	chatID int64
	userID int64
	args   []string
	raw    string // everything after the command name, original case
}

// Commands dispatches the slash-command surface through per-command
// authorization. Handlers reply with usage on malformed arguments and never
// mutate state in that case.
type Commands struct {
	tbAPI      TbAPI
	ownerID    int64
	status     *StatusFetcher
	settings   *storage.Settings
	perms      *storage.AdminPerms
	blocked    *storage.BlockedSets
	censored   *storage.CensoredWords
	promoted   *storage.PromotedAdmins
	users      *storage.KnownUsers
	samples    *guard.SampleStore
	classifier *guard.Classifier
	history    *guard.History

	table map[string]command
	sleep func(time.Duration) // test injection
}

// CommandsParams groups the dependencies of Commands.
type CommandsParams struct {
	TbAPI      TbAPI
	OwnerID    int64
	Status     *StatusFetcher
	Settings   *storage.Settings
	Perms      *storage.AdminPerms
	Blocked    *storage.BlockedSets
	Censored   *storage.CensoredWords
	Promoted   *storage.PromotedAdmins
	Users      *storage.KnownUsers
	Samples    *guard.SampleStore
	Classifier *guard.Classifier
	History    *guard.History
}

// NewCommands creates the command dispatcher with the full command table.
func NewCommands(params CommandsParams) *Commands {
	c := &Commands{
		tbAPI:      params.TbAPI,
		ownerID:    params.OwnerID,
		status:     params.Status,
		settings:   params.Settings,
		perms:      params.Perms,
		blocked:    params.Blocked,
		censored:   params.Censored,
		promoted:   params.Promoted,
		users:      params.Users,
		samples:    params.Samples,
		classifier: params.Classifier,
		history:    params.History,
		sleep:      time.Sleep,
	}
	c.table = map[string]command{
		"start": {authAny, c.cmdStart},
		"help":  {authAny, c.cmdHelp},
		"ping":  {authAny, c.cmdPing},

		"block":   {authModerator, c.cmdBlock},
		"unblock": {authModerator, c.cmdUnblock},
		"list":    {authModerator, c.cmdList},

		"censor":      {authModerator, c.cmdCensor},
		"uncensor":    {authModerator, c.cmdUncensor},
		"censor_list": {authModerator, c.cmdCensorList},

		"clear":        {authModerator, c.cmdClear},
		"clear_except": {authModerator, c.cmdClearExcept},

		"antispam_enable":  {authModerator, c.cmdAntispamEnable},
		"antispam_disable": {authModerator, c.cmdAntispamDisable},
		"antispam_limit":   {authModerator, c.cmdAntispamLimit},
		"antispam_penalty": {authModerator, c.cmdAntispamPenalty},

		"lb":           {authModerator, c.cmdLabelBad},
		"ln":           {authModerator, c.cmdLabelNormal},
		"lc":           {authModerator, c.cmdListLabels},
		"br_on":        {authModerator, c.cmdAIOn},
		"br_off":       {authModerator, c.cmdAIOff},
		"br_threshold": {authModerator, c.cmdAIThreshold},
		"bd":           {authModerator, c.cmdBadness},

		"promote": {authOwner, c.cmdPromote},
		"demote":  {authOwner, c.cmdDemote},
		"kick":    {authOwner, c.cmdKick},

		"admins_enable":  {authOwner, c.cmdAdminsEnable},
		"admins_disable": {authOwner, c.cmdAdminsDisable},
	}
	return c
}

// Handle parses and dispatches a slash command message. It reports whether the
// message was dispatched to a handler. Unknown commands are left unhandled,
// they may belong to other bots in the chat, and the caller should run them
// through the regular moderation pipeline.
func (c *Commands) Handle(ctx context.Context, msg *tbapi.Message) (bool, error) {
	if msg.From == nil {
		return false, nil
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return false, nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	cmd, ok := c.table[name]
	if !ok {
		return false, nil
	}

	req := &cmdRequest{
		msg:    msg,
		chatID: msg.Chat.ID,
		userID: msg.From.ID,
		args:   fields[1:],
		raw:    strings.TrimSpace(strings.TrimPrefix(msg.Text, fields[0])),
	}

	if rejection := c.authorize(ctx, cmd.auth, req); rejection != "" {
		return true, c.reply(req, rejection)
	}

	log.Printf("[INFO] command /%s from %d in chat %d", name, req.userID, req.chatID)
	return true, cmd.handler(ctx, req)
}

// authorize returns an empty string when the sender may run the command, or
// the rejection text to reply with.
func (c *Commands) authorize(ctx context.Context, level authLevel, req *cmdRequest) string {
	switch level {
	case authAny:
		return ""
	case authOwner:
		if req.userID == c.ownerID {
			return ""
		}
		return "❌ This command is owner-only."
	case authModerator:
		if req.userID == c.ownerID {
			return ""
		}
		ok, err := c.status.CanModerate(ctx, req.chatID, req.userID)
		if err != nil {
			log.Printf("[WARN] failed to check moderator status: %v", err)
		}
		if ok {
			return ""
		}
		return "❌ You need to be an admin with message deletion permission."
	}
	return "❌ You are not allowed to run this command."
}

func (c *Commands) reply(req *cmdRequest, text string) error {
	tbMsg := tbapi.NewMessage(req.chatID, text)
	tbMsg.ReplyParameters = tbapi.ReplyParameters{MessageID: req.msg.MessageID}
	return send(tbMsg, c.tbAPI)
}

// basic commands

func (c *Commands) cmdStart(_ context.Context, req *cmdRequest) error {
	text := "🎭 *Moderation Bot*\n\n" +
		"*Basic Commands:*\n" +
		"⚡ `/ping` - Check bot response time\n" +
		"ℹ️ `/help` - Show detailed help\n\n" +
		"*Moderation:*\n" +
		"🧹 `/clear` 10 - Clear last N messages\n" +
		"🧹 `/clear_except` @user 10 - Clear except user\n\n" +
		"*Sticker Control:*\n" +
		"🚫 `/block` <link> - Block sticker set\n" +
		"✅ `/unblock` <name> - Unblock sticker set\n" +
		"📋 `/list` - List blocked sets\n\n" +
		"*Word Filter:*\n" +
		"🛡️ `/censor` word - Add censored word\n" +
		"🛡️ `/censor` \"exact phrase\" - Strict match\n" +
		"🛡️ `/censor_list` - Show censored words\n\n" +
		"*Anti-Spam:*\n" +
		"🚨 `/antispam_enable` - Enable\n" +
		"😴 `/antispam_disable` - Disable\n\n" +
		"*Admin Settings:* (Owner Only)\n" +
		"🔓 `/admins_enable` - Admins bypass filters\n" +
		"🔒 `/admins_disable` - Admins follow rules"
	return c.reply(req, text)
}

func (c *Commands) cmdHelp(_ context.Context, req *cmdRequest) error {
	text := "📚 *Detailed Command Guide*\n\n" +
		"*Message Clearing:*\n" +
		"`/clear 20` - Delete last 20 messages\n" +
		"`/clear_except @user1 @user2 15` - Delete 15 messages except from specified users\n\n" +
		"*Sticker Blocking:*\n" +
		"`/block https://t.me/addstickers/SetName` - Block by link\n" +
		"`/block SetName` - Block by name\n" +
		"`/unblock SetName` - Unblock specific set\n" +
		"`/unblock all` - Unblock all sets\n" +
		"`/list` - Show all blocked sets\n\n" +
		"*Word Censoring:*\n" +
		"`/censor word1 word2` - Smart match (word boundaries)\n" +
		"`/censor \"exact phrase\"` - Strict match\n" +
		"`/uncensor word` - Remove a word, `/uncensor all` - Remove all\n" +
		"`/censor_list` - View all censored words\n\n" +
		"*Anti-Spam Protection:*\n" +
		"Deletes bursts over the limit and mutes the sender.\n" +
		"`/antispam_enable`, `/antispam_disable`, `/antispam_limit N`, `/antispam_penalty M`\n\n" +
		"*AI Moderation:*\n" +
		"`/lb <text>` - Label as bad, `/ln <text>` - Label as normal (or reply to a message)\n" +
		"`/lc` - Show collected labels, `/bd <text>` - Debug badness score\n" +
		"`/br_on`, `/br_off` - Toggle, `/br_threshold 75` - Set removal threshold\n\n" +
		"*Admin Bypass:*\n" +
		"When enabled, admins can bypass sticker blocks and word filters.\n" +
		"Owner-only: `/admins_enable` and `/admins_disable`"
	return c.reply(req, text)
}

func (c *Commands) cmdPing(_ context.Context, req *cmdRequest) error {
	started := time.Now()
	sent, err := c.tbAPI.Send(tbapi.NewMessage(req.chatID, "🏓 Pinging..."))
	if err != nil {
		return fmt.Errorf("failed to send ping message: %w", err)
	}
	latency := time.Since(started).Milliseconds()
	return send(tbapi.NewEditMessageText(req.chatID, sent.MessageID, fmt.Sprintf("🏓 Pong! `%dms`", latency)), c.tbAPI)
}

// sticker set commands

// stickerSetName extracts a set name from a share link or takes a bare name,
// lowercased either way.
func stickerSetName(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "addstickers/"); idx >= 0 {
		raw = raw[idx+len("addstickers/"):]
		if q := strings.Index(raw, "?"); q >= 0 {
			raw = raw[:q]
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func (c *Commands) cmdBlock(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/block <sticker_set_link_or_name>`")
	}
	setName := stickerSetName(req.raw)
	if setName == "" {
		return c.reply(req, "❌ Usage: `/block <sticker_set_link_or_name>`")
	}
	if _, err := c.blocked.Add(ctx, req.chatID, setName); err != nil {
		log.Printf("[WARN] failed to block sticker set: %v", err)
		return c.reply(req, "❌ Failed to block sticker set.")
	}
	return c.reply(req, fmt.Sprintf("✅ Blocked sticker set: `%s`", setName))
}

func (c *Commands) cmdUnblock(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/unblock <name|all>`")
	}

	if strings.EqualFold(req.args[0], "all") {
		count, err := c.blocked.RemoveAll(ctx, req.chatID)
		if err != nil {
			return fmt.Errorf("failed to unblock all sets: %w", err)
		}
		if count == 0 {
			return c.reply(req, "⚠️ No sticker sets to unblock.")
		}
		return c.reply(req, "✅ All blocked sticker sets removed.")
	}

	setName := stickerSetName(req.raw)
	removed, err := c.blocked.Remove(ctx, req.chatID, setName)
	if err != nil {
		return fmt.Errorf("failed to unblock set: %w", err)
	}
	if !removed {
		return c.reply(req, fmt.Sprintf("⚠️ Sticker set `%s` is not blocked.", setName))
	}
	return c.reply(req, fmt.Sprintf("✅ Unblocked sticker set: `%s`", setName))
}

func (c *Commands) cmdList(ctx context.Context, req *cmdRequest) error {
	sets, err := c.blocked.List(ctx, req.chatID)
	if err != nil {
		return fmt.Errorf("failed to list blocked sets: %w", err)
	}
	if len(sets) == 0 {
		return c.reply(req, "📋 No sticker sets are blocked in this chat.")
	}
	lines := make([]string, 0, len(sets))
	for _, s := range sets {
		lines = append(lines, fmt.Sprintf("• `%s`", s))
	}
	return c.reply(req, "🚫 *Blocked Sticker Sets:*\n\n"+strings.Join(lines, "\n"))
}

// vocabulary commands

var quotedPhraseRe = regexp.MustCompile(`"([^"]+)"`)

func (c *Commands) cmdCensor(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/censor word1 word2` or `/censor \"exact phrase\"`")
	}

	// quoted phrases are strict, everything else is smart
	added := 0
	for _, match := range quotedPhraseRe.FindAllStringSubmatch(req.raw, -1) {
		if err := c.censored.Add(ctx, req.chatID, strings.ToLower(match[1]), true); err != nil {
			return fmt.Errorf("failed to add strict word: %w", err)
		}
		added++
	}

	remaining := quotedPhraseRe.ReplaceAllString(req.raw, "")
	for _, word := range strings.FieldsFunc(remaining, func(r rune) bool { return unicode.IsSpace(r) || r == ',' }) {
		if err := c.censored.Add(ctx, req.chatID, strings.ToLower(word), false); err != nil {
			return fmt.Errorf("failed to add word: %w", err)
		}
		added++
	}

	if added == 0 {
		return c.reply(req, "❌ Usage: `/censor word1 word2` or `/censor \"exact phrase\"`")
	}
	return c.reply(req, "✅ Word filter updated.")
}

func (c *Commands) cmdUncensor(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/uncensor <word|all>`")
	}

	if strings.EqualFold(req.args[0], "all") {
		count, err := c.censored.RemoveAll(ctx, req.chatID)
		if err != nil {
			return fmt.Errorf("failed to remove all censored words: %w", err)
		}
		if count == 0 {
			return c.reply(req, "⚠️ No censored words to remove.")
		}
		return c.reply(req, "✅ All censored words removed.")
	}

	word := strings.ToLower(strings.Trim(req.raw, `" `))
	removed, err := c.censored.Remove(ctx, req.chatID, word)
	if err != nil {
		return fmt.Errorf("failed to remove censored word: %w", err)
	}
	if !removed {
		return c.reply(req, fmt.Sprintf("⚠️ Word `%s` is not censored.", word))
	}
	return c.reply(req, fmt.Sprintf("✅ Removed `%s` from the filter.", word))
}

func (c *Commands) cmdCensorList(ctx context.Context, req *cmdRequest) error {
	words, err := c.censored.List(ctx, req.chatID)
	if err != nil {
		return fmt.Errorf("failed to list censored words: %w", err)
	}
	if len(words) == 0 {
		return c.reply(req, "📋 No words are censored in this chat.")
	}
	lines := make([]string, 0, len(words))
	for _, w := range words {
		mode := "(Smart)"
		if w.Strict {
			mode = "(Strict)"
		}
		lines = append(lines, fmt.Sprintf("• `%s` %s", w.Word, mode))
	}
	return c.reply(req, "🛡️ *Censored Words:*\n\n"+strings.Join(lines, "\n"))
}

// bulk delete commands

func (c *Commands) cmdClear(ctx context.Context, req *cmdRequest) error {
	count := 10
	if len(req.args) > 0 {
		n, err := strconv.Atoi(req.args[0])
		if err != nil || n < 1 {
			return c.reply(req, "❌ Usage: `/clear <count>`")
		}
		count = n
	}
	return c.clearMessages(req, nil, count)
}

func (c *Commands) cmdClearExcept(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/clear_except @user1 @user2 <count>`")
	}

	var exclude []string
	count := 10
	for _, arg := range req.args {
		if strings.HasPrefix(arg, "@") {
			exclude = append(exclude, strings.ToLower(strings.TrimPrefix(arg, "@")))
			continue
		}
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			count = n
		}
	}
	if len(exclude) == 0 {
		return c.reply(req, "❌ Usage: `/clear_except @user1 @user2 <count>`")
	}
	return c.clearMessages(req, exclude, count)
}

// clearMessages removes up to count recent messages from the history buffer,
// skipping the excluded usernames. The command message goes first, delete
// failures on individual messages are skipped, the status message self-deletes.
func (c *Commands) clearMessages(req *cmdRequest, exclude []string, count int) error {
	if count > guard.MaxQueryLimit {
		count = guard.MaxQueryLimit
	}

	if err := deleteMessage(c.tbAPI, req.chatID, req.msg.MessageID); err != nil {
		log.Printf("[WARN] %v", err)
	}

	deleted := 0
	for i, rec := range c.history.Recent(req.chatID, exclude, count) {
		if rec.MsgID == req.msg.MessageID {
			continue // the command message is already gone
		}
		if i > 0 {
			c.sleep(deleteDelay)
		}
		if err := deleteMessage(c.tbAPI, req.chatID, rec.MsgID); err != nil {
			log.Printf("[WARN] %v", err)
			continue
		}
		deleted++
	}

	status := fmt.Sprintf("🗑️ Deleted %d messages.", deleted)
	if len(exclude) > 0 {
		status = fmt.Sprintf("🗑️ Deleted %d messages (except from %s).", deleted, strings.Join(exclude, ", "))
	}
	sent, err := c.tbAPI.Send(tbapi.NewMessage(req.chatID, status))
	if err != nil {
		return fmt.Errorf("failed to send status message: %w", err)
	}
	c.sleep(statusMsgTTL)
	if err := deleteMessage(c.tbAPI, req.chatID, sent.MessageID); err != nil {
		log.Printf("[WARN] %v", err)
	}
	return nil
}

// antispam commands

func (c *Commands) cmdAntispamEnable(ctx context.Context, req *cmdRequest) error {
	if err := c.settings.SetAntispam(ctx, req.chatID, true); err != nil {
		return fmt.Errorf("failed to enable antispam: %w", err)
	}
	settings, err := c.settings.Get(ctx, req.chatID)
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	return c.reply(req, fmt.Sprintf("🚨 Anti-Spam enabled (%d messages / %.0f seconds).",
		settings.SpamLimit, guard.SpamWindow.Seconds()))
}

func (c *Commands) cmdAntispamDisable(ctx context.Context, req *cmdRequest) error {
	if err := c.settings.SetAntispam(ctx, req.chatID, false); err != nil {
		return fmt.Errorf("failed to disable antispam: %w", err)
	}
	return c.reply(req, "😴 Anti-Spam disabled.")
}

func (c *Commands) cmdAntispamLimit(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/antispam_limit <messages>`")
	}
	limit, err := strconv.Atoi(req.args[0])
	if err != nil || limit < 1 {
		return c.reply(req, "❌ Usage: `/antispam_limit <messages>`")
	}
	if err := c.settings.SetSpamLimit(ctx, req.chatID, limit); err != nil {
		return fmt.Errorf("failed to set spam limit: %w", err)
	}
	return c.reply(req, fmt.Sprintf("✅ Spam limit set to %d messages per %.0f seconds.",
		limit, guard.SpamWindow.Seconds()))
}

func (c *Commands) cmdAntispamPenalty(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/antispam_penalty <minutes>`")
	}
	minutes, err := strconv.Atoi(req.args[0])
	if err != nil || minutes < 1 {
		return c.reply(req, "❌ Usage: `/antispam_penalty <minutes>`")
	}
	if err := c.settings.SetMutePenalty(ctx, req.chatID, minutes); err != nil {
		return fmt.Errorf("failed to set mute penalty: %w", err)
	}
	return c.reply(req, fmt.Sprintf("✅ Spam mute penalty set to %d minutes.", minutes))
}

// classifier commands

// labelText takes the label text from the command arguments or, when empty,
// from the replied-to message.
func (req *cmdRequest) labelText() string {
	if req.raw != "" {
		return req.raw
	}
	if req.msg.ReplyToMessage != nil {
		return req.msg.ReplyToMessage.Text
	}
	return ""
}

func (c *Commands) cmdLabelBad(ctx context.Context, req *cmdRequest) error {
	return c.addLabel(req, true)
}

func (c *Commands) cmdLabelNormal(ctx context.Context, req *cmdRequest) error {
	return c.addLabel(req, false)
}

func (c *Commands) addLabel(req *cmdRequest, isBad bool) error {
	text := req.labelText()
	if text == "" {
		return c.reply(req, "❌ Usage: `/lb <text>` or reply to a message with `/lb`")
	}

	added, err := c.samples.Add(text, isBad)
	if err != nil {
		return fmt.Errorf("failed to save label: %w", err)
	}
	if !added {
		return c.reply(req, "⚠️ Already labeled.")
	}

	c.retrain()

	kind := "bad"
	if !isBad {
		kind = "normal"
	}
	if !c.classifier.Trained() {
		return c.reply(req, fmt.Sprintf("✅ Labeled as %s. Need at least 2 examples of each kind to train.", kind))
	}
	return c.reply(req, fmt.Sprintf("✅ Labeled as %s, model retrained.", kind))
}

// retrain refits the model on the current labels and persists the artifact.
func (c *Commands) retrain() {
	bad, good := c.samples.Labels()
	c.classifier.Train(bad, good)
	if !c.classifier.Trained() {
		return
	}
	if err := c.samples.SaveModel(c.classifier.Model()); err != nil {
		log.Printf("[WARN] failed to save model: %v", err)
	}
}

func (c *Commands) cmdListLabels(_ context.Context, req *cmdRequest) error {
	bad, good := c.samples.Labels()
	state := "not trained"
	if c.classifier.Trained() {
		state = "trained"
	}
	return c.reply(req, fmt.Sprintf("🧠 Collected labels: %d bad, %d normal. Model is %s.", len(bad), len(good), state))
}

func (c *Commands) cmdAIOn(ctx context.Context, req *cmdRequest) error {
	if err := c.settings.SetAIEnabled(ctx, req.chatID, true); err != nil {
		return fmt.Errorf("failed to enable ai moderation: %w", err)
	}
	settings, err := c.settings.Get(ctx, req.chatID)
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	return c.reply(req, fmt.Sprintf("🤖 AI moderation enabled (threshold %.0f%%).", settings.AIThreshold))
}

func (c *Commands) cmdAIOff(ctx context.Context, req *cmdRequest) error {
	if err := c.settings.SetAIEnabled(ctx, req.chatID, false); err != nil {
		return fmt.Errorf("failed to disable ai moderation: %w", err)
	}
	return c.reply(req, "🤖 AI moderation disabled.")
}

func (c *Commands) cmdAIThreshold(ctx context.Context, req *cmdRequest) error {
	if len(req.args) == 0 {
		return c.reply(req, "❌ Usage: `/br_threshold <0-100>`")
	}
	threshold, err := strconv.ParseFloat(req.args[0], 64)
	if err != nil || threshold < 0 || threshold > 100 {
		return c.reply(req, "❌ Usage: `/br_threshold <0-100>`")
	}
	if err := c.settings.SetAIThreshold(ctx, req.chatID, threshold); err != nil {
		return fmt.Errorf("failed to set ai threshold: %w", err)
	}
	return c.reply(req, fmt.Sprintf("✅ AI threshold set to %.0f%%.", threshold))
}

func (c *Commands) cmdBadness(_ context.Context, req *cmdRequest) error {
	text := req.labelText()
	if text == "" {
		return c.reply(req, "❌ Usage: `/bd <text>` or reply to a message with `/bd`")
	}
	score := c.classifier.Score(text)
	return c.reply(req, fmt.Sprintf("🧪 Badness: `%.1f%%`", score))
}

// membership commands

// resolveTarget finds the user a membership command applies to: the
// replied-to message sender, a numeric id argument or a known @username.
// Returns the remaining args, they carry the custom title for promote.
func (c *Commands) resolveTarget(ctx context.Context, req *cmdRequest) (target bot.User, rest []string) {
	if req.msg.ReplyToMessage != nil && req.msg.ReplyToMessage.From != nil {
		from := req.msg.ReplyToMessage.From
		return bot.User{ID: from.ID, Username: from.UserName,
			DisplayName: strings.TrimSpace(from.FirstName + " " + from.LastName)}, req.args
	}

	if len(req.args) == 0 {
		return bot.User{}, nil
	}

	arg := req.args[0]
	var userID int64
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		userID = id
	} else if strings.HasPrefix(arg, "@") {
		id, err := c.users.IDOf(ctx, arg)
		if err != nil {
			log.Printf("[WARN] failed to resolve %s: %v", arg, err)
		}
		userID = id
	}
	if userID == 0 {
		return bot.User{}, nil
	}

	member, err := c.status.Member(req.chatID, userID)
	if err != nil || member.User == nil {
		log.Printf("[WARN] failed to look up member %d: %v", userID, err)
		return bot.User{}, nil
	}
	return bot.User{ID: member.User.ID, Username: member.User.UserName,
		DisplayName: strings.TrimSpace(member.User.FirstName + " " + member.User.LastName)}, req.args[1:]
}

func targetName(u bot.User) string {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return escapeMarkDownV1Text(name)
}

func (c *Commands) cmdPromote(ctx context.Context, req *cmdRequest) error {
	target, rest := c.resolveTarget(ctx, req)
	if target.ID == 0 {
		return c.reply(req, "❌ Please reply to a user or mention them to promote.")
	}

	title := "Admin"
	if len(rest) > 0 {
		title = strings.Join(rest, " ")
	}
	if runes := []rune(title); len(runes) > maxCustomTitleLen {
		title = string(runes[:maxCustomTitleLen])
	}

	if _, err := c.tbAPI.Request(tbapi.PromoteChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: req.chatID},
			UserID:     target.ID,
		},
		CanManageChat:       true,
		CanDeleteMessages:   true,
		CanInviteUsers:      true,
		CanRestrictMembers:  true,
		CanPinMessages:      true,
		CanManageVideoChats: true,
	}); err != nil {
		return c.reply(req, fmt.Sprintf("❌ Failed to promote: %s", escapeMarkDownV1Text(err.Error())))
	}

	if _, err := c.tbAPI.Request(tbapi.SetChatAdministratorCustomTitle{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: req.chatID},
			UserID:     target.ID,
		},
		CustomTitle: title,
	}); err != nil {
		log.Printf("[WARN] failed to set custom title: %v", err)
	}

	if err := c.promoted.Add(ctx, req.chatID, target.ID, title); err != nil {
		log.Printf("[WARN] failed to record promoted admin: %v", err)
	}
	c.status.Invalidate(req.chatID, target.ID)

	return c.reply(req, fmt.Sprintf("✅ Promoted %s to admin with title '%s'.", targetName(target), title))
}

func (c *Commands) cmdDemote(ctx context.Context, req *cmdRequest) error {
	target, _ := c.resolveTarget(ctx, req)
	if target.ID == 0 {
		return c.reply(req, "❌ Please reply to a user or mention them to demote.")
	}

	isPromoted, err := c.promoted.IsPromoted(ctx, req.chatID, target.ID)
	if err != nil {
		return fmt.Errorf("failed to check promoted admin: %w", err)
	}
	if !isPromoted {
		return c.reply(req, "❌ I cannot demote this admin (not promoted by me).")
	}

	// promote with no rights at all is a demotion
	if _, err := c.tbAPI.Request(tbapi.PromoteChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: req.chatID},
			UserID:     target.ID,
		},
	}); err != nil {
		return c.reply(req, fmt.Sprintf("❌ Failed to demote: %s", escapeMarkDownV1Text(err.Error())))
	}

	if _, err := c.promoted.Remove(ctx, req.chatID, target.ID); err != nil {
		log.Printf("[WARN] failed to remove promoted admin: %v", err)
	}
	c.status.Invalidate(req.chatID, target.ID)

	return c.reply(req, fmt.Sprintf("✅ Demoted %s.", targetName(target)))
}

func (c *Commands) cmdKick(ctx context.Context, req *cmdRequest) error {
	target, _ := c.resolveTarget(ctx, req)
	if target.ID == 0 {
		return c.reply(req, "❌ Please reply to a user or mention them to kick.")
	}

	member, err := c.status.Member(req.chatID, target.ID)
	if err != nil {
		return fmt.Errorf("failed to get member status: %w", err)
	}
	if member.IsCreator() || member.IsAdministrator() {
		isPromoted, err := c.promoted.IsPromoted(ctx, req.chatID, target.ID)
		if err != nil {
			return fmt.Errorf("failed to check promoted admin: %w", err)
		}
		if !isPromoted {
			return c.reply(req, "❌ I cannot kick this admin (not promoted by me).")
		}
		if _, err := c.promoted.Remove(ctx, req.chatID, target.ID); err != nil {
			log.Printf("[WARN] failed to remove promoted admin: %v", err)
		}
	}

	memberCfg := tbapi.ChatMemberConfig{
		ChatConfig: tbapi.ChatConfig{ChatID: req.chatID},
		UserID:     target.ID,
	}
	if _, err := c.tbAPI.Request(tbapi.BanChatMemberConfig{ChatMemberConfig: memberCfg}); err != nil {
		return c.reply(req, fmt.Sprintf("❌ Failed to kick: %s", escapeMarkDownV1Text(err.Error())))
	}
	// unban right away, kick means remove without a lasting ban
	if _, err := c.tbAPI.Request(tbapi.UnbanChatMemberConfig{ChatMemberConfig: memberCfg, OnlyIfBanned: true}); err != nil {
		log.Printf("[WARN] failed to unban after kick: %v", err)
	}
	c.status.Invalidate(req.chatID, target.ID)

	return c.reply(req, fmt.Sprintf("✅ Kicked %s.", targetName(target)))
}

// admin bypass commands

func (c *Commands) cmdAdminsEnable(ctx context.Context, req *cmdRequest) error {
	if err := c.perms.Set(ctx, req.chatID, true); err != nil {
		return fmt.Errorf("failed to enable admin bypass: %w", err)
	}
	return c.reply(req, "✅ Admins can now bypass sticker blocks and word filters.")
}

func (c *Commands) cmdAdminsDisable(ctx context.Context, req *cmdRequest) error {
	if err := c.perms.Set(ctx, req.chatID, false); err != nil {
		return fmt.Errorf("failed to disable admin bypass: %w", err)
	}
	return c.reply(req, "✅ Admins must now follow all rules like regular users.")
}
