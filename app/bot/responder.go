package bot

import (
	"math/rand"
	"strings"
)

// respRule is a single auto-response trigger. Exact triggers compare the whole
// trimmed message, contains triggers match anywhere in the text. Exactly one
// of react, reply or choices is set.
type respRule struct {
	ownerOnly bool
	exact     []string
	contains  []string
	react     string   // emoji reaction, no reply sent
	reply     string   // fixed reply text
	choices   []string // random-choice reply
}

// defaultRules is the ordered trigger table. Owner-only rules come first, so
// the owner's messages never fall through to the public variants of the same
// trigger with different semantics.
var defaultRules = []respRule{
	{ownerOnly: true, exact: []string{"كيوت"}, react: "❤"},
	{ownerOnly: true, exact: []string{"شاطرة", "شاطرة يالبوتة"}, react: "❤"},
	{ownerOnly: true, contains: []string{"بنتي"}, reply: "نعم"},
	{ownerOnly: true, contains: []string{"يالبتبوتة"}, reply: "نعم"},
	{ownerOnly: true, contains: []string{"مين حبيبة بابا"}, reply: "أنا"},
	{ownerOnly: true, contains: []string{"مين أشطر كتكوتة"}, reply: "أنا"},
	{exact: []string{"شاطرة", "شاطرة يالبوتة"}, react: "❤"},
	{contains: []string{"يا جلن"}, reply: "يا [الجلن](tg://user?id=1979054413)"},
	{contains: []string{"مين الجلن", "جلن"}, reply: "رفصو"},
	{contains: []string{"يالبوت بتحبي يالبوت", "بتحبي يالبوت يالبوتة"}, choices: []string{"يع", "لا"}},
	{contains: []string{"يالبوتة"}, choices: []string{"ايه", "لا", "نعم", "اتكل علي الله", "يع", "غور", "خش نام", "بس يا جلن", "أقل جلن"}},
	{contains: []string{"شتاينز"}, choices: []string{"شتاينز الأعظم", "عمك"}},
}

// Responder matches messages against the trigger table and builds the reply
// or reaction response. Matching is case-insensitive, first rule wins.
type Responder struct {
	rules []respRule
	randn func(n int) int
}

// NewResponder creates a responder with the default trigger table.
func NewResponder() *Responder {
	return &Responder{rules: defaultRules, randn: rand.Intn} //nolint:gosec // not used for security
}

// Match returns the response for the message, if any rule triggers.
func (r *Responder) Match(msg Message, fromOwner bool) (Response, bool) {
	text := strings.ToLower(msg.Text)
	trimmed := strings.TrimSpace(text)

	for _, rule := range r.rules {
		if rule.ownerOnly && !fromOwner {
			continue
		}
		if !matchRule(rule, text, trimmed) {
			continue
		}

		if rule.react != "" {
			return Response{ReactEmoji: rule.react}, true
		}
		reply := rule.reply
		if len(rule.choices) > 0 {
			reply = rule.choices[r.randn(len(rule.choices))]
		}
		return Response{Text: reply, Send: true, ReplyTo: msg.ID}, true
	}
	return Response{}, false
}

func matchRule(rule respRule, text, trimmed string) bool {
	for _, e := range rule.exact {
		if trimmed == e {
			return true
		}
	}
	for _, c := range rule.contains {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}
