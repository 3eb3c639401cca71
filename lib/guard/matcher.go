package guard

import (
	"regexp"
	"strings"
)

// CensoredWord is a single vocabulary entry. Strict entries match only as a
// standalone whitespace-separated token; non-strict (smart) entries match as a
// boundary-aware substring.
type CensoredWord struct {
	Word   string `db:"word"`
	Strict bool   `db:"is_strict"`
}

// MatchCensored checks a message against the vocabulary list and returns the
// first matching entry. The message must be lowercased and normalized by the
// caller; entry words are lowercased and normalized here so stored entries can
// keep their original spelling.
func MatchCensored(normalizedMsg string, entries []CensoredWord) (CensoredWord, bool) {
	if len(entries) == 0 {
		return CensoredWord{}, false
	}

	var tokens []string // lazily split, strict entries only
	for _, e := range entries {
		word := Normalize(strings.ToLower(e.Word))
		if word == "" {
			continue
		}

		if e.Strict {
			// exact whole-token match. tokens keep attached punctuation,
			// so a strict "cat" doesn't match "cat," - intentional.
			if tokens == nil {
				tokens = strings.Fields(normalizedMsg)
			}
			for _, t := range tokens {
				if t == word {
					return e, true
				}
			}
			continue
		}

		if matchSmart(normalizedMsg, word) {
			return e, true
		}
	}
	return CensoredWord{}, false
}

// matchSmart does a boundary-aware substring match. Arabic script has no word
// boundary in the \b sense, so arabic words anchor on whitespace or string
// edges; everything else uses real word boundaries which lets obfuscated
// variants like "sh1t" match while "hi" stays unmatched inside "ship".
func matchSmart(msg, word string) bool {
	var pattern string
	if hasArabic(word) {
		pattern = `(?:^|\s)` + regexp.QuoteMeta(word) + `(?:\s|$)`
	} else {
		pattern = `\b` + regexp.QuoteMeta(word) + `\b`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false // quoted meta should always compile, stay silent if not
	}
	return re.MatchString(msg)
}

func hasArabic(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}
