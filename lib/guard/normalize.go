// Package guard implements the moderation core: arabic-aware text normalization,
// censored-vocabulary matching, a sliding-window spam tracker, a trainable text
// classifier and a bounded message history. It has no dependency on the telegram
// client and can be used as a standalone library.
package guard

import "strings"

// arabic combining marks (tashkeel) removed by normalization
var arabicDiacritics = map[rune]struct{}{
	'ً': {}, // fathatan
	'ٌ': {}, // dammatan
	'ٍ': {}, // kasratan
	'َ': {}, // fatha
	'ُ': {}, // damma
	'ِ': {}, // kasra
	'ّ': {}, // shadda
	'ْ': {}, // sukun
	'ٓ': {}, // maddah
	'ٔ': {}, // hamza above
	'ٕ': {}, // hamza below
	'ٖ': {}, // subscript alef
	'ٗ': {}, // inverted damma
	'٘': {}, // mark noon ghunna
	'ٰ': {}, // superscript alef
}

// Normalize canonicalizes arabic text: strips diacritics, folds alef variants to
// the bare alef, teh-marbuta and heh to heh, and yeh variants to yeh. The result
// is stable, i.e. Normalize(Normalize(s)) == Normalize(s). Lowercasing is the
// caller's job, applied before normalization.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if _, ok := arabicDiacritics[r]; ok {
			continue
		}
		switch r {
		case 'إ', 'أ', 'آ', 'ٱ', 'ٲ', 'ٳ', 'ٵ': // alef variants
			r = 'ا'
		case 'ة': // teh marbuta folds to heh
			r = 'ه'
		case 'ی', 'ى': // farsi yeh and alef maksura fold to yeh
			r = 'ي'
		}
		b.WriteRune(r)
	}
	return b.String()
}
