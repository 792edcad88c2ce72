package utils

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped before word-level comparison of prompts and guesses.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {}, "from": {}, "into": {},
	"onto": {}, "over": {}, "under": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "it": {}, "its": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "as": {}, "some": {}, "while": {}, "near": {}, "very": {}, "style": {},
}

// NormalizeText lowercases, transliterates to ASCII, drops every
// non-alphanumeric rune and collapses whitespace. Punctuation inside a word
// joins it ("dog's" -> "dogs", "sun-lit" -> "sunlit").
func NormalizeText(text string) string {
	// Casers carry state, so one per call.
	lower := cases.Lower(language.Und).String(norm.NFKC.String(text))
	ascii := unidecode.Unidecode(lower)

	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits normalized text on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(NormalizeText(text))
}

// ContentTokens is Tokenize without stop words.
func ContentTokens(text string) []string {
	tokens := Tokenize(text)
	out := tokens[:0]
	for _, tok := range tokens {
		if !IsStopWord(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
