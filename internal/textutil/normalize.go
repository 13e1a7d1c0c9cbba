package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize composes to NFC, lower-cases, and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}

// StripPunctuation normalizes s and replaces every rune that is not a letter,
// digit or space with a space.
func StripPunctuation(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CompactKey is StripPunctuation with all spaces removed. Two names that
// differ only by spacing or punctuation share a compact key.
func CompactKey(s string) string {
	return strings.ReplaceAll(StripPunctuation(s), " ", "")
}

// Tokenize splits s into lower-case punctuation-free tokens.
// Unlike English-oriented tokenizers it keeps short tokens, since two-syllable
// Korean words carry most of the meaning in product names.
func Tokenize(s string) []string {
	stripped := StripPunctuation(s)
	if stripped == "" {
		return nil
	}
	return strings.Split(stripped, " ")
}

// ContainsEither reports whether either string contains the other.
// Empty strings never match.
func ContainsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
