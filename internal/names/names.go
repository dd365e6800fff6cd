// Package names provides the deterministic name normalization used to
// key every player and team lookup across sources.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// translit maps glyphs that NFKD decomposition cannot reduce to ASCII.
var translit = map[rune]string{
	'ø': "o", 'Ø': "O",
	'đ': "d", 'Đ': "D",
	'ð': "d", 'Ð': "D",
	'ł': "l", 'Ł': "L",
	'æ': "ae", 'Æ': "AE",
	'œ': "oe", 'Œ': "OE",
	'ß': "ss",
	'þ': "th", 'Þ': "Th",
	'ı': "i",
}

// Normalize lowercases, strips diacritics, transliterates leftover
// non-ASCII glyphs, reorders a "Surname, First" pattern, collapses
// punctuation and whitespace. Pure and total: any input produces a
// stable key, and Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := reorderSurnameFirst(raw)
	s = stripDiacritics(s)
	s = transliterate(s)
	s = strings.ToLower(s)
	s = collapsePunctuation(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits a normalized name into comparison tokens, discarding
// single-character parts (initials) that would match too loosely.
func Tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// PairKey returns the two normalized names in lexicographic order,
// the canonical key for an unordered skipped pair.
func PairKey(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// reorderSurnameFirst turns "Smith, James" into "James Smith".
// Only a single comma with text on both sides triggers the reorder;
// anything else is left for punctuation collapsing.
func reorderSurnameFirst(s string) string {
	if strings.Count(s, ",") != 1 {
		return s
	}
	parts := strings.SplitN(s, ",", 2)
	surname := strings.TrimSpace(parts[0])
	first := strings.TrimSpace(parts[1])
	if surname == "" || first == "" {
		return s
	}
	return first + " " + surname
}

func stripDiacritics(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFKD.String(s) {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing (combining accents)
			b.WriteRune(r)
		}
	}
	return b.String()
}

func transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := translit[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapsePunctuation replaces punctuation and symbols with spaces so
// "O'Neill-Smith" and "O Neill Smith" produce the same tokens. Any
// remaining non-ASCII rune is dropped rather than kept as noise.
func collapsePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}
