package util

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// NormalizeText lowercases and drops punctuation so that two renderings of
// the same words compare equal.
func NormalizeText(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// SimilarityRatio is 1 - edit distance / longer length over normalized text.
func SimilarityRatio(a, b string) float64 {
	ra := []rune(NormalizeText(a))
	rb := []rune(NormalizeText(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	return 1 - float64(dist)/float64(longest)
}

// TruncateRunes cuts s to at most n runes, appending suffix when cut.
func TruncateRunes(s string, n int, suffix string) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + suffix
}

// EndsSentence reports whether text ends with terminal punctuation.
func EndsSentence(text string) bool {
	t := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\'' || r == ')' || r == '”' || r == '’'
	})
	if t == "" {
		return false
	}
	switch []rune(t)[len([]rune(t))-1] {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}
