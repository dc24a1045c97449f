// Package textnorm folds artist and venue names into comparable keys.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key folds s into a diacritic-free, lowercase, punctuation-free form with
// single spaces between words. "Beyoncé & the Café" becomes "beyonce the cafe".
func Key(s string) string {
	if s == "" {
		return ""
	}

	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = norm.NFC.String(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// "Guns N' Roses" and "Guns N Roses" should fold together
		default:
			space = true
		}
	}
	return b.String()
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over the
// folded keys, so 1.0 means identical after folding and 0 means nothing shared.
func Similarity(a, b string) float64 {
	ka, kb := []rune(Key(a)), []rune(Key(b))
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	longest := len(ka)
	if len(kb) > longest {
		longest = len(kb)
	}
	return 1 - float64(levenshtein(ka, kb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
