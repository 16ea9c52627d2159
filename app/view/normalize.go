package view

import (
	"strings"

	"golang.org/x/text/width"
)

// FoldSearchText normalizes a title or query for matching: half-width
// forms are widened, katakana is folded to hiragana, and ASCII is
// lowercased. A query typed in either kana script then matches a title
// stored in the other.
func FoldSearchText(s string) string {
	folded := width.Fold.String(s)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= 'ァ' && r <= 'ヶ' {
			r -= 0x60
		}
		b.WriteRune(r)
	}

	return strings.ToLower(b.String())
}
