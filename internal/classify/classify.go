// Package classify decides whether a block of text looks like a poem.
//
// The test is a coarse script and length heuristic, not a language detector:
// any Arabic-script text (Urdu, Arabic, Persian) passes once it is longer than
// a caption or a button label would be.
package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinChars is the trimmed length, in code points, a text must exceed.
const MinChars = 50

// arabicBlock is the Arabic Unicode block, U+0600 through U+06FF.
var arabicBlock = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0600, Hi: 0x06FF, Stride: 1}},
}

// IsPoemLike reports whether text contains Arabic-script characters and its
// trimmed length exceeds MinChars.
func IsPoemLike(text string) bool {
	return ContainsArabicScript(text) && LongEnough(text)
}

// ContainsArabicScript reports whether at least one rune of text falls in the
// Arabic block.
func ContainsArabicScript(text string) bool {
	for _, r := range text {
		if unicode.Is(arabicBlock, r) {
			return true
		}
	}
	return false
}

// LongEnough reports whether text, trimmed of surrounding whitespace, is longer
// than MinChars code points.
func LongEnough(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > MinChars
}
