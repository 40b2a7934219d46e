package normalize

import (
	"sort"
	"unicode"
)

// RuneRange is an inclusive code point range.
type RuneRange struct {
	Lo, Hi rune
}

// DefaultRepertoire covers Gurmukhi, the Devanagari dandas, printable
// ASCII and Latin-1.
var DefaultRepertoire = []RuneRange{
	{0x0A00, 0x0A7F},
	{0x0964, 0x0965},
	{0x0020, 0x007E},
	{0x00A0, 0x00FF},
}

// UnexpectedRunes returns the distinct runes of s outside the repertoire,
// sorted by code point. Whitespace is always accepted.
func UnexpectedRunes(s string, repertoire []RuneRange) []rune {
	seen := make(map[rune]struct{})
	for _, r := range s {
		if unicode.IsSpace(r) || inRanges(r, repertoire) {
			continue
		}
		seen[r] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]rune, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func inRanges(r rune, ranges []RuneRange) bool {
	for _, rr := range ranges {
		if r >= rr.Lo && r <= rr.Hi {
			return true
		}
	}
	return false
}
