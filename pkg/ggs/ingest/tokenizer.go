package ingest

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// MarkerDef declares a structural marker recognized by the tokenizer.
type MarkerDef struct {
	Form string `json:"form" yaml:"form" toml:"form"`
	Role string `json:"role" yaml:"role" toml:"role"`
}

// DefaultMarkers returns the refrain word and the two dandas.
func DefaultMarkers() []MarkerDef {
	return []MarkerDef{
		{Form: "ਰਹਾਉ", Role: RoleRefrain},
		{Form: "॥", Role: RoleVerseEnd},
		{Form: "।", Role: RolePause},
	}
}

// boundaryPunct is stripped from token edges.
const boundaryPunct = "।॥;,.-–—:!?()'\""

type markerPattern struct {
	form  []rune
	role  string
	wordy bool // contains letters, so needs word boundaries
}

// Tokenizer splits normalized text into tokens with code point spans and
// pulls out structural markers.
type Tokenizer struct {
	markers []markerPattern
}

// Result is the tokenizer output for one line.
type Result struct {
	Tokens  []string
	Spans   []Span
	Markers []Marker
}

// NewTokenizer creates a tokenizer for the given marker table. Markers are
// tried longest first.
func NewTokenizer(defs []MarkerDef) *Tokenizer {
	pats := make([]markerPattern, 0, len(defs))
	for _, d := range defs {
		if d.Form == "" {
			continue
		}
		form := []rune(d.Form)
		wordy := false
		for _, r := range form {
			if unicode.IsLetter(r) {
				wordy = true
				break
			}
		}
		pats = append(pats, markerPattern{form: form, role: d.Role, wordy: wordy})
	}
	sort.SliceStable(pats, func(i, j int) bool {
		return len(pats[i].form) > len(pats[j].form)
	})
	return &Tokenizer{markers: pats}
}

// Tokenize extracts markers, splits on whitespace and trims boundary
// punctuation. Spans index the input string in code points.
func (t *Tokenizer) Tokenize(text string) Result {
	rs := []rune(text)
	masked := make([]rune, len(rs))
	copy(masked, rs)

	var res Result

	// 1. Longest-match marker scan. Matched runes are masked with spaces
	// so offsets stay valid.
	for i := 0; i < len(rs); {
		p, ok := t.markerAt(rs, i)
		if !ok {
			i++
			continue
		}
		end := i + len(p.form)
		res.Markers = append(res.Markers, Marker{Form: string(p.form), Role: p.role, Span: Span{i, end}})
		for j := i; j < end; j++ {
			masked[j] = ' '
		}
		i = end
	}

	// 2. Whitespace split on the masked text.
	for i := 0; i < len(masked); {
		if unicode.IsSpace(masked[i]) {
			i++
			continue
		}
		start := i
		for i < len(masked) && !unicode.IsSpace(masked[i]) {
			i++
		}
		end := i

		// 3. Trim boundary punctuation by moving the span.
		for start < end && strings.ContainsRune(boundaryPunct, masked[start]) {
			start++
		}
		for end > start && strings.ContainsRune(boundaryPunct, masked[end-1]) {
			end--
		}

		// 4. Drop empties; bare numerals are verse numbering, not words.
		if start == end {
			continue
		}
		if isNumeral(masked[start:end]) {
			res.Markers = append(res.Markers, Marker{Form: string(rs[start:end]), Role: RoleNumeral, Span: Span{start, end}})
			continue
		}
		res.Tokens = append(res.Tokens, string(rs[start:end]))
		res.Spans = append(res.Spans, Span{start, end})
	}

	sort.SliceStable(res.Markers, func(i, j int) bool {
		return res.Markers[i].Span.Start < res.Markers[j].Span.Start
	})
	return res
}

func (t *Tokenizer) markerAt(rs []rune, i int) (markerPattern, bool) {
	for _, p := range t.markers {
		end := i + len(p.form)
		if end > len(rs) {
			continue
		}
		if !runesEqual(rs[i:end], p.form) {
			continue
		}
		if p.wordy && (i > 0 && isWordRune(rs[i-1]) || end < len(rs) && isWordRune(rs[end])) {
			continue
		}
		return p, true
	}
	return markerPattern{}, false
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r)
}

func isNumeral(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(rs) > 0
}

// Rejoin joins tokens with single spaces. For marker-free text it
// reproduces the whitespace-collapsed input.
func Rejoin(tokens []string) string {
	return strings.Join(tokens, " ")
}

// ValidateSpans checks that spans are in range, strictly increasing,
// non-overlapping and that each covers exactly its token.
func ValidateSpans(text string, tokens []string, spans []Span) error {
	if len(tokens) != len(spans) {
		return fmt.Errorf("%d tokens but %d spans", len(tokens), len(spans))
	}
	rs := []rune(text)
	prevEnd := 0
	for i, sp := range spans {
		if sp.Start < prevEnd || sp.Start >= sp.End || sp.End > len(rs) {
			return fmt.Errorf("token %d span %s out of order or range", i, sp)
		}
		if got := string(rs[sp.Start:sp.End]); got != tokens[i] {
			return fmt.Errorf("token %d span %s covers %q, want %q", i, sp, got, tokens[i])
		}
		prevEnd = sp.End
	}
	return nil
}
