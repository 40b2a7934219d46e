package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// RawLine is one corpus line as handed over by the acquisition layer.
type RawLine struct {
	Seq         int    `json:"seq"`
	Text        string `json:"text"`
	Composition string `json:"composition,omitempty"`
	Page        string `json:"page,omitempty"`
	// PreNormalized skips the normalizer; the text is taken as canonical.
	PreNormalized bool `json:"pre_normalized,omitempty"`
}

// Validate checks the structural fields.
func (r *RawLine) Validate() error {
	if r.Seq < 0 {
		return errors.New("line seq must be non-negative")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("line text is required")
	}
	return nil
}

// Span is a half-open [Start, End) range of code point offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of code points covered.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether o lies within s (equal bounds included).
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Intersects reports whether s and o share at least one code point.
func (s Span) Intersects(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Crosses reports a partial overlap: intersecting with neither containing
// the other.
func (s Span) Crosses(o Span) bool {
	return s.Intersects(o) && !s.Contains(o) && !o.Contains(s)
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Marker roles.
const (
	RoleRefrain  = "refrain"
	RoleVerseEnd = "verse_end"
	RolePause    = "pause"
	RoleNumeral  = "numeral"
)

// Marker is a structural, non-lexical glyph removed before tokenization.
type Marker struct {
	Form string `json:"form"`
	Role string `json:"role"`
	Span Span   `json:"span"`
}

// Line is a normalized, tokenized corpus line. Its UID depends only on
// its sequence position and normalized text.
type Line struct {
	Seq         int      `json:"seq"`
	UID         string   `json:"line_uid"`
	Text        string   `json:"text"`
	AltText     string   `json:"alt_text,omitempty"`
	Tokens      []string `json:"tokens"`
	Spans       []Span   `json:"token_spans"`
	Markers     []Marker `json:"markers,omitempty"`
	Composition string   `json:"composition,omitempty"`
	Page        string   `json:"page,omitempty"`
}

// LineUID derives the stable identity of a line.
func LineUID(seq int, normalized string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", seq, normalized)))
	return fmt.Sprintf("L%d:sha256:%s", seq, hex.EncodeToString(sum[:])[:12])
}

// GroupKey is the composition key, falling back to the page. Empty means
// the line belongs to no group.
func (l *Line) GroupKey() string {
	if l.Composition != "" {
		return l.Composition
	}
	if l.Page != "" {
		return "page:" + l.Page
	}
	return ""
}

// PartitionKey never splits a group. Ungrouped lines get their own key.
func (l *Line) PartitionKey() string {
	if k := l.GroupKey(); k != "" {
		return k
	}
	return "line:" + l.UID
}

// TokenCount returns the number of lexical tokens.
func (l *Line) TokenCount() int { return len(l.Tokens) }

// Less orders lines by (Seq, UID).
func Less(a, b *Line) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.UID < b.UID
}
