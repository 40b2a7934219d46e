// Package match turns compiled lexicon hits into token-aligned matches and
// resolves overlaps deterministically.
//
// Two spans either nest (one contains the other, equal bounds included) or
// cross (they intersect and neither contains the other). Nested matches
// are all kept and the inner one points at its innermost container.
// Crossing matches are settled in priority order (longer first, then
// higher confidence, then earlier start, then entity ID): a candidate that
// crosses an already accepted match of higher priority is dropped. When
// both are equal in length and confidence, both are kept and flagged for
// review. A dropped candidate never causes another drop, so the result
// does not depend on scan order.
package match

import (
	"fmt"
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Ambiguity sources.
const (
	SourcePolysemyTable    = "polysemy_table"
	SourceSharedAlias      = "shared_alias"
	SourcePolysemousEntity = "polysemous_entity"
)

// Ambiguity lists alternative readings. Resolution is always null:
// disambiguation is left to a human reader.
type Ambiguity struct {
	Alternatives []string `json:"alternative_entities"`
	Resolution   *string  `json:"resolution"`
	Source       string   `json:"source"`
}

// Match is one retained entity occurrence.
type Match struct {
	ID         string            `json:"match_id"`
	LineUID    string            `json:"line_uid"`
	Seq        int               `json:"seq"`
	EntityID   string            `json:"entity_id"`
	Form       string            `json:"matched_form"`
	Alias      string            `json:"alias"`
	RuleID     string            `json:"rule_id"`
	Span       ingest.Span       `json:"span"`
	TokenStart int               `json:"token_start"`
	TokenEnd   int               `json:"token_end"`
	Confidence schema.Confidence `json:"confidence"`
	Ambiguity  *Ambiguity        `json:"ambiguity"`
	NestedIn   *string           `json:"nested_in"`
	Review     bool              `json:"review,omitempty"`
}

// Nested reports whether the match lies inside another retained match.
func (m *Match) Nested() bool { return m.NestedIn != nil }

// MatchID formats the identity of a match.
func MatchID(lineUID string, span ingest.Span, entityID string) string {
	return fmt.Sprintf("%s@%d-%d/%s", lineUID, span.Start, span.End, entityID)
}

// Matcher scans lines against a compiled index. It holds no mutable state
// and may be shared by workers.
type Matcher struct {
	index    *lexicon.Index
	polysemy *lexicon.PolysemyTable
}

// New creates a matcher. The polysemy table must be keyed by normalized
// forms (see lexicon.PolysemyTable.Normalized); nil means no entries.
func New(index *lexicon.Index, polysemy *lexicon.PolysemyTable) *Matcher {
	return &Matcher{index: index, polysemy: polysemy}
}

// Index returns the compiled index in use.
func (m *Matcher) Index() *lexicon.Index { return m.index }

type candidate struct {
	Match
	pattern int
}

// Match finds, aligns and resolves the entity matches of one line. The
// returned error is fatal and only occurs on an internal invariant breach.
func (m *Matcher) Match(line *ingest.Line) ([]Match, internalerr.Issues, error) {
	text := []rune(line.Text)
	cands := m.align(line, text, m.index.Scan(text))
	for i := range cands {
		m.assignConfidence(&cands[i])
	}

	kept := resolve(cands)
	out := make([]Match, len(kept))
	for i, c := range kept {
		out[i] = c.Match
	}
	sortMatches(out)
	assignNesting(out)

	var issues internalerr.Issues
	for i := range out {
		mt := &out[i]
		if mt.Confidence == schema.Low {
			issues.Add(internalerr.Issue{
				Severity: internalerr.SeverityWarning,
				Phase:    schema.PhaseLexical,
				Type:     "LOW_CONFIDENCE",
				LineUID:  line.UID,
				Message:  fmt.Sprintf("%s matched %q with LOW confidence", mt.EntityID, mt.Form),
			}.With("match_id", mt.ID))
		}
		if mt.Review {
			issues.Add(internalerr.Issue{
				Severity: internalerr.SeverityWarning,
				Phase:    schema.PhaseLexical,
				Type:     "CROSSING_TIE",
				LineUID:  line.UID,
				Message:  fmt.Sprintf("%s crosses an equally ranked match", mt.EntityID),
			}.With("match_id", mt.ID))
		}
	}

	if err := ValidateAlignment(line, out); err != nil {
		return nil, issues, err
	}
	return out, issues, nil
}

// align maps raw hits onto token runs. Exact aliases must start and end on
// token boundaries; prefix aliases must start a token and stretch to its
// end; suffix aliases must end a token and stretch back to its start.
// Duplicate (span, entity) pairs keep the lowest pattern ID.
func (m *Matcher) align(line *ingest.Line, text []rune, hits []lexicon.Hit) []candidate {
	starts := make(map[int]int, len(line.Spans))
	ends := make(map[int]int, len(line.Spans))
	for i, sp := range line.Spans {
		starts[sp.Start] = i
		ends[sp.End] = i
	}

	type key struct {
		span   ingest.Span
		entity string
	}
	byKey := make(map[key]int)
	var out []candidate

	for _, h := range hits {
		p := m.index.Pattern(h.Pattern)
		var ti, tj int
		var ok bool
		switch p.AliasType {
		case lexicon.AliasPrefix:
			if ti, ok = starts[h.Start]; !ok {
				continue
			}
			if tj, ok = tokenAt(line.Spans, h.End-1); !ok {
				continue
			}
		case lexicon.AliasSuffix:
			if tj, ok = ends[h.End]; !ok {
				continue
			}
			if ti, ok = tokenAt(line.Spans, h.Start); !ok {
				continue
			}
		default:
			if ti, ok = starts[h.Start]; !ok {
				continue
			}
			if tj, ok = ends[h.End]; !ok {
				continue
			}
		}
		if ti > tj {
			continue
		}

		span := ingest.Span{Start: line.Spans[ti].Start, End: line.Spans[tj].End}
		k := key{span, p.EntityID}
		if prev, dup := byKey[k]; dup {
			if out[prev].pattern <= p.ID {
				continue
			}
			out[prev] = m.newCandidate(line, text, span, ti, tj, p)
			continue
		}
		byKey[k] = len(out)
		out = append(out, m.newCandidate(line, text, span, ti, tj, p))
	}
	return out
}

func (m *Matcher) newCandidate(line *ingest.Line, text []rune, span ingest.Span, ti, tj int, p lexicon.Pattern) candidate {
	return candidate{
		Match: Match{
			ID:         MatchID(line.UID, span, p.EntityID),
			LineUID:    line.UID,
			Seq:        line.Seq,
			EntityID:   p.EntityID,
			Form:       string(text[span.Start:span.End]),
			Alias:      p.Form,
			RuleID:     "alias_" + string(p.AliasType),
			Span:       span,
			TokenStart: ti,
			TokenEnd:   tj + 1,
		},
		pattern: p.ID,
	}
}

// tokenAt returns the index of the token containing code point pos.
func tokenAt(spans []ingest.Span, pos int) (int, bool) {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].End > pos })
	if i < len(spans) && spans[i].Start <= pos {
		return i, true
	}
	return 0, false
}

// assignConfidence applies, in order: the polysemy table entry for the
// alias or surface form, a form shared by several entities, an entity
// flagged polysemous. Anything else is HIGH.
func (m *Matcher) assignConfidence(c *candidate) {
	c.Confidence = schema.High

	entry, ok := m.polysemy.Lookup(c.Alias)
	if !ok {
		entry, ok = m.polysemy.Lookup(c.Form)
	}
	if ok {
		alts := entry.Alternatives
		if len(alts) == 0 {
			alts = m.index.EntitiesForForm(c.Alias)
		}
		c.Confidence = entry.Level
		c.Ambiguity = &Ambiguity{Alternatives: append([]string{}, alts...), Source: SourcePolysemyTable}
		return
	}

	if shared := m.index.EntitiesForForm(c.Alias); len(shared) > 1 {
		c.Confidence = schema.Medium
		c.Ambiguity = &Ambiguity{Alternatives: append([]string{}, shared...), Source: SourceSharedAlias}
		return
	}

	if e, ok := m.index.Entity(c.EntityID); ok && e.Polysemous {
		c.Confidence = schema.Medium
		c.Ambiguity = &Ambiguity{Alternatives: []string{}, Source: SourcePolysemousEntity}
	}
}

// higher reports whether a outranks b for crossing resolution.
func higher(a, b *candidate) bool {
	if la, lb := a.Span.Len(), b.Span.Len(); la != lb {
		return la > lb
	}
	if ra, rb := a.Confidence.Rank(), b.Confidence.Rank(); ra != rb {
		return ra > rb
	}
	if a.Span.Start != b.Span.Start {
		return a.Span.Start < b.Span.Start
	}
	return a.EntityID < b.EntityID
}

func resolve(cands []candidate) []candidate {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return higher(&cands[order[i]], &cands[order[j]]) })

	var accepted []int
	for _, ci := range order {
		c := &cands[ci]
		dropped := false
		var ties []int
		for _, ai := range accepted {
			a := &cands[ai]
			if !c.Span.Crosses(a.Span) {
				continue
			}
			if a.Span.Len() == c.Span.Len() && a.Confidence.Rank() == c.Confidence.Rank() {
				ties = append(ties, ai)
				continue
			}
			dropped = true
			break
		}
		if dropped {
			continue
		}
		for _, ai := range ties {
			cands[ai].Review = true
		}
		if len(ties) > 0 {
			c.Review = true
		}
		accepted = append(accepted, ci)
	}

	out := make([]candidate, len(accepted))
	for i, ai := range accepted {
		out[i] = cands[ai]
	}
	return out
}

// sortMatches orders matches by (start, -length, entity).
func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := &ms[i], &ms[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End > b.Span.End
		}
		return a.EntityID < b.EntityID
	})
}

// assignNesting links each match to its innermost container. With equal
// bounds the match earlier in sort order is the container.
func assignNesting(ms []Match) {
	for i := range ms {
		best := -1
		for j := range ms {
			if i == j || !ms[j].Span.Contains(ms[i].Span) {
				continue
			}
			if ms[j].Span == ms[i].Span && j > i {
				continue
			}
			if best < 0 || ms[j].Span.Len() < ms[best].Span.Len() ||
				ms[j].Span.Len() == ms[best].Span.Len() && j > best {
				best = j
			}
		}
		if best >= 0 {
			id := ms[best].ID
			ms[i].NestedIn = &id
		}
	}
}

// ValidateAlignment checks that every match covers a contiguous token run
// of the line, that containers exist, and that no two top-level matches
// cross unless both are flagged for review. Violations are fatal.
func ValidateAlignment(line *ingest.Line, ms []Match) error {
	n := len([]rune(line.Text))
	ids := make(map[string]struct{}, len(ms))
	for i := range ms {
		ids[ms[i].ID] = struct{}{}
	}

	for i := range ms {
		mt := &ms[i]
		if mt.TokenStart < 0 || mt.TokenEnd > len(line.Spans) || mt.TokenStart >= mt.TokenEnd ||
			mt.Span.End > n ||
			line.Spans[mt.TokenStart].Start != mt.Span.Start ||
			line.Spans[mt.TokenEnd-1].End != mt.Span.End {
			return internalerr.NewFatal(schema.PhaseLexical, "SPAN_MISALIGNED",
				fmt.Sprintf("match %s span %s does not align to tokens", mt.ID, mt.Span)).
				WithLine(line.UID).Wrap(internalerr.ErrInvariant)
		}
		if mt.NestedIn != nil {
			if _, ok := ids[*mt.NestedIn]; !ok {
				return internalerr.NewFatal(schema.PhaseLexical, "DANGLING_CONTAINER",
					fmt.Sprintf("match %s points at missing %s", mt.ID, *mt.NestedIn)).
					WithLine(line.UID).Wrap(internalerr.ErrInvariant)
			}
			continue
		}
		for j := i + 1; j < len(ms); j++ {
			o := &ms[j]
			if o.NestedIn != nil || !mt.Span.Crosses(o.Span) {
				continue
			}
			if mt.Review && o.Review {
				continue
			}
			return internalerr.NewFatal(schema.PhaseLexical, "OVERLAP_UNRESOLVED",
				fmt.Sprintf("matches %s and %s cross", mt.ID, o.ID)).
				WithLine(line.UID).Wrap(internalerr.ErrInvariant)
		}
	}
	return nil
}
