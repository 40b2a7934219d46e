package analytics

import (
	"sort"
	"strings"

	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// EntityLookup resolves entity metadata. *lexicon.Index implements it.
type EntityLookup interface {
	Entity(id string) (*lexicon.Entity, bool)
}

// CrossTraditionPair is a co-occurring pair whose entities belong to
// different traditions.
type CrossTraditionPair struct {
	EntityA    string           `json:"entity_a"`
	EntityB    string           `json:"entity_b"`
	TraditionA schema.Tradition `json:"tradition_a"`
	TraditionB schema.Tradition `json:"tradition_b"`
	Level      cooccur.Level    `json:"window_level"`
	RawCount   int64            `json:"raw_count"`
	PMI        *float64         `json:"pmi"`
	NPMI       *float64         `json:"npmi"`
	Jaccard    float64          `json:"jaccard"`
}

// CrossTraditionPairs keeps the records whose two entities both declare a
// tradition and the traditions differ. Pairs are ranked by NPMI
// descending, pairs without NPMI last, then by raw count descending and
// entity IDs.
func CrossTraditionPairs(recs []cooccur.Record, entities EntityLookup) []CrossTraditionPair {
	out := []CrossTraditionPair{}
	for _, r := range recs {
		ta, ok := tradition(entities, r.EntityA)
		if !ok {
			continue
		}
		tb, ok := tradition(entities, r.EntityB)
		if !ok || ta == tb {
			continue
		}
		out = append(out, CrossTraditionPair{
			EntityA:    r.EntityA,
			EntityB:    r.EntityB,
			TraditionA: ta,
			TraditionB: tb,
			Level:      r.Level,
			RawCount:   r.RawCount,
			PMI:        r.PMI,
			NPMI:       r.NPMI,
			Jaccard:    r.Jaccard,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.NPMI == nil) != (b.NPMI == nil) {
			return a.NPMI != nil
		}
		if a.NPMI != nil && *a.NPMI != *b.NPMI {
			return *a.NPMI > *b.NPMI
		}
		if a.RawCount != b.RawCount {
			return a.RawCount > b.RawCount
		}
		if a.EntityA != b.EntityA {
			return a.EntityA < b.EntityA
		}
		return a.EntityB < b.EntityB
	})
	return out
}

func tradition(entities EntityLookup, id string) (schema.Tradition, bool) {
	e, ok := entities.Entity(id)
	if !ok || e.Tradition == "" {
		return "", false
	}
	return e.Tradition, true
}

// TraditionPairLabel names an unordered pair of traditions, e.g.
// "islamic+vaishnava".
func TraditionPairLabel(a, b schema.Tradition) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + "+" + string(b)
}

// RitualNegation configures the search for lines that pair ritual
// vocabulary with a negation.
type RitualNegation struct {
	// Negations are token forms that count as a negation.
	Negations []string `json:"negations" yaml:"negations" toml:"negations"`
	// Categories mark an entity as ritual.
	Categories []schema.Category `json:"categories" yaml:"categories" toml:"categories"`
	// Keywords mark an entity as ritual when its ID contains one.
	Keywords []string `json:"keywords" yaml:"keywords" toml:"keywords"`
}

// DefaultRitualNegation returns the common Gurmukhi negations and the
// practice and marker categories.
func DefaultRitualNegation() RitualNegation {
	return RitualNegation{
		Negations:  []string{"ਨਾ", "ਨਾਹੀ", "ਨਹੀ", "ਬਿਨੁ", "ਬਿਨ", "ਬਾਝੁ", "ਬਾਝ", "ਨਹਿ", "ਬਿਨਾ", "ਨ"},
		Categories: []schema.Category{schema.CategoryPractice, schema.CategoryMarker},
		Keywords:   []string{"TEERATH", "POOJA", "JANEYU", "TILAK", "RITUAL", "HAVAN", "VRAT"},
	}
}

// RitualNegationLine is a line on which a ritual entity and a negation
// token both occur.
type RitualNegationLine struct {
	LineUID        string   `json:"line_uid"`
	Seq            int      `json:"seq"`
	Page           string   `json:"page,omitempty"`
	RitualEntities []string `json:"ritual_entities"`
	NegationTokens []string `json:"negation_tokens"`
	Text           string   `json:"text"`
}

func (rn RitualNegation) isRitual(entities EntityLookup, id string) bool {
	if e, ok := entities.Entity(id); ok {
		for _, c := range rn.Categories {
			if e.Category == c {
				return true
			}
		}
	}
	upper := strings.ToUpper(id)
	for _, kw := range rn.Keywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// Lines returns the lines whose top-level matches include a ritual entity
// and whose tokens include a negation, in corpus order. Negation tokens
// are listed in line order with repeats.
func (rn RitualNegation) Lines(lines []ingest.Line, matches []match.Match, entities EntityLookup) []RitualNegationLine {
	ritual := make(map[string]map[string]struct{})
	for i := range matches {
		m := &matches[i]
		if m.Nested() || !rn.isRitual(entities, m.EntityID) {
			continue
		}
		set := ritual[m.LineUID]
		if set == nil {
			set = make(map[string]struct{})
			ritual[m.LineUID] = set
		}
		set[m.EntityID] = struct{}{}
	}

	negations := make(map[string]struct{}, len(rn.Negations))
	for _, n := range rn.Negations {
		negations[n] = struct{}{}
	}

	out := []RitualNegationLine{}
	for i := range lines {
		l := &lines[i]
		set := ritual[l.UID]
		if len(set) == 0 {
			continue
		}
		var found []string
		for _, tok := range l.Tokens {
			if _, ok := negations[tok]; ok {
				found = append(found, tok)
			}
		}
		if len(found) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out = append(out, RitualNegationLine{
			LineUID:        l.UID,
			Seq:            l.Seq,
			Page:           l.Page,
			RitualEntities: ids,
			NegationTokens: found,
			Text:           l.Text,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].LineUID < out[j].LineUID
	})
	return out
}

// CrossTraditionSummary counts what the report holds.
type CrossTraditionSummary struct {
	Pairs               map[cooccur.Level]int `json:"cross_tradition_pairs"`
	RitualNegationLines int                   `json:"ritual_negation_lines"`
	// TraditionPairs counts pairs per tradition pair at the first level.
	TraditionPairs map[string]int `json:"tradition_pair_counts"`
}

// CrossTraditionReport is the cross-tradition view of a run.
type CrossTraditionReport struct {
	SchemaVersion  string                                 `json:"schema_version"`
	Pairs          map[cooccur.Level][]CrossTraditionPair `json:"cross_tradition_pairs"`
	RitualNegation []RitualNegationLine                   `json:"ritual_negation_lines"`
	Summary        CrossTraditionSummary                  `json:"summary"`
}

// CrossTradition builds the report from the co-occurrence records of every
// level and the matched lines.
func CrossTradition(co *cooccur.Result, lines []ingest.Line, matches []match.Match, entities EntityLookup, rn RitualNegation) CrossTraditionReport {
	rep := CrossTraditionReport{
		SchemaVersion: schema.Version,
		Pairs:         make(map[cooccur.Level][]CrossTraditionPair),
		Summary: CrossTraditionSummary{
			Pairs:          make(map[cooccur.Level]int),
			TraditionPairs: make(map[string]int),
		},
	}
	if co != nil {
		for i, level := range co.Levels {
			pairs := CrossTraditionPairs(co.Records[level], entities)
			rep.Pairs[level] = pairs
			rep.Summary.Pairs[level] = len(pairs)
			if i == 0 {
				for _, p := range pairs {
					rep.Summary.TraditionPairs[TraditionPairLabel(p.TraditionA, p.TraditionB)]++
				}
			}
		}
	}
	rep.RitualNegation = rn.Lines(lines, matches, entities)
	rep.Summary.RitualNegationLines = len(rep.RitualNegation)
	return rep
}
