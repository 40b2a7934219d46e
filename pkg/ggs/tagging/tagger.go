// Package tagging turns matches and feature densities into continuous
// dimension scores and discrete tags.
//
//	raw(D, L)      = sum of weights of rules for D that fire on L
//	context(D, L)  = mean raw(D, ·) over L's grouping, including L
//	combined(D, L) = (1 - α) * raw + α * context
//	score(D, L)    = 1 / (1 + exp(-k_D * (combined - x0_D)))
//
// Context is 0 for a line that is alone in its grouping. With k > 0 and
// α in [0,1] a larger weight on a firing rule never lowers the score.
package tagging

import (
	"fmt"
	"math"
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/features"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Version identifies the scoring rules for provenance.
const Version = "1.0.0"

// Evidence is one rule firing.
type Evidence struct {
	RuleID  string  `json:"rule"`
	Weight  float64 `json:"weight"`
	Matched string  `json:"matched"`
}

// Record is the tagging output for one line.
type Record struct {
	SchemaVersion  string                          `json:"schema_version"`
	LineUID        string                          `json:"line_uid"`
	Seq            int                             `json:"seq"`
	Group          string                          `json:"group,omitempty"`
	Scores         map[schema.Dimension]float64    `json:"scores"`
	Raw            map[schema.Dimension]float64    `json:"raw_signals"`
	Context        map[schema.Dimension]float64    `json:"context_signals"`
	Combined       map[schema.Dimension]float64    `json:"combined_signals"`
	Primary        string                          `json:"primary_tag"`
	Secondary      []string                        `json:"secondary_tags"`
	Evidence       map[schema.Dimension][]Evidence `json:"score_breakdown"`
	RulesFired     []string                        `json:"rules_fired"`
	EvidenceTokens []string                        `json:"evidence_tokens"`
}

// Input is everything the tagger reads about one line.
type Input struct {
	Line     *ingest.Line
	Matches  []match.Match
	Features features.Vector
}

// Tagger scores lines. It is immutable and safe for concurrent use.
type Tagger struct {
	cfg   Config
	index *lexicon.Index
	dims  []schema.Dimension
}

// NewTagger validates cfg and returns a tagger that resolves entity
// categories and dimensions through index.
func NewTagger(cfg Config, index *lexicon.Index) (*Tagger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tagger{cfg: cfg, index: index, dims: orderedDimensions(cfg.Dimensions)}, nil
}

// Dimensions returns the scored dimensions in report order.
func (t *Tagger) Dimensions() []schema.Dimension {
	return append([]schema.Dimension(nil), t.dims...)
}

// Sigmoid computes 1 / (1 + exp(-k * (x - x0))), saturating when the
// exponent leaves [-500, 500].
func Sigmoid(x, k, x0 float64) float64 {
	z := -k * (x - x0)
	if z > 500 {
		return 0
	}
	if z < -500 {
		return 1
	}
	return 1 / (1 + math.Exp(z))
}

// Tag scores one line against its neighborhood: the other lines of the
// same grouping. An empty neighborhood gives a context signal of 0.
func (t *Tagger) Tag(in Input, neighborhood []Input) Record {
	group := make([]Input, 0, len(neighborhood)+1)
	group = append(group, in)
	group = append(group, neighborhood...)
	return t.tagGroup(group)[0]
}

// TagGroup scores lines, using each line's grouping key (composition,
// else page) as its neighborhood. Records come back in input order.
func (t *Tagger) TagGroup(inputs []Input) []Record {
	order := make(map[string][]int)
	var keys []string
	for i := range inputs {
		key := inputs[i].Line.GroupKey()
		if key == "" {
			key = "line:" + inputs[i].Line.UID
		}
		if _, ok := order[key]; !ok {
			keys = append(keys, key)
		}
		order[key] = append(order[key], i)
	}

	out := make([]Record, len(inputs))
	for _, key := range keys {
		idx := order[key]
		group := make([]Input, len(idx))
		for j, i := range idx {
			group[j] = inputs[i]
		}
		for j, rec := range t.tagGroup(group) {
			out[idx[j]] = rec
		}
	}
	return out
}

type fired struct {
	raw      float64
	evidence []Evidence
}

func (t *Tagger) tagGroup(group []Input) []Record {
	facts := make([]lineFacts, len(group))
	raws := make([]map[schema.Dimension]fired, len(group))
	for i := range group {
		facts[i] = t.collect(group[i])
		raws[i] = make(map[schema.Dimension]fired, len(t.dims))
		for _, d := range t.dims {
			raws[i][d] = t.evaluate(t.cfg.Dimensions[d], &facts[i])
		}
	}

	context := make(map[schema.Dimension]float64, len(t.dims))
	if len(group) > 1 {
		for _, d := range t.dims {
			sum := 0.0
			for i := range group {
				sum += raws[i][d].raw
			}
			context[d] = sum / float64(len(group))
		}
	}

	alpha := t.cfg.ContextWeight
	out := make([]Record, len(group))
	for i, in := range group {
		rec := Record{
			SchemaVersion: schema.Version,
			LineUID:       in.Line.UID,
			Seq:           in.Line.Seq,
			Group:         in.Line.GroupKey(),
			Scores:        make(map[schema.Dimension]float64, len(t.dims)),
			Raw:           make(map[schema.Dimension]float64, len(t.dims)),
			Context:       make(map[schema.Dimension]float64, len(t.dims)),
			Combined:      make(map[schema.Dimension]float64, len(t.dims)),
			Secondary:     []string{},
			Evidence:      make(map[schema.Dimension][]Evidence),
			RulesFired:    []string{},
		}
		rules := make(map[string]struct{})
		tokens := make(map[string]struct{})
		for _, d := range t.dims {
			dc := t.cfg.Dimensions[d]
			raw := raws[i][d].raw
			ctx := context[d]
			combined := (1-alpha)*raw + alpha*ctx
			rec.Raw[d] = raw
			rec.Context[d] = ctx
			rec.Combined[d] = combined
			rec.Scores[d] = Sigmoid(combined, dc.K, dc.X0)
			if ev := raws[i][d].evidence; len(ev) > 0 {
				rec.Evidence[d] = ev
				for _, e := range ev {
					rules[e.RuleID] = struct{}{}
					tokens[e.Matched] = struct{}{}
				}
			}
		}
		rec.Primary = t.primary(rec.Scores)
		rec.Secondary = t.secondary(rec.Scores)
		rec.RulesFired = sortedSet(rules)
		rec.EvidenceTokens = sortedSet(tokens)
		out[i] = rec
	}
	return out
}

func (t *Tagger) primary(scores map[schema.Dimension]float64) string {
	return t.cfg.PrimaryTag(scores)
}

func (t *Tagger) secondary(scores map[schema.Dimension]float64) []string {
	return t.cfg.SecondaryTags(scores)
}

// Rederive applies the thresholds of cfg to records that were already
// scored. Scores, evidence and everything else carry over; only the
// primary and secondary tags change. The input is not modified.
func Rederive(recs []Record, cfg Config) []Record {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		rec.Primary = cfg.PrimaryTag(rec.Scores)
		rec.Secondary = cfg.SecondaryTags(rec.Scores)
		out[i] = rec
	}
	return out
}

// lineFacts is what rules test, gathered once per line from top-level
// matches.
type lineFacts struct {
	entityForm   map[string]string          // first matched form per entity
	categoryForm map[schema.Category]string // first matched form per category
	densities    map[schema.Dimension]float64
	negation     string
	ritual       string
}

func (t *Tagger) collect(in Input) lineFacts {
	lf := lineFacts{
		entityForm:   make(map[string]string),
		categoryForm: make(map[schema.Category]string),
		densities:    make(map[schema.Dimension]float64),
	}
	for i := range in.Matches {
		m := &in.Matches[i]
		if m.Nested() {
			continue
		}
		if _, ok := lf.entityForm[m.EntityID]; !ok {
			lf.entityForm[m.EntityID] = m.Form
		}
		ent, ok := t.index.Entity(m.EntityID)
		if !ok {
			continue
		}
		if _, ok := lf.categoryForm[ent.Category]; !ok {
			lf.categoryForm[ent.Category] = m.Form
		}
		if ent.Category == schema.CategoryNegation && lf.negation == "" {
			lf.negation = m.Form
		}
		if ent.HasDimension(schema.Ritual) && lf.ritual == "" {
			lf.ritual = m.Form
		}
	}
	for _, d := range in.Features.Dims {
		lf.densities[d.Dimension] = d.Density
	}
	return lf
}

func (t *Tagger) evaluate(dc DimensionConfig, lf *lineFacts) fired {
	var res fired
	for _, r := range dc.Rules {
		matched, ok := r.fires(lf)
		if !ok {
			continue
		}
		res.raw += r.Weight
		res.evidence = append(res.evidence, Evidence{RuleID: r.Name(), Weight: r.Weight, Matched: matched})
	}
	return res
}

// fires reports whether the rule holds on the line and the evidence that
// made it hold.
func (r Rule) fires(lf *lineFacts) (string, bool) {
	switch r.Kind {
	case KindEntity:
		for _, id := range r.Entities {
			if form, ok := lf.entityForm[id]; ok {
				return form, true
			}
		}
	case KindCategory:
		if form, ok := lf.categoryForm[r.Category]; ok {
			return form, true
		}
	case KindRegister:
		d := lf.densities[r.Register]
		if d > 0 && d >= r.MinDensity {
			return fmt.Sprintf("register:%s=%.2f", r.Register, d), true
		}
	case KindNegation:
		if lf.negation != "" {
			return lf.negation, true
		}
	case KindNegationCooccurrence:
		if lf.negation != "" && lf.ritual != "" {
			return lf.negation + "+" + lf.ritual, true
		}
	}
	return "", false
}

// orderedDimensions lists configured dimensions in schema score order,
// then any others alphabetically.
func orderedDimensions(m map[schema.Dimension]DimensionConfig) []schema.Dimension {
	var out []schema.Dimension
	seen := make(map[schema.Dimension]bool)
	for _, d := range schema.ScoreDimensions() {
		if _, ok := m[d]; ok {
			out = append(out, d)
			seen[d] = true
		}
	}
	for _, d := range sortedDimensions(m) {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
