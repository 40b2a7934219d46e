package tagging

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// RuleKind enumerates the supported rule conditions. There is no
// expression language: a rule is one of these kinds plus its parameters.
type RuleKind string

const (
	// KindEntity fires when the line holds any of the listed entities.
	KindEntity RuleKind = "entity"
	// KindCategory fires when the line holds an entity of the category.
	KindCategory RuleKind = "category"
	// KindRegister fires when a feature density is positive and at least
	// MinDensity.
	KindRegister RuleKind = "register"
	// KindNegation fires when the line holds a negation entity.
	KindNegation RuleKind = "negation"
	// KindNegationCooccurrence fires when a negation entity and a ritual
	// entity share the line.
	KindNegationCooccurrence RuleKind = "negation_cooccurrence"
)

// Rule is one weighted condition.
type Rule struct {
	ID         string           `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Kind       RuleKind         `json:"kind" yaml:"kind" toml:"kind"`
	Weight     float64          `json:"weight" yaml:"weight" toml:"weight"`
	Entities   []string         `json:"entities,omitempty" yaml:"entities,omitempty" toml:"entities,omitempty"`
	Category   schema.Category  `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	Register   schema.Dimension `json:"register,omitempty" yaml:"register,omitempty" toml:"register,omitempty"`
	MinDensity float64          `json:"min_density,omitempty" yaml:"min_density,omitempty" toml:"min_density,omitempty"`
}

// Name returns the rule id, or a description derived from its kind.
func (r Rule) Name() string {
	if r.ID != "" {
		return r.ID
	}
	switch r.Kind {
	case KindEntity:
		return "entity:" + strings.Join(r.Entities, ",")
	case KindCategory:
		return "category:" + string(r.Category)
	case KindRegister:
		return "register:" + string(r.Register)
	}
	return string(r.Kind)
}

func (r Rule) validate() error {
	if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
		return fmt.Errorf("weight must be finite")
	}
	switch r.Kind {
	case KindEntity:
		if len(r.Entities) == 0 {
			return fmt.Errorf("entity rule needs entities")
		}
	case KindCategory:
		if !r.Category.Valid() {
			return fmt.Errorf("unknown category %q", r.Category)
		}
	case KindRegister:
		if !r.Register.IsFeature() {
			return fmt.Errorf("register %q is not a feature dimension", r.Register)
		}
		if r.MinDensity < 0 || r.MinDensity > 1 {
			return fmt.Errorf("min_density must be in [0,1], got %g", r.MinDensity)
		}
	case KindNegation, KindNegationCooccurrence:
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// DimensionConfig holds the sigmoid and rules of one scored dimension.
type DimensionConfig struct {
	K     float64 `json:"sigmoid_k" yaml:"sigmoid_k" toml:"sigmoid_k"`
	X0    float64 `json:"sigmoid_x0" yaml:"sigmoid_x0" toml:"sigmoid_x0"`
	Rules []Rule  `json:"rules" yaml:"rules" toml:"rules"`
}

// Condition tests one dimension score. Every set bound must hold:
// score >= Min, score < Max, |score - score(Against)| <= AbsDiffMax.
type Condition struct {
	Dimension  schema.Dimension `json:"dimension" yaml:"dimension" toml:"dimension"`
	Min        *float64         `json:"min,omitempty" yaml:"min,omitempty" toml:"min,omitempty"`
	Max        *float64         `json:"max,omitempty" yaml:"max,omitempty" toml:"max,omitempty"`
	AbsDiffMax *float64         `json:"abs_diff_max,omitempty" yaml:"abs_diff_max,omitempty" toml:"abs_diff_max,omitempty"`
	Against    schema.Dimension `json:"against,omitempty" yaml:"against,omitempty" toml:"against,omitempty"`
}

func (c Condition) holds(scores map[schema.Dimension]float64) bool {
	s := scores[c.Dimension]
	if c.Min != nil && s < *c.Min {
		return false
	}
	if c.Max != nil && s >= *c.Max {
		return false
	}
	if c.AbsDiffMax != nil && math.Abs(s-scores[c.Against]) > *c.AbsDiffMax {
		return false
	}
	return true
}

// Threshold assigns Tag when every condition holds.
type Threshold struct {
	Tag  string      `json:"tag" yaml:"tag" toml:"tag"`
	When []Condition `json:"when" yaml:"when" toml:"when"`
}

func (t Threshold) matches(scores map[schema.Dimension]float64) bool {
	for _, c := range t.When {
		if !c.holds(scores) {
			return false
		}
	}
	return true
}

// Config is the full tagging configuration.
type Config struct {
	ContextWeight float64                              `json:"context_weight" yaml:"context_weight" toml:"context_weight"`
	Dimensions    map[schema.Dimension]DimensionConfig `json:"dimensions" yaml:"dimensions" toml:"dimensions"`
	Primary       []Threshold                          `json:"primary" yaml:"primary" toml:"primary"`
	Secondary     []Threshold                          `json:"secondary" yaml:"secondary" toml:"secondary"`
	DefaultTag    string                               `json:"default_tag" yaml:"default_tag" toml:"default_tag"`
}

// PrimaryTag returns the tag of the first primary threshold that matches
// scores, or DefaultTag.
func (c Config) PrimaryTag(scores map[schema.Dimension]float64) string {
	for _, th := range c.Primary {
		if th.matches(scores) {
			return th.Tag
		}
	}
	return c.DefaultTag
}

// SecondaryTags returns the tags of every matching secondary threshold in
// table order.
func (c Config) SecondaryTags(scores map[schema.Dimension]float64) []string {
	tags := []string{}
	for _, th := range c.Secondary {
		if th.matches(scores) {
			tags = append(tags, th.Tag)
		}
	}
	return tags
}

// DefaultTag is assigned when no primary threshold matches.
const DefaultTag = "unmarked"

func ptr(v float64) *float64 { return &v }

// DefaultConfig returns rules keyed on categories and registers, so they
// apply to any lexicon that declares them.
func DefaultConfig() Config {
	sig := func(rules ...Rule) DimensionConfig {
		return DimensionConfig{K: 2.0, X0: 1.5, Rules: rules}
	}
	return Config{
		ContextWeight: 0.2,
		Dimensions: map[schema.Dimension]DimensionConfig{
			schema.Nirgun: sig(
				Rule{Kind: KindRegister, Register: schema.Nirgun, Weight: 1.5},
				Rule{Kind: KindCategory, Category: schema.CategoryOneness, Weight: 1.0},
			),
			schema.SagunNarrative: sig(
				Rule{Kind: KindRegister, Register: schema.SagunNarrative, Weight: 1.5},
				Rule{Kind: KindCategory, Category: schema.CategoryNarrative, Weight: 1.0},
			),
			schema.CritiqueRitual: sig(
				Rule{Kind: KindNegationCooccurrence, Weight: 2.0},
				Rule{Kind: KindRegister, Register: schema.Ritual, Weight: 0.5},
			),
			schema.CritiqueClerics: sig(
				Rule{Kind: KindRegister, Register: schema.Cleric, Weight: 1.0},
				Rule{Kind: KindNegation, Weight: 1.0},
			),
			schema.Universalism: sig(
				Rule{Kind: KindRegister, Register: schema.PersoArabic, Weight: 0.75},
				Rule{Kind: KindRegister, Register: schema.Sanskritic, Weight: 0.75},
			),
		},
		Primary: []Threshold{
			{Tag: "nirgun_leaning", When: []Condition{
				{Dimension: schema.Nirgun, Min: ptr(0.6)},
				{Dimension: schema.SagunNarrative, Max: ptr(0.3)},
			}},
			{Tag: "sagun_narrative_leaning", When: []Condition{
				{Dimension: schema.SagunNarrative, Min: ptr(0.6)},
				{Dimension: schema.Nirgun, Max: ptr(0.3)},
			}},
			{Tag: "mixed", When: []Condition{
				{Dimension: schema.Nirgun, Min: ptr(0.2)},
				{Dimension: schema.SagunNarrative, Min: ptr(0.2)},
				{Dimension: schema.Nirgun, AbsDiffMax: ptr(0.3), Against: schema.SagunNarrative},
			}},
		},
		Secondary: []Threshold{
			{Tag: "universalism", When: []Condition{{Dimension: schema.Universalism, Min: ptr(0.5)}}},
			{Tag: "critique_ritual", When: []Condition{{Dimension: schema.CritiqueRitual, Min: ptr(0.5)}}},
			{Tag: "critique_clerics", When: []Condition{{Dimension: schema.CritiqueClerics, Min: ptr(0.5)}}},
		},
		DefaultTag: DefaultTag,
	}
}

// Validate rejects configurations the tagger cannot score monotonically
// or that name unknown rule kinds, dimensions or categories.
func (c Config) Validate() error {
	if math.IsNaN(c.ContextWeight) || c.ContextWeight < 0 || c.ContextWeight > 1 {
		return fmt.Errorf("%w: context_weight must be in [0,1], got %g", internalerr.ErrInvalidConfig, c.ContextWeight)
	}
	if len(c.Dimensions) == 0 {
		return fmt.Errorf("%w: tagging needs at least one dimension", internalerr.ErrInvalidConfig)
	}
	for _, d := range sortedDimensions(c.Dimensions) {
		if _, err := schema.ParseDimension(string(d)); err != nil {
			return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
		}
		dc := c.Dimensions[d]
		if !(dc.K > 0) || math.IsInf(dc.K, 0) {
			return fmt.Errorf("%w: %s: sigmoid_k must be positive, got %g", internalerr.ErrInvalidConfig, d, dc.K)
		}
		if math.IsNaN(dc.X0) || math.IsInf(dc.X0, 0) {
			return fmt.Errorf("%w: %s: sigmoid_x0 must be finite", internalerr.ErrInvalidConfig, d)
		}
		for i, r := range dc.Rules {
			if err := r.validate(); err != nil {
				return fmt.Errorf("%w: %s rule %d: %v", internalerr.ErrInvalidConfig, d, i, err)
			}
		}
	}
	if err := validateThresholds("primary", c.Primary); err != nil {
		return err
	}
	if err := validateThresholds("secondary", c.Secondary); err != nil {
		return err
	}
	if c.DefaultTag == "" {
		return fmt.Errorf("%w: default_tag is empty", internalerr.ErrInvalidConfig)
	}
	return nil
}

func validateThresholds(table string, ts []Threshold) error {
	for i, t := range ts {
		if t.Tag == "" {
			return fmt.Errorf("%w: %s threshold %d has no tag", internalerr.ErrInvalidConfig, table, i)
		}
		if len(t.When) == 0 {
			return fmt.Errorf("%w: %s threshold %q has no conditions", internalerr.ErrInvalidConfig, table, t.Tag)
		}
		for _, c := range t.When {
			if _, err := schema.ParseDimension(string(c.Dimension)); err != nil {
				return fmt.Errorf("%w: %s threshold %q: %v", internalerr.ErrInvalidConfig, table, t.Tag, err)
			}
			if c.Min == nil && c.Max == nil && c.AbsDiffMax == nil {
				return fmt.Errorf("%w: %s threshold %q: condition on %s has no bound", internalerr.ErrInvalidConfig, table, t.Tag, c.Dimension)
			}
			if c.AbsDiffMax != nil {
				if _, err := schema.ParseDimension(string(c.Against)); err != nil {
					return fmt.Errorf("%w: %s threshold %q: abs_diff_max needs against: %v", internalerr.ErrInvalidConfig, table, t.Tag, err)
				}
			}
		}
	}
	return nil
}

func sortedDimensions(m map[schema.Dimension]DimensionConfig) []schema.Dimension {
	out := make([]schema.Dimension, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
