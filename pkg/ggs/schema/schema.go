// Package schema holds the controlled vocabularies shared by every phase:
// dimensions, entity categories, registers and traditions. The sets are
// fixed at compile time so a lexicon or config that names an unknown value
// fails at load time instead of silently producing empty columns.
package schema

import (
	"fmt"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
)

// Version is stamped on every emitted record.
const Version = "1.0.0"

// Dimension is a semantic axis measured by the feature and tagging engines.
type Dimension string

const (
	PersoArabic     Dimension = "perso_arabic"
	Sanskritic      Dimension = "sanskritic"
	Nirgun          Dimension = "nirgun"
	SagunNarrative  Dimension = "sagun_narrative"
	Ritual          Dimension = "ritual"
	Cleric          Dimension = "cleric"
	CritiqueRitual  Dimension = "critique_ritual"
	CritiqueClerics Dimension = "critique_clerics"
	Universalism    Dimension = "universalism"
)

// featureDimensions are the dimensions an entity can carry. Order is the
// column order of feature vectors.
var featureDimensions = []Dimension{
	PersoArabic,
	Sanskritic,
	Nirgun,
	SagunNarrative,
	Ritual,
	Cleric,
}

// scoreDimensions are the dimensions the tagging engine scores.
var scoreDimensions = []Dimension{
	Nirgun,
	SagunNarrative,
	CritiqueRitual,
	CritiqueClerics,
	Universalism,
}

var knownDimensions = map[Dimension]struct{}{
	PersoArabic: {}, Sanskritic: {}, Nirgun: {}, SagunNarrative: {}, Ritual: {},
	Cleric: {}, CritiqueRitual: {}, CritiqueClerics: {}, Universalism: {},
}

// FeatureDimensions returns a copy of the feature dimension list.
func FeatureDimensions() []Dimension {
	return append([]Dimension(nil), featureDimensions...)
}

// ScoreDimensions returns a copy of the scored dimension list.
func ScoreDimensions() []Dimension {
	return append([]Dimension(nil), scoreDimensions...)
}

// IsFeature reports whether d is an entity-carried dimension.
func (d Dimension) IsFeature() bool {
	for _, f := range featureDimensions {
		if f == d {
			return true
		}
	}
	return false
}

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if _, ok := knownDimensions[d]; !ok {
		return "", fmt.Errorf("%w: unknown dimension %q", internalerr.ErrInvalidInput, s)
	}
	return d, nil
}

// Category classifies an entity.
type Category string

const (
	CategoryDivineName Category = "divine_name"
	CategoryConcept    Category = "concept"
	CategoryMarker     Category = "marker"
	CategoryNarrative  Category = "narrative"
	CategoryPlace      Category = "place"
	CategoryPractice   Category = "practice"
	CategoryNegation   Category = "negation"
	CategoryTemporal   Category = "temporal"
	CategoryEthical    Category = "ethical"
	CategoryDevotional Category = "devotional"
	CategoryIdentity   Category = "identity"
	CategoryScriptural Category = "scriptural"
	CategoryOneness    Category = "oneness"
)

var knownCategories = map[Category]struct{}{
	CategoryDivineName: {}, CategoryConcept: {}, CategoryMarker: {}, CategoryNarrative: {},
	CategoryPlace: {}, CategoryPractice: {}, CategoryNegation: {}, CategoryTemporal: {},
	CategoryEthical: {}, CategoryDevotional: {}, CategoryIdentity: {}, CategoryScriptural: {},
	CategoryOneness: {},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := knownCategories[c]
	return ok
}

// Register is the linguistic register of an entity's surface forms.
type Register string

const (
	RegisterPersoArabic Register = "perso_arabic"
	RegisterSanskritic  Register = "sanskritic"
	RegisterMixed       Register = "mixed"
	RegisterNeutral     Register = "neutral"
)

// Valid reports whether r is empty or a known register.
func (r Register) Valid() bool {
	switch r {
	case "", RegisterPersoArabic, RegisterSanskritic, RegisterMixed, RegisterNeutral:
		return true
	}
	return false
}

// Tradition is the devotional tradition an entity is associated with.
type Tradition string

const (
	TraditionIslamic   Tradition = "islamic"
	TraditionVedantic  Tradition = "vedantic"
	TraditionVaishnava Tradition = "vaishnava"
	TraditionYogic     Tradition = "yogic"
	TraditionBhakti    Tradition = "bhakti"
	TraditionUniversal Tradition = "universal"
	TraditionSikh      Tradition = "sikh"
)

// Valid reports whether t is empty or a known tradition.
func (t Tradition) Valid() bool {
	switch t {
	case "", TraditionIslamic, TraditionVedantic, TraditionVaishnava, TraditionYogic,
		TraditionBhakti, TraditionUniversal, TraditionSikh:
		return true
	}
	return false
}

// Confidence is the certainty attached to a match.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

// Rank orders confidence levels; higher is more certain.
func (c Confidence) Rank() int {
	switch c {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	}
	return 0
}

// Phase names, in execution order.
const (
	PhaseCorpus       = "corpus"
	PhaseLexical      = "lexical"
	PhaseFeatures     = "features"
	PhaseCooccurrence = "cooccurrence"
	PhaseTagging      = "tagging"
	PhaseDensity      = "density"
)

// Phases returns the phase names in dependency order.
func Phases() []string {
	return []string{PhaseCorpus, PhaseLexical, PhaseFeatures, PhaseCooccurrence, PhaseTagging, PhaseDensity}
}
