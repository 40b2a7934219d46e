// Package lexicon holds the controlled vocabulary: entities with their
// surface aliases, the polysemy table, and the compiled multi-pattern
// index used by the matcher.
package lexicon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// AliasType says how an alias aligns to tokens.
type AliasType string

const (
	// AliasExact must cover whole tokens.
	AliasExact AliasType = "exact"
	// AliasPrefix must start a token; the match extends to the token end.
	AliasPrefix AliasType = "prefix"
	// AliasSuffix must end a token; the match extends back to the token start.
	AliasSuffix AliasType = "suffix"
)

// Valid reports whether t is a known alias type.
func (t AliasType) Valid() bool {
	switch t {
	case AliasExact, AliasPrefix, AliasSuffix:
		return true
	}
	return false
}

// Alias is one surface form of an entity.
type Alias struct {
	Form string    `json:"form" yaml:"form"`
	Type AliasType `json:"type" yaml:"type"`
}

// UnmarshalYAML accepts either a mapping or a bare scalar form.
//
//	aliases:
//	  - ਅਲਾਹੁ
//	  - {form: ਅਲਹ, type: prefix}
func (a *Alias) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		a.Form = n.Value
		a.Type = AliasExact
		return nil
	}
	var raw struct {
		Form string    `yaml:"form"`
		Type AliasType `yaml:"type"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	a.Form = raw.Form
	a.Type = raw.Type
	if a.Type == "" {
		a.Type = AliasExact
	}
	return nil
}

// Entity is a lexicon concept.
type Entity struct {
	ID         string             `json:"id" yaml:"id"`
	Canonical  string             `json:"canonical_form" yaml:"canonical_form"`
	Aliases    []Alias            `json:"aliases" yaml:"aliases"`
	Category   schema.Category    `json:"category" yaml:"category"`
	Tradition  schema.Tradition   `json:"tradition,omitempty" yaml:"tradition"`
	Register   schema.Register    `json:"register,omitempty" yaml:"register"`
	Dimensions []schema.Dimension `json:"dimensions,omitempty" yaml:"dimensions"`
	Polysemous bool               `json:"polysemous,omitempty" yaml:"polysemous"`
	Notes      string             `json:"notes,omitempty" yaml:"notes"`

	// SourceFile is provenance only and not part of the content hash.
	SourceFile string `json:"-" yaml:"-"`
}

var idPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)

// Validate checks identifiers and controlled vocabularies.
func (e *Entity) Validate() error {
	if !idPattern.MatchString(e.ID) {
		return fmt.Errorf("%w: entity id %q must match %s", internalerr.ErrInvalidInput, e.ID, idPattern)
	}
	if strings.TrimSpace(e.Canonical) == "" {
		return fmt.Errorf("%w: entity %s has no canonical_form", internalerr.ErrInvalidInput, e.ID)
	}
	if len(e.Aliases) == 0 {
		return fmt.Errorf("%w: entity %s has no aliases", internalerr.ErrInvalidInput, e.ID)
	}
	for _, a := range e.Aliases {
		if strings.TrimSpace(a.Form) == "" {
			return fmt.Errorf("%w: entity %s has an empty alias", internalerr.ErrInvalidInput, e.ID)
		}
		if !a.Type.Valid() {
			return fmt.Errorf("%w: entity %s alias %q has type %q", internalerr.ErrInvalidInput, e.ID, a.Form, a.Type)
		}
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: entity %s has category %q", internalerr.ErrInvalidInput, e.ID, e.Category)
	}
	if !e.Tradition.Valid() {
		return fmt.Errorf("%w: entity %s has tradition %q", internalerr.ErrInvalidInput, e.ID, e.Tradition)
	}
	if !e.Register.Valid() {
		return fmt.Errorf("%w: entity %s has register %q", internalerr.ErrInvalidInput, e.ID, e.Register)
	}
	for _, d := range e.Dimensions {
		if !d.IsFeature() {
			return fmt.Errorf("%w: entity %s has dimension %q", internalerr.ErrInvalidInput, e.ID, d)
		}
	}
	return nil
}

// HasDimension reports whether the entity carries d.
func (e *Entity) HasDimension(d schema.Dimension) bool {
	for _, x := range e.Dimensions {
		if x == d {
			return true
		}
	}
	return false
}

// DeriveDimensions infers feature dimensions from register, category and
// tradition. Declared dimensions take precedence in Compile.
func DeriveDimensions(e *Entity) []schema.Dimension {
	var dims []schema.Dimension
	switch e.Register {
	case schema.RegisterPersoArabic:
		dims = append(dims, schema.PersoArabic)
	case schema.RegisterSanskritic:
		dims = append(dims, schema.Sanskritic)
	}

	switch e.Category {
	case schema.CategoryNarrative:
		dims = append(dims, schema.SagunNarrative)
	case schema.CategoryPractice:
		dims = append(dims, schema.Ritual)
	case schema.CategoryMarker:
		switch e.Tradition {
		case schema.TraditionIslamic, schema.TraditionVedantic, schema.TraditionYogic:
			dims = append(dims, schema.Cleric)
		}
	case schema.CategoryDivineName:
		if (e.Tradition == schema.TraditionSikh || e.Tradition == schema.TraditionUniversal) &&
			(e.Register == schema.RegisterNeutral || e.Register == schema.RegisterSanskritic) {
			dims = append(dims, schema.Nirgun)
		}
	case schema.CategoryConcept:
		if e.Tradition == schema.TraditionSikh || e.Tradition == schema.TraditionYogic {
			dims = append(dims, schema.Nirgun)
		}
	}
	return dims
}

// ContentHash is a SHA-256 over the entity table in ID order. File
// layout, key order and comments do not affect it.
func ContentHash(entities []Entity) string {
	sorted := append([]Entity(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	data, _ := json.Marshal(sorted)
	return hashBytes(data)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
