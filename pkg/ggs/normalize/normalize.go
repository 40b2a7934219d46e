// Package normalize canonicalizes Gurmukhi scripture text under an explicit
// policy. Every step is a pure function of its input and the composite
// Normalize is idempotent for every policy combination:
//
//	Normalize(Normalize(x, p), p) == Normalize(x, p)
//
// Nothing here fails. Characters outside the expected repertoire pass
// through untouched; callers use UnexpectedRunes to raise a warning.
package normalize

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Version identifies the normalization rules for provenance.
const Version = "1.0.0"

const (
	nukta       = '\u0A3C'
	bindi       = '\u0A02'
	tippi       = '\u0A70'
	virama      = '\u0A4D'
	danda       = '\u0964'
	doubleDanda = '\u0965'
	zwsp        = '\u200B'
	zwnj        = '\u200C'
	zwj         = '\u200D'
	bom         = '\uFEFF'
)

// DiacriticPolicy controls the nukta (dot-below) variant.
type DiacriticPolicy string

const (
	DiacriticPreserve DiacriticPolicy = "preserve"
	DiacriticCollapse DiacriticPolicy = "collapse"
	// DiacriticDual keeps the preserved text as primary and also produces
	// the collapsed variant (see NormalizeVariants).
	DiacriticDual DiacriticPolicy = "dual"
)

// NasalPolicy controls bindi/tippi canonicalization.
type NasalPolicy string

const (
	NasalTippi    NasalPolicy = "tippi"
	NasalBindi    NasalPolicy = "bindi"
	NasalPreserve NasalPolicy = "preserve"
)

// PausePolicy controls danda and verse punctuation.
type PausePolicy string

const (
	PauseStrip    PausePolicy = "strip"
	PauseSeparate PausePolicy = "separate"
)

// ConjunctPolicy controls virama conjuncts.
type ConjunctPolicy string

const (
	ConjunctDecompose ConjunctPolicy = "decompose"
	ConjunctPreserve  ConjunctPolicy = "preserve"
)

// Policy is the ordered set of normalization steps. Boolean steps can be
// switched off; enumerated steps pick a direction.
type Policy struct {
	Compose            bool            `json:"compose" yaml:"compose" toml:"compose"`
	StripZeroWidth     bool            `json:"strip_zero_width" yaml:"strip_zero_width" toml:"strip_zero_width"`
	Diacritic          DiacriticPolicy `json:"diacritic" yaml:"diacritic" toml:"diacritic"`
	Nasal              NasalPolicy     `json:"nasal" yaml:"nasal" toml:"nasal"`
	Pause              PausePolicy     `json:"pause" yaml:"pause" toml:"pause"`
	Conjunct           ConjunctPolicy  `json:"conjunct" yaml:"conjunct" toml:"conjunct"`
	CollapseWhitespace bool            `json:"collapse_whitespace" yaml:"collapse_whitespace" toml:"collapse_whitespace"`
}

// DefaultPolicy returns the policy used for the canonical corpus.
func DefaultPolicy() Policy {
	return Policy{
		Compose:            true,
		StripZeroWidth:     true,
		Diacritic:          DiacriticPreserve,
		Nasal:              NasalTippi,
		Pause:              PauseStrip,
		Conjunct:           ConjunctDecompose,
		CollapseWhitespace: true,
	}
}

// Validate rejects unknown enumerated values.
func (p Policy) Validate() error {
	switch p.Diacritic {
	case DiacriticPreserve, DiacriticCollapse, DiacriticDual:
	default:
		return fmt.Errorf("unknown diacritic policy %q", p.Diacritic)
	}
	switch p.Nasal {
	case NasalTippi, NasalBindi, NasalPreserve:
	default:
		return fmt.Errorf("unknown nasal policy %q", p.Nasal)
	}
	switch p.Pause {
	case PauseStrip, PauseSeparate:
	default:
		return fmt.Errorf("unknown pause policy %q", p.Pause)
	}
	switch p.Conjunct {
	case ConjunctDecompose, ConjunctPreserve:
	default:
		return fmt.Errorf("unknown conjunct policy %q", p.Conjunct)
	}
	return nil
}

// Normalize applies the policy to raw text. Under DiacriticDual the
// preserved variant is returned.
func Normalize(raw string, p Policy) string {
	s := raw
	if p.Compose {
		s = Compose(s)
	}
	if p.StripZeroWidth {
		s = StripZeroWidth(s)
	}
	if p.Diacritic == DiacriticCollapse {
		s = CollapseDiacritics(s)
	}
	s = CanonicalizeNasal(s, p.Nasal)
	s = ApplyPause(s, p.Pause)
	if p.Conjunct == ConjunctDecompose {
		s = DecomposeConjuncts(s)
	}
	if p.Compose {
		s = Compose(s)
	}
	if p.CollapseWhitespace {
		s = CollapseWhitespace(s)
	}
	return s
}

// NormalizeVariants returns the primary text and, under DiacriticDual, the
// diacritic-collapsed alternative. For other policies alt is empty.
func NormalizeVariants(raw string, p Policy) (primary, alt string) {
	primary = Normalize(raw, p)
	if p.Diacritic != DiacriticDual {
		return primary, ""
	}
	collapsed := p
	collapsed.Diacritic = DiacriticCollapse
	return primary, Normalize(raw, collapsed)
}

// StepNames lists the steps the policy runs, in order.
func StepNames(p Policy) []string {
	var steps []string
	if p.Compose {
		steps = append(steps, "nfc")
	}
	if p.StripZeroWidth {
		steps = append(steps, "strip_zero_width")
	}
	steps = append(steps, "diacritic_"+string(p.Diacritic))
	steps = append(steps, "nasal_"+string(p.Nasal))
	steps = append(steps, "pause_"+string(p.Pause))
	steps = append(steps, "conjunct_"+string(p.Conjunct))
	if p.Compose {
		steps = append(steps, "nfc")
	}
	if p.CollapseWhitespace {
		steps = append(steps, "collapse_whitespace")
	}
	return steps
}

// Compose applies Unicode canonical composition (NFC).
func Compose(s string) string {
	return norm.NFC.String(s)
}

// StripZeroWidth removes ZWJ, ZWNJ, ZWSP and BOM.
func StripZeroWidth(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case zwj, zwnj, zwsp, bom:
			return -1
		}
		return r
	}, s)
}

// nuktaBase maps precomposed nukta letters to their base letter.
var nuktaBase = map[rune]rune{
	'\u0A33': '\u0A32', // ਲ਼ -> ਲ
	'\u0A36': '\u0A38', // ਸ਼ -> ਸ
	'\u0A59': '\u0A16', // ਖ਼ -> ਖ
	'\u0A5A': '\u0A17', // ਗ਼ -> ਗ
	'\u0A5B': '\u0A1C', // ਜ਼ -> ਜ
	'\u0A5C': '\u0A21', // ੜ -> ਡ
	'\u0A5E': '\u0A2B', // ਫ਼ -> ਫ
}

// CollapseDiacritics folds nukta letters onto their base letters.
func CollapseDiacritics(s string) string {
	return strings.Map(func(r rune) rune {
		if r == nukta {
			return -1
		}
		if base, ok := nuktaBase[r]; ok {
			return base
		}
		return r
	}, s)
}

// CanonicalizeNasal rewrites bindi/tippi in the requested direction.
func CanonicalizeNasal(s string, p NasalPolicy) string {
	var from, to rune
	switch p {
	case NasalTippi:
		from, to = bindi, tippi
	case NasalBindi:
		from, to = tippi, bindi
	default:
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == from {
			return to
		}
		return r
	}, s)
}

// ApplyPause strips or isolates pause punctuation. Under PauseStrip a
// single danda touching a digit survives since it belongs to verse
// numbering.
func ApplyPause(s string, p PausePolicy) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	switch p {
	case PauseStrip:
		for i, r := range rs {
			switch r {
			case ';', ',', doubleDanda:
				continue
			case danda:
				if !touchesDigit(rs, i) {
					continue
				}
			}
			b.WriteRune(r)
		}
	case PauseSeparate:
		for i, r := range rs {
			if r != danda && r != doubleDanda {
				b.WriteRune(r)
				continue
			}
			if i > 0 && !unicode.IsSpace(rs[i-1]) && !isPause(rs[i-1]) {
				b.WriteRune(' ')
			}
			b.WriteRune(r)
			if i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) {
				b.WriteRune(' ')
			}
		}
	default:
		return s
	}
	return b.String()
}

func isPause(r rune) bool {
	return r == danda || r == doubleDanda
}

func touchesDigit(rs []rune, i int) bool {
	return (i > 0 && unicode.IsDigit(rs[i-1])) || (i+1 < len(rs) && unicode.IsDigit(rs[i+1]))
}

// DecomposeConjuncts drops joiner controls after a virama, so conjuncts
// are spelled as plain consonant+virama+consonant, then canonically
// reorders the result.
func DecomposeConjuncts(s string) string {
	rs := []rune(norm.NFD.String(s))
	out := make([]rune, 0, len(rs))
	for _, r := range rs {
		if (r == zwj || r == zwnj) && len(out) > 0 && out[len(out)-1] == virama {
			continue
		}
		out = append(out, r)
	}
	return norm.NFC.String(string(out))
}

// CollapseWhitespace collapses whitespace runs to one space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
