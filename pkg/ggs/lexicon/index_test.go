package lexicon

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/ggs/pkg/ggs/schema"
)

func entity(id string, cat schema.Category, forms ...string) Entity {
	aliases := make([]Alias, len(forms))
	for i, f := range forms {
		aliases[i] = Alias{Form: f, Type: AliasExact}
	}
	return Entity{ID: id, Canonical: forms[0], Aliases: aliases, Category: cat}
}

// naiveScan finds every occurrence of every pattern by brute force.
func naiveScan(idx *Index, text []rune) []Hit {
	var hits []Hit
	for _, p := range idx.patterns {
		form := []rune(p.Form)
		for i := 0; i+len(form) <= len(text); i++ {
			if string(text[i:i+len(form)]) == p.Form {
				hits = append(hits, Hit{Start: i, End: i + len(form), Pattern: p.ID})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.Pattern < b.Pattern
	})
	return hits
}

func TestScanClassicOverlaps(t *testing.T) {
	idx, err := Compile([]Entity{
		entity("HE", schema.CategoryConcept, "he"),
		entity("SHE", schema.CategoryConcept, "she"),
		entity("HIS", schema.CategoryConcept, "his"),
		entity("HERS", schema.CategoryConcept, "hers"),
	}, Options{})
	require.NoError(t, err)

	text := []rune("ushers")
	hits := idx.Scan(text)

	var got []string
	for _, h := range hits {
		got = append(got, idx.Pattern(h.Pattern).EntityID+"@"+string(text[h.Start:h.End]))
	}
	assert.Equal(t, []string{"SHE@she", "HERS@hers", "HE@he"}, got)
}

func TestScanMatchesNaive(t *testing.T) {
	idx, err := Compile([]Entity{
		entity("AA", schema.CategoryConcept, "ab", "abc"),
		entity("BB", schema.CategoryConcept, "bc", "b"),
		entity("CC", schema.CategoryConcept, "cab", "abcab"),
		entity("DD", schema.CategoryConcept, "ਸਤਿ", "ਤਿ"),
	}, Options{})
	require.NoError(t, err)

	for _, s := range []string{"abcabcab", "xxabcx", "bbbb", "ਸਤਿ ਨਾਮੁ ਤਿ", ""} {
		text := []rune(s)
		assert.Equal(t, naiveScan(idx, text), idx.Scan(text), s)
	}
}

func TestCompileNormalizesAliases(t *testing.T) {
	idx, err := Compile([]Entity{entity("FOO", schema.CategoryConcept, "FOO", "Phoo")}, Options{
		Normalize: strings.ToLower,
	})
	require.NoError(t, err)

	hits := idx.Scan([]rune("foo phoo"))
	require.Len(t, hits, 2)
	assert.Equal(t, "FOO", idx.Pattern(hits[0].Pattern).Raw)
	assert.Equal(t, []string{"FOO"}, idx.EntitiesForForm("phoo"))
}

func TestCompileRejectsBadInput(t *testing.T) {
	_, err := Compile([]Entity{
		entity("FOO", schema.CategoryConcept, "foo"),
		entity("FOO", schema.CategoryConcept, "bar"),
	}, Options{})
	require.Error(t, err)

	_, err = Compile([]Entity{entity("FOO", schema.CategoryConcept, "॥")}, Options{
		Normalize: func(s string) string { return strings.ReplaceAll(s, "॥", "") },
	})
	require.Error(t, err)

	_, err = Compile([]Entity{entity("lower", schema.CategoryConcept, "foo")}, Options{})
	require.Error(t, err)
}

func TestCompileDerivesDimensions(t *testing.T) {
	e := entity("ALLAH", schema.CategoryDivineName, "ਅਲਾਹੁ")
	e.Register = schema.RegisterPersoArabic
	e.Tradition = schema.TraditionIslamic

	declared := entity("NAAM", schema.CategoryConcept, "ਨਾਮੁ")
	declared.Dimensions = []schema.Dimension{schema.Nirgun}

	idx, err := Compile([]Entity{e, declared}, Options{})
	require.NoError(t, err)

	got, ok := idx.Entity("ALLAH")
	require.True(t, ok)
	assert.Equal(t, []schema.Dimension{schema.PersoArabic}, got.Dimensions)

	got, _ = idx.Entity("NAAM")
	assert.Equal(t, []schema.Dimension{schema.Nirgun}, got.Dimensions)
}

func TestDeriveDimensions(t *testing.T) {
	tests := []struct {
		name string
		e    Entity
		want []schema.Dimension
	}{
		{"narrative", Entity{Category: schema.CategoryNarrative}, []schema.Dimension{schema.SagunNarrative}},
		{"practice sanskritic", Entity{Category: schema.CategoryPractice, Register: schema.RegisterSanskritic},
			[]schema.Dimension{schema.Sanskritic, schema.Ritual}},
		{"cleric marker", Entity{Category: schema.CategoryMarker, Tradition: schema.TraditionIslamic},
			[]schema.Dimension{schema.Cleric}},
		{"nirgun name", Entity{Category: schema.CategoryDivineName, Tradition: schema.TraditionSikh, Register: schema.RegisterNeutral},
			[]schema.Dimension{schema.Nirgun}},
		{"sikh concept", Entity{Category: schema.CategoryConcept, Tradition: schema.TraditionSikh},
			[]schema.Dimension{schema.Nirgun}},
		{"plain place", Entity{Category: schema.CategoryPlace}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveDimensions(&tt.e))
		})
	}
}

func TestIndexHashStable(t *testing.T) {
	a := []Entity{entity("AA", schema.CategoryConcept, "x"), entity("BB", schema.CategoryConcept, "y")}
	b := []Entity{a[1], a[0]}

	ia, err := Compile(a, Options{})
	require.NoError(t, err)
	ib, err := Compile(b, Options{})
	require.NoError(t, err)
	assert.Equal(t, ia.Hash(), ib.Hash(), "input order does not change the hash")
	assert.Equal(t, ContentHash(a), ContentHash(b))

	c := []Entity{entity("AA", schema.CategoryConcept, "x"), entity("BB", schema.CategoryConcept, "z")}
	ic, err := Compile(c, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, ia.Hash(), ic.Hash())
}

func TestIndexStats(t *testing.T) {
	idx, err := Compile([]Entity{
		entity("AA", schema.CategoryConcept, "ab", "ab"),
		entity("BB", schema.CategoryConcept, "ab"),
	}, Options{})
	require.NoError(t, err)

	st := idx.Stats()
	assert.Equal(t, 2, st.Entities)
	assert.Equal(t, 2, st.Patterns, "repeated alias within an entity is compiled once")
	assert.Equal(t, 1, st.Forms)
	assert.Equal(t, []string{"AA", "BB"}, idx.EntitiesForForm("ab"))
}
