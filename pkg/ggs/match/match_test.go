package match

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

func makeLine(seq int, text string) *ingest.Line {
	res := ingest.NewTokenizer(ingest.DefaultMarkers()).Tokenize(text)
	return &ingest.Line{
		Seq:     seq,
		UID:     ingest.LineUID(seq, text),
		Text:    text,
		Tokens:  res.Tokens,
		Spans:   res.Spans,
		Markers: res.Markers,
	}
}

func ent(id string, forms ...string) lexicon.Entity {
	aliases := make([]lexicon.Alias, len(forms))
	for i, f := range forms {
		aliases[i] = lexicon.Alias{Form: f, Type: lexicon.AliasExact}
	}
	return lexicon.Entity{ID: id, Canonical: forms[0], Aliases: aliases, Category: schema.CategoryConcept}
}

func newMatcher(t *testing.T, poly *lexicon.PolysemyTable, entities ...lexicon.Entity) *Matcher {
	t.Helper()
	idx, err := lexicon.Compile(entities, lexicon.Options{})
	require.NoError(t, err)
	return New(idx, poly)
}

func byEntity(ms []Match) map[string]Match {
	out := make(map[string]Match, len(ms))
	for _, m := range ms {
		out[m.EntityID] = m
	}
	return out
}

func TestCrossingKeepsLonger(t *testing.T) {
	m := newMatcher(t, nil,
		ent("XBAR", "x bar"),
		ent("BARFOO", "bar foo"),
		ent("BAR", "bar"),
		ent("FOO", "foo", "phoo"),
	)
	line := makeLine(1, "x bar foo")

	got, issues, err := m.Match(line)
	require.NoError(t, err)
	assert.Empty(t, issues)

	ids := byEntity(got)
	require.Len(t, got, 3)
	assert.NotContains(t, ids, "XBAR", "shorter crossing match is dropped")

	barfoo := ids["BARFOO"]
	assert.Nil(t, barfoo.NestedIn)
	assert.Equal(t, ingest.Span{Start: 2, End: 9}, barfoo.Span)
	assert.Equal(t, 1, barfoo.TokenStart)
	assert.Equal(t, 3, barfoo.TokenEnd)

	require.NotNil(t, ids["BAR"].NestedIn)
	assert.Equal(t, barfoo.ID, *ids["BAR"].NestedIn)
	require.NotNil(t, ids["FOO"].NestedIn)
	assert.Equal(t, barfoo.ID, *ids["FOO"].NestedIn)

	assert.Equal(t, "BARFOO", got[0].EntityID, "sorted by start then longer first")
}

func TestNestedThreeTokenMatch(t *testing.T) {
	m := newMatcher(t, nil,
		ent("MOOL", "ਸਤਿ ਨਾਮੁ ਕਰਤਾ"),
		ent("NAAM", "ਨਾਮੁ"),
	)
	line := makeLine(7, "ਸਤਿ ਨਾਮੁ ਕਰਤਾ ਪੁਰਖੁ")

	got, _, err := m.Match(line)
	require.NoError(t, err)
	require.Len(t, got, 2)

	outer, inner := got[0], got[1]
	assert.Equal(t, "MOOL", outer.EntityID)
	assert.Equal(t, 3, outer.TokenEnd-outer.TokenStart)
	assert.Nil(t, outer.NestedIn)

	assert.Equal(t, "NAAM", inner.EntityID)
	require.NotNil(t, inner.NestedIn)
	assert.Equal(t, outer.ID, *inner.NestedIn)
	assert.Equal(t, MatchID(line.UID, outer.Span, "MOOL"), outer.ID)
}

func TestEqualBoundsNesting(t *testing.T) {
	m := newMatcher(t, nil, ent("ALPHA", "foo"), ent("BETA", "foo"), ent("GAMMA", "foo"))

	got, _, err := m.Match(makeLine(1, "foo"))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Nil(t, got[0].NestedIn)
	assert.Equal(t, got[0].ID, *got[1].NestedIn)
	assert.Equal(t, got[1].ID, *got[2].NestedIn)
	for _, mt := range got {
		assert.Equal(t, schema.Medium, mt.Confidence, "shared alias")
		assert.Equal(t, []string{"ALPHA", "BETA", "GAMMA"}, mt.Ambiguity.Alternatives)
		assert.Nil(t, mt.Ambiguity.Resolution)
	}
}

func TestCrossingTieKeepsBothFlagged(t *testing.T) {
	m := newMatcher(t, nil, ent("AB", "a b"), ent("BC", "b c"))

	got, issues, err := m.Match(makeLine(1, "a b c"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, mt := range got {
		assert.True(t, mt.Review)
		assert.Nil(t, mt.NestedIn)
	}
	require.Len(t, issues, 2)
	for _, iss := range issues {
		assert.Equal(t, "CROSSING_TIE", iss.Type)
		assert.Equal(t, internalerr.SeverityWarning, iss.Severity)
	}
}

func TestCrossingTieBrokenByConfidence(t *testing.T) {
	ab := ent("AB", "a b")
	ab.Polysemous = true
	m := newMatcher(t, nil, ab, ent("BC", "b c"))

	got, _, err := m.Match(makeLine(1, "a b c"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BC", got[0].EntityID)
	assert.False(t, got[0].Review)
}

func TestAlignmentToTokens(t *testing.T) {
	prefix := lexicon.Entity{ID: "BA", Canonical: "ba", Category: schema.CategoryConcept,
		Aliases: []lexicon.Alias{{Form: "ba", Type: lexicon.AliasPrefix}}}
	suffix := lexicon.Entity{ID: "OO", Canonical: "oo", Category: schema.CategoryConcept,
		Aliases: []lexicon.Alias{{Form: "oo", Type: lexicon.AliasSuffix}}}
	m := newMatcher(t, nil, ent("AR", "ar"), prefix, suffix)

	got, _, err := m.Match(makeLine(1, "bar foo"))
	require.NoError(t, err)

	ids := byEntity(got)
	assert.NotContains(t, ids, "AR", "exact alias inside a token is not a match")
	require.Contains(t, ids, "BA")
	assert.Equal(t, "bar", ids["BA"].Form)
	assert.Equal(t, "alias_prefix", ids["BA"].RuleID)
	require.Contains(t, ids, "OO")
	assert.Equal(t, "foo", ids["OO"].Form)
	assert.Equal(t, ingest.Span{Start: 4, End: 7}, ids["OO"].Span)
}

func TestPolysemyConfidence(t *testing.T) {
	poly, err := lexicon.NewPolysemyTable([]lexicon.Polysemy{
		{Form: "hari", Level: schema.Low, Alternatives: []string{"HARI", "GREEN"}},
	})
	require.NoError(t, err)
	m := newMatcher(t, poly, ent("HARI", "hari"), ent("NAAM", "naam"))

	got, issues, err := m.Match(makeLine(1, "hari naam"))
	require.NoError(t, err)

	ids := byEntity(got)
	assert.Equal(t, schema.Low, ids["HARI"].Confidence)
	assert.Equal(t, []string{"GREEN", "HARI"}, ids["HARI"].Ambiguity.Alternatives)
	assert.Equal(t, SourcePolysemyTable, ids["HARI"].Ambiguity.Source)
	assert.Equal(t, schema.High, ids["NAAM"].Confidence)
	assert.Nil(t, ids["NAAM"].Ambiguity)

	require.Len(t, issues, 1)
	assert.Equal(t, "LOW_CONFIDENCE", issues[0].Type)
}

func TestResolveIndependentOfOrder(t *testing.T) {
	m := newMatcher(t, nil,
		ent("AB", "a b"), ent("BC", "b c"), ent("CD", "c d"),
		ent("ABC", "a b c"), ent("BB", "b"), ent("DE", "d e"),
	)
	line := makeLine(1, "a b c d e")
	text := []rune(line.Text)
	cands := m.align(line, text, m.index.Scan(text))
	for i := range cands {
		m.assignConfidence(&cands[i])
	}

	want := finalize(resolve(append([]candidate(nil), cands...)))
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]candidate(nil), cands...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, finalize(resolve(shuffled)))
	}
}

func finalize(cs []candidate) []Match {
	out := make([]Match, len(cs))
	for i, c := range cs {
		out[i] = c.Match
	}
	sortMatches(out)
	assignNesting(out)
	return out
}

func TestValidateAlignmentRejectsMisaligned(t *testing.T) {
	line := makeLine(1, "bar foo")
	bad := []Match{{ID: "x", EntityID: "X", Span: ingest.Span{Start: 1, End: 3}, TokenStart: 0, TokenEnd: 1}}

	err := ValidateAlignment(line, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerr.ErrFatal)
	assert.ErrorIs(t, err, internalerr.ErrInvariant)

	crossing := []Match{
		{ID: "a", Span: ingest.Span{Start: 0, End: 7}, TokenStart: 0, TokenEnd: 2},
		{ID: "b", Span: ingest.Span{Start: 4, End: 7}, TokenStart: 1, TokenEnd: 2},
	}
	require.NoError(t, ValidateAlignment(line, crossing), "containment is not crossing")
}
