package ggs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cognicore/ggs/pkg/ggs/config"
	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/pipeline"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/store/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testComponents(t *testing.T) *config.Components {
	t.Helper()
	ent := func(id, form string, cat schema.Category, dims ...schema.Dimension) lexicon.Entity {
		return lexicon.Entity{ID: id, Canonical: form, Category: cat, Dimensions: dims,
			Aliases: []lexicon.Alias{{Form: form, Type: lexicon.AliasExact}}}
	}
	allah := ent("ALLAH", "allah", schema.CategoryDivineName, schema.PersoArabic)
	allah.Tradition = schema.TraditionIslamic
	ram := ent("RAM", "ram", schema.CategoryDivineName, schema.Sanskritic)
	ram.Tradition = schema.TraditionVaishnava
	cfg := config.Default()
	cfg.RitualNegation.Negations = []string{"nahi"}
	comp, err := (&config.Loader{
		Config: cfg,
		Entities: []lexicon.Entity{
			ent("NAAM", "naam", schema.CategoryConcept, schema.Nirgun),
			ent("NAHI", "nahi", schema.CategoryNegation),
			ent("TIRATH", "tirath", schema.CategoryPractice, schema.Ritual),
			ent("KRISHNA", "krishna", schema.CategoryNarrative, schema.SagunNarrative),
			allah,
			ram,
		},
	}).Load()
	require.NoError(t, err)
	return comp
}

// testCorpus returns lines in reverse order, spread over compositions and
// pages, with a few ungrouped lines at the end.
func testCorpus() []ingest.RawLine {
	texts := []string{
		"naam nahi tirath",
		"krishna naam gaavai",
		"nahi tirath allah",
		"ram naam krishna",
		"allah ram sach",
		"sach naam",
	}
	var out []ingest.RawLine
	for i := 0; i < 50; i++ {
		rl := ingest.RawLine{Seq: i + 1, Text: texts[i%len(texts)]}
		if i < 46 {
			rl.Composition = "shabad-" + string(rune('a'+i/6))
			rl.Page = "ang-" + string(rune('a'+i/4))
		}
		out = append([]ingest.RawLine{rl}, out...)
	}
	return out
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Components == nil {
		opts.Components = testComponents(t)
	}
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func encodeAll(t *testing.T, res *Result) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, s := range res.Streams() {
		var buf bytes.Buffer
		require.NoError(t, s.Encode(&buf), s.Name)
		out[s.Name] = buf.Bytes()
	}
	return out
}

func TestRunProducesEveryStream(t *testing.T) {
	e := newEngine(t, Options{Workers: 2})
	res, err := e.Run(context.Background(), Input{Lines: testCorpus()})
	require.NoError(t, err)

	require.Len(t, res.Lines, 50)
	for i := 1; i < len(res.Lines); i++ {
		assert.True(t, ingest.Less(&res.Lines[i-1], &res.Lines[i]), "lines sorted at %d", i)
	}
	assert.Len(t, res.Features, 50)
	assert.Len(t, res.Tags, 50)
	assert.NotEmpty(t, res.Matches)
	assert.Equal(t, res.Lines[0].UID, res.Tags[0].LineUID)

	require.NotNil(t, res.Cooccurrence)
	assert.Equal(t, cooccur.DefaultConfig().Levels, res.Cooccurrence.Levels)
	assert.NotEmpty(t, res.Cooccurrence.Records[cooccur.LevelLine])
	assert.NotEmpty(t, res.Density.Pages)
	assert.NotEmpty(t, res.Density.Guardrails)

	names := make([]string, 0)
	for _, s := range res.Streams() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"lines", "matches", "features",
		"cooccurrence_line", "cooccurrence_composition", "cooccurrence_page",
		"tags", "density", "cross_tradition", "issues",
	}, names)

	m := res.Manifest
	assert.Equal(t, pipeline.StatusOK, m.Status)
	assert.Equal(t, res.RunID, m.RunID)
	assert.Equal(t, 50, m.InputLines)
	require.Len(t, m.Phases, len(schema.Phases()))
	for i, p := range m.Phases {
		assert.Equal(t, schema.Phases()[i], p.Phase)
		assert.Equal(t, pipeline.CacheMiss, p.Cache)
		assert.NotEmpty(t, p.OutputHash)
	}

	stored, ok, err := e.Manifest(context.Background(), res.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m.InputHash, stored.InputHash)
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	ctx := context.Background()
	one, err := newEngine(t, Options{Workers: 1}).Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)
	eight, err := newEngine(t, Options{Workers: 8}).Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)

	a, b := encodeAll(t, one), encodeAll(t, eight)
	require.Equal(t, len(a), len(b))
	for name, data := range a {
		assert.True(t, bytes.Equal(data, b[name]), "stream %s differs", name)
	}
	for i := range one.Manifest.Phases {
		assert.Equal(t, one.Manifest.Phases[i].OutputHash, eight.Manifest.Phases[i].OutputHash)
	}
}

func TestRunReusesCache(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Options{Workers: 4})

	first, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)
	second, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	for _, p := range second.Manifest.Phases {
		assert.Equal(t, pipeline.CacheHit, p.Cache, p.Phase)
	}
	assert.Equal(t, encodeAll(t, first), encodeAll(t, second))

	for i, p := range first.Manifest.Phases {
		q := second.Manifest.Phases[i]
		assert.Equal(t, p.Records, q.Records, p.Phase)
		assert.Equal(t, p.Warnings, q.Warnings, p.Phase)
		assert.Equal(t, p.Errors, q.Errors, p.Phase)
	}
}

func TestRunRecomputesCorruptArtifact(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := newEngine(t, Options{Store: st})

	first, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)

	entry, ok, err := st.GetCacheEntry(ctx, schema.PhaseLexical)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, st.Corrupt(entry.ArtifactKey))

	second, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)

	lex, _ := second.Manifest.Phase(schema.PhaseLexical)
	assert.Equal(t, pipeline.CacheStale, lex.Cache)
	corpus, _ := second.Manifest.Phase(schema.PhaseCorpus)
	assert.Equal(t, pipeline.CacheHit, corpus.Cache)
	// The recomputed output is identical, so downstream keys still match.
	feat, _ := second.Manifest.Phase(schema.PhaseFeatures)
	assert.Equal(t, pipeline.CacheHit, feat.Cache)

	assert.Equal(t, encodeAll(t, first), encodeAll(t, second))
}

func TestRunForceAndInvalidate(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	comp := testComponents(t)
	e := newEngine(t, Options{Components: comp, Store: st})
	_, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)

	forced := newEngine(t, Options{Components: comp, Store: st, Force: true})
	res, err := forced.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)
	for _, p := range res.Manifest.Phases {
		assert.Equal(t, pipeline.CacheForced, p.Cache, p.Phase)
	}

	require.NoError(t, e.Invalidate(ctx, schema.PhaseTagging))
	res, err = e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)
	tag, _ := res.Manifest.Phase(schema.PhaseTagging)
	assert.Equal(t, pipeline.CacheMiss, tag.Cache)
	dens, _ := res.Manifest.Phase(schema.PhaseDensity)
	assert.Equal(t, pipeline.CacheHit, dens.Cache)

	err = e.Invalidate(ctx, "bogus")
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestRunChangedInputMissesCache(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Options{})
	_, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.NoError(t, err)

	lines := testCorpus()
	lines[0].Text = "naam naam"
	res, err := e.Run(ctx, Input{Lines: lines})
	require.NoError(t, err)
	corpus, _ := res.Manifest.Phase(schema.PhaseCorpus)
	assert.Equal(t, pipeline.CacheMiss, corpus.Cache)
}

func TestRunDuplicateSeqIsFatal(t *testing.T) {
	e := newEngine(t, Options{Workers: 4})
	lines := testCorpus()
	lines = append(lines, ingest.RawLine{Seq: 3, Text: "ram ram"})

	res, err := e.Run(context.Background(), Input{Lines: lines})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, internalerr.IsFatal(err))

	var fe *internalerr.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "DUPLICATE_SEQ", fe.Type)
	assert.Equal(t, schema.PhaseCorpus, fe.Phase)
}

func TestRunEmptyLineIsRecordError(t *testing.T) {
	e := newEngine(t, Options{})
	lines := []ingest.RawLine{
		{Seq: 1, Text: "naam nahi tirath", Composition: "c"},
		{Seq: 2, Text: " ; ", Composition: "c"},
		{Seq: 3, Text: "ram naam", Composition: "c"},
	}
	res, err := e.Run(context.Background(), Input{Lines: lines})
	require.NoError(t, err)

	assert.Len(t, res.Lines, 2)
	corpus, _ := res.Manifest.Phase(schema.PhaseCorpus)
	assert.Equal(t, 1, corpus.Errors)
	assert.Equal(t, 1, corpus.ErrorTypes["EMPTY_LINE"])

	var found bool
	for _, iss := range res.Issues {
		if iss.Type == "EMPTY_LINE" {
			found = true
			assert.Equal(t, internalerr.SeverityError, iss.Severity)
		}
	}
	assert.True(t, found)
}

func TestRunErrorThreshold(t *testing.T) {
	comp := testComponents(t)
	comp.Config.Errors.MaxRecordErrors = 0
	e := newEngine(t, Options{Components: comp})

	_, err := e.Run(context.Background(), Input{Lines: []ingest.RawLine{
		{Seq: 1, Text: "naam"},
		{Seq: 2, Text: ";"},
	}})
	require.Error(t, err)
	var fe *internalerr.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "ERROR_THRESHOLD_EXCEEDED", fe.Type)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newEngine(t, Options{})
	_, err := e.Run(ctx, Input{Lines: testCorpus()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresComponents(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestRunReportsCrossTradition(t *testing.T) {
	res, err := newEngine(t, Options{Workers: 2}).Run(context.Background(), Input{Lines: testCorpus()})
	require.NoError(t, err)

	ct := res.CrossTradition
	pairs := ct.Pairs[cooccur.LevelLine]
	require.NotEmpty(t, pairs)
	assert.Equal(t, "ALLAH", pairs[0].EntityA)
	assert.Equal(t, "RAM", pairs[0].EntityB)
	assert.Equal(t, 1, ct.Summary.TraditionPairs["islamic+vaishnava"])

	// "naam nahi tirath" and "nahi tirath allah" pair a practice with a negation.
	require.NotEmpty(t, ct.RitualNegation)
	for _, l := range ct.RitualNegation {
		assert.Equal(t, []string{"TIRATH"}, l.RitualEntities)
		assert.Equal(t, []string{"nahi"}, l.NegationTokens)
	}
	assert.Equal(t, len(ct.RitualNegation), ct.Summary.RitualNegationLines)

	preds := res.Predictions()
	assert.Len(t, preds, len(res.Tags))
	assert.Equal(t, res.Tags[0].Primary, preds[res.Tags[0].LineUID])
}
