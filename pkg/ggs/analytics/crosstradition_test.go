package analytics

import (
	"reflect"
	"testing"

	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

func traditionIndex(t *testing.T) *lexicon.Index {
	t.Helper()
	ent := func(id, form string, cat schema.Category, tr schema.Tradition) lexicon.Entity {
		return lexicon.Entity{ID: id, Canonical: form, Category: cat, Tradition: tr,
			Aliases: []lexicon.Alias{{Form: form, Type: lexicon.AliasExact}}}
	}
	idx, err := lexicon.Compile([]lexicon.Entity{
		ent("ALLAH", "allah", schema.CategoryDivineName, schema.TraditionIslamic),
		ent("KHUDA", "khuda", schema.CategoryDivineName, schema.TraditionIslamic),
		ent("RAM", "ram", schema.CategoryDivineName, schema.TraditionVaishnava),
		ent("HARI", "hari", schema.CategoryDivineName, schema.TraditionVaishnava),
		ent("NAAM", "naam", schema.CategoryConcept, ""),
		ent("TIRATH", "tirath", schema.CategoryPractice, ""),
		ent("TILAK_MARK", "tilak", schema.CategoryConcept, ""),
	}, lexicon.Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return idx
}

func f64(v float64) *float64 { return &v }

func TestCrossTraditionPairs(t *testing.T) {
	idx := traditionIndex(t)
	recs := []cooccur.Record{
		{EntityA: "ALLAH", EntityB: "KHUDA", Level: cooccur.LevelLine, RawCount: 9, NPMI: f64(0.9)},
		{EntityA: "ALLAH", EntityB: "RAM", Level: cooccur.LevelLine, RawCount: 4, NPMI: f64(0.3)},
		{EntityA: "HARI", EntityB: "KHUDA", Level: cooccur.LevelLine, RawCount: 2},
		{EntityA: "KHUDA", EntityB: "RAM", Level: cooccur.LevelLine, RawCount: 5, NPMI: f64(0.6)},
		{EntityA: "ALLAH", EntityB: "HARI", Level: cooccur.LevelLine, RawCount: 7, NPMI: f64(0.3)},
		{EntityA: "NAAM", EntityB: "RAM", Level: cooccur.LevelLine, RawCount: 3, NPMI: f64(0.8)},
		{EntityA: "RAM", EntityB: "UNKNOWN", Level: cooccur.LevelLine, RawCount: 3, NPMI: f64(0.8)},
	}

	got := CrossTraditionPairs(recs, idx)
	var order []string
	for _, p := range got {
		order = append(order, p.EntityA+"/"+p.EntityB)
	}
	want := []string{"KHUDA/RAM", "ALLAH/HARI", "ALLAH/RAM", "HARI/KHUDA"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if got[0].TraditionA != schema.TraditionIslamic || got[0].TraditionB != schema.TraditionVaishnava {
		t.Errorf("traditions = %s, %s", got[0].TraditionA, got[0].TraditionB)
	}
	if got[3].NPMI != nil {
		t.Error("pair without NPMI should carry nil")
	}
}

func TestTraditionPairLabel(t *testing.T) {
	a := TraditionPairLabel(schema.TraditionVaishnava, schema.TraditionIslamic)
	b := TraditionPairLabel(schema.TraditionIslamic, schema.TraditionVaishnava)
	if a != b || a != "islamic+vaishnava" {
		t.Errorf("labels = %q, %q", a, b)
	}
}

func TestRitualNegationLines(t *testing.T) {
	idx := traditionIndex(t)
	mk := func(seq int, page string, tokens ...string) ingest.Line {
		return ingest.Line{Seq: seq, UID: ingest.LineUID(seq, "x"), Page: page, Tokens: tokens}
	}
	lines := []ingest.Line{
		mk(1, "1", "ਨਾ", "tirath", "ਨਾ"),
		mk(2, "1", "tirath", "naam"),
		mk(3, "2", "tilak", "ਬਿਨੁ"),
		mk(4, "2", "naam", "ਨਾਹੀ"),
		mk(5, "3", "ਨਹੀ", "tirath"),
	}
	parent := "m0"
	matches := []match.Match{
		{LineUID: lines[4].UID, EntityID: "TIRATH"},
		{LineUID: lines[0].UID, EntityID: "TIRATH"},
		{LineUID: lines[1].UID, EntityID: "TIRATH"},
		{LineUID: lines[2].UID, EntityID: "TILAK_MARK"},
		{LineUID: lines[3].UID, EntityID: "NAAM"},
		{LineUID: lines[3].UID, EntityID: "TIRATH", NestedIn: &parent},
	}

	got := DefaultRitualNegation().Lines(lines, matches, idx)
	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %+v", got)
	}
	if got[0].Seq != 1 || got[1].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("lines out of corpus order: %+v", got)
	}
	if !reflect.DeepEqual(got[0].NegationTokens, []string{"ਨਾ", "ਨਾ"}) {
		t.Errorf("negations = %v", got[0].NegationTokens)
	}
	if !reflect.DeepEqual(got[1].RitualEntities, []string{"TILAK_MARK"}) {
		t.Errorf("keyword match missing: %+v", got[1])
	}
}

func TestCrossTradition(t *testing.T) {
	idx := traditionIndex(t)
	co := &cooccur.Result{
		Levels: []cooccur.Level{cooccur.LevelLine, cooccur.LevelPage},
		Records: map[cooccur.Level][]cooccur.Record{
			cooccur.LevelLine: {
				{EntityA: "ALLAH", EntityB: "RAM", Level: cooccur.LevelLine, RawCount: 4, NPMI: f64(0.3)},
				{EntityA: "HARI", EntityB: "KHUDA", Level: cooccur.LevelLine, RawCount: 2},
			},
			cooccur.LevelPage: {
				{EntityA: "ALLAH", EntityB: "KHUDA", Level: cooccur.LevelPage, RawCount: 2},
			},
		},
	}

	rep := CrossTradition(co, nil, nil, idx, DefaultRitualNegation())
	if rep.Summary.Pairs[cooccur.LevelLine] != 2 || rep.Summary.Pairs[cooccur.LevelPage] != 0 {
		t.Errorf("pair counts = %v", rep.Summary.Pairs)
	}
	if rep.Summary.TraditionPairs["islamic+vaishnava"] != 2 {
		t.Errorf("tradition pairs = %v", rep.Summary.TraditionPairs)
	}
	if rep.Pairs[cooccur.LevelPage] == nil || len(rep.RitualNegation) != 0 {
		t.Errorf("empty sections should encode as empty arrays: %+v", rep)
	}
}
