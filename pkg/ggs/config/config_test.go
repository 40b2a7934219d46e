package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/normalize"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ggs.yaml", `
corpus:
  normalize:
    diacritic: dual
cooccurrence:
  min_pmi_support: 5
  levels: [line, page]
tagging:
  context_weight: 0.5
  dimensions:
    nirgun:
      sigmoid_k: 3
      sigmoid_x0: 1
      rules:
        - kind: entity
          entities: [NAAM]
          weight: 2
errors:
  strict_mode: true
lexicon:
  paths: ["lexicon/**/*.yaml"]
  polysemy: polysemy.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, normalize.DiacriticDual, cfg.Corpus.Normalize.Diacritic)
	// Unset keys keep defaults.
	assert.Equal(t, normalize.NasalTippi, cfg.Corpus.Normalize.Nasal)
	assert.Equal(t, 5, cfg.Cooccurrence.MinPMISupport)
	assert.Equal(t, 2, cfg.Cooccurrence.MinCount)
	assert.Equal(t, []cooccur.Level{cooccur.LevelLine, cooccur.LevelPage}, cfg.Cooccurrence.Levels)
	assert.Equal(t, 0.5, cfg.Tagging.ContextWeight)
	assert.Equal(t, 3.0, cfg.Tagging.Dimensions[schema.Nirgun].K)
	assert.Equal(t, tagging.KindEntity, cfg.Tagging.Dimensions[schema.Nirgun].Rules[0].Kind)
	_, kept := cfg.Tagging.Dimensions[schema.Universalism]
	assert.True(t, kept)
	assert.True(t, cfg.Errors.StrictMode)
	assert.Equal(t, 100, cfg.Errors.MaxRecordErrors)
	assert.Equal(t, filepath.Join(dir, "lexicon/**/*.yaml"), cfg.Lexicon.Paths[0])
	assert.Equal(t, filepath.Join(dir, "polysemy.yaml"), cfg.Lexicon.Polysemy)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ggs.toml", `
[cooccurrence]
min_count = 3
min_pmi_support = 4
smoothing_k = 0.5

[density]
window_size = 5

[run]
workers = 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Cooccurrence.MinCount)
	assert.Equal(t, 0.5, cfg.Cooccurrence.SmoothingK)
	assert.Equal(t, 5, cfg.Density.WindowSize)
	assert.Equal(t, 8, cfg.Run.Workers)
	assert.Equal(t, normalize.DefaultPolicy(), cfg.Corpus.Normalize)
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := Parse([]byte("{}"), ".json")
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	_, err = Parse([]byte("corpus: [oops"), ".yaml")
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad nasal", func(c *Config) { c.Corpus.Normalize.Nasal = "dot" }},
		{"empty marker", func(c *Config) { c.Corpus.Markers = append(c.Corpus.Markers, ingestMarker("", "pause")) }},
		{"bad level", func(c *Config) { c.Cooccurrence.Levels = []cooccur.Level{"book"} }},
		{"bad rule kind", func(c *Config) {
			dc := c.Tagging.Dimensions[schema.Nirgun]
			dc.Rules = []tagging.Rule{{Kind: "lookup", Weight: 1}}
			c.Tagging.Dimensions[schema.Nirgun] = dc
		}},
		{"zero window", func(c *Config) { c.Density.WindowSize = 0 }},
		{"negative workers", func(c *Config) { c.Run.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), internalerr.ErrInvalidConfig)
		})
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lexicon/names.yaml", "entities: []\n")
	writeFile(t, dir, "lexicon/sub/concepts.yaml", "entities: []\n")
	writeFile(t, dir, "lexicon/readme.txt", "")

	lex := Lexicon{Paths: []string{"lexicon/**/*.yaml", "lexicon/names.yaml"}}.resolve(dir)
	paths, err := lex.ExpandPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "lexicon/names.yaml"),
		filepath.Join(dir, "lexicon/sub/concepts.yaml"),
	}, paths)

	_, err = Lexicon{Paths: []string{filepath.Join(dir, "missing/*.yaml")}}.ExpandPaths()
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func TestSectionHash(t *testing.T) {
	a := Default()
	b := Default()
	for _, phase := range schema.Phases() {
		assert.Equal(t, a.SectionHash(phase), b.SectionHash(phase), phase)
	}

	b.Cooccurrence.MinPMISupport = 9
	assert.NotEqual(t, a.SectionHash(schema.PhaseCooccurrence), b.SectionHash(schema.PhaseCooccurrence))
	assert.Equal(t, a.SectionHash(schema.PhaseTagging), b.SectionHash(schema.PhaseTagging))
	assert.NotEqual(t, a.Hash(), b.Hash())

	c := Default()
	c.Run.Workers = 32
	assert.Equal(t, a.Hash(), c.Hash(), "worker count must not affect the config hash")
}

func TestLoaderBuildsComponents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lexicon/a.yaml", `
entities:
  - id: NAAM
    canonical_form: naam
    aliases: [naam]
    category: concept
    tradition: sikh
  - id: BAD
    aliases: []
    category: concept
`)
	writeFile(t, dir, "polysemy.yaml", `
entries:
  - form: naam
    level: MEDIUM
    alternatives: [NAAM]
`)
	cfg := Default()
	cfg.Lexicon = Lexicon{Paths: []string{"lexicon/*.yaml"}, Polysemy: "polysemy.yaml"}.resolve(dir)

	comp, err := (&Loader{Config: cfg}).Load()
	require.NoError(t, err)
	assert.Equal(t, 1, comp.Index.Stats().Entities)
	assert.Equal(t, 1, comp.Polysemy.Len())
	assert.Contains(t, comp.LexiconFiles, "a.yaml")
	require.Len(t, comp.LexiconIssues, 1)
	assert.Equal(t, internalerr.SeverityError, comp.LexiconIssues[0].Severity)
	assert.Contains(t, comp.LexiconHash(), "+")
	assert.NotNil(t, comp.Matcher)
	assert.NotNil(t, comp.Tagger)
}

func TestLoaderInvalidConfigIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Tagging.ContextWeight = 2
	_, err := (&Loader{Config: cfg, Entities: []lexicon.Entity{}}).Load()
	require.Error(t, err)
	assert.True(t, internalerr.IsFatal(err))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	var fe *internalerr.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "INVALID_CONFIG", fe.Type)
}

func ingestMarker(form, role string) ingest.MarkerDef {
	return ingest.MarkerDef{Form: form, Role: role}
}

func TestLoadResolvesCachePath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ggs.yaml", "run:\n  cache_path: cache/ggs.db\n  workers: 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache/ggs.db"), cfg.Run.CachePath)
	assert.Equal(t, 2, cfg.Run.Workers)
}
