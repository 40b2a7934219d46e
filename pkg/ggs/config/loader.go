package config

import (
	"fmt"

	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/features"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/normalize"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// Loader constructs runtime components from a configuration.
type Loader struct {
	Config Config
	// Entities, when set, are used instead of reading Config.Lexicon.Paths.
	Entities []lexicon.Entity
	// Polysemy, when set, is used instead of reading Config.Lexicon.Polysemy.
	Polysemy *lexicon.PolysemyTable
}

// Components holds everything a run needs. All of it is read-only after
// Load and shared by workers.
type Components struct {
	Config       Config
	Ingest       *ingest.Pipeline
	Index        *lexicon.Index
	Polysemy     *lexicon.PolysemyTable
	Matcher      *match.Matcher
	Features     *features.Engine
	Cooccurrence *cooccur.Engine
	Tagger       *tagging.Tagger
	// LexiconFiles maps file name to content hash.
	LexiconFiles map[string]string
	// LexiconIssues are the ERROR records for skipped lexicon entries.
	LexiconIssues internalerr.Issues
}

// Load validates the configuration, reads the lexicon and builds every
// component. Configuration problems come back as FATAL INVALID_CONFIG.
func (l *Loader) Load() (*Components, error) {
	cfg := l.Config
	if err := cfg.Validate(); err != nil {
		return nil, internalerr.NewFatal(schema.PhaseCorpus, "INVALID_CONFIG", "invalid configuration").Wrap(err)
	}
	comp := &Components{Config: cfg, LexiconFiles: map[string]string{}}

	policy := cfg.Corpus.Normalize
	comp.Ingest = ingest.NewPipeline(policy, ingest.NewTokenizer(cfg.Corpus.Markers))
	comp.Ingest.SetMaxTokens(cfg.Corpus.MaxTokens)

	entities := l.Entities
	if entities == nil {
		paths, err := cfg.Lexicon.ExpandPaths()
		if err != nil {
			return nil, internalerr.NewFatal(schema.PhaseLexical, "LEXICON_MISSING", "resolve lexicon paths").Wrap(err)
		}
		loaded, err := lexicon.LoadFiles(paths)
		if err != nil {
			return nil, err
		}
		entities = loaded.Entities
		comp.LexiconFiles = loaded.FileHashes
		comp.LexiconIssues = loaded.Issues
	}

	norm := func(s string) string { return normalize.Normalize(s, policy) }
	idx, err := lexicon.Compile(entities, lexicon.Options{Normalize: norm})
	if err != nil {
		return nil, internalerr.NewFatal(schema.PhaseLexical, "LEXICON_COMPILE", "compile lexicon").Wrap(err)
	}
	comp.Index = idx

	poly := l.Polysemy
	if poly == nil && cfg.Lexicon.Polysemy != "" {
		poly, err = lexicon.LoadPolysemy(cfg.Lexicon.Polysemy)
		if err != nil {
			return nil, err
		}
	}
	comp.Polysemy = poly.Normalized(norm)

	comp.Matcher = match.New(idx, comp.Polysemy)
	comp.Features = features.NewEngine(idx)

	comp.Cooccurrence, err = cooccur.NewEngine(cfg.Cooccurrence)
	if err != nil {
		return nil, fmt.Errorf("cooccurrence: %w", err)
	}
	comp.Tagger, err = tagging.NewTagger(cfg.Tagging, idx)
	if err != nil {
		return nil, fmt.Errorf("tagging: %w", err)
	}
	return comp, nil
}

// LexiconHash identifies the compiled lexicon and polysemy table.
func (c *Components) LexiconHash() string {
	if c.Polysemy.Len() == 0 {
		return c.Index.Hash()
	}
	return c.Index.Hash() + "+" + c.Polysemy.Hash()
}
