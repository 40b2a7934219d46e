// Package config reads the run configuration from YAML or TOML and
// builds the runtime components from it.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/ggs/pkg/ggs/analytics"
	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/normalize"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// Config is the full run configuration.
type Config struct {
	Corpus       Corpus             `json:"corpus" yaml:"corpus" toml:"corpus"`
	Lexicon      Lexicon            `json:"lexicon" yaml:"lexicon" toml:"lexicon"`
	Cooccurrence cooccur.Config     `json:"cooccurrence" yaml:"cooccurrence" toml:"cooccurrence"`
	Tagging      tagging.Config     `json:"tagging" yaml:"tagging" toml:"tagging"`
	Density      Density            `json:"density" yaml:"density" toml:"density"`
	Errors       internalerr.Config `json:"errors" yaml:"errors" toml:"errors"`
	Run          Run                `json:"run" yaml:"run" toml:"run"`

	// RitualNegation drives the cross-tradition report, which is derived
	// after the cached phases.
	RitualNegation analytics.RitualNegation `json:"ritual_negation" yaml:"ritual_negation" toml:"ritual_negation"`
}

// Corpus configures normalization and tokenization.
type Corpus struct {
	Normalize normalize.Policy   `json:"normalize" yaml:"normalize" toml:"normalize"`
	Markers   []ingest.MarkerDef `json:"markers" yaml:"markers" toml:"markers"`
	MaxTokens int                `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
}

// Lexicon locates the entity and polysemy files. Paths may be doublestar
// globs and are relative to the config file.
type Lexicon struct {
	Paths    []string `json:"paths" yaml:"paths" toml:"paths"`
	Polysemy string   `json:"polysemy,omitempty" yaml:"polysemy,omitempty" toml:"polysemy,omitempty"`
}

// Density configures the aggregation phase.
type Density struct {
	WindowSize int                       `json:"window_size" yaml:"window_size" toml:"window_size"`
	Guardrails analytics.GuardrailConfig `json:"guardrails" yaml:"guardrails" toml:"guardrails"`
}

// Run holds execution settings that do not affect results.
type Run struct {
	Workers   int    `json:"workers" yaml:"workers" toml:"workers"`
	CachePath string `json:"cache_path,omitempty" yaml:"cache_path,omitempty" toml:"cache_path,omitempty"`
}

// Default returns the configuration used for the canonical corpus.
func Default() Config {
	return Config{
		Corpus: Corpus{
			Normalize: normalize.DefaultPolicy(),
			Markers:   ingest.DefaultMarkers(),
			MaxTokens: ingest.DefaultMaxTokens,
		},
		Cooccurrence: cooccur.DefaultConfig(),
		Tagging:      tagging.DefaultConfig(),
		Density:      Density{WindowSize: 20, Guardrails: analytics.DefaultGuardrailConfig()},
		Errors:       internalerr.DefaultConfig(),
		Run:          Run{Workers: 4},

		RitualNegation: analytics.DefaultRitualNegation(),
	}
}

// Validate checks every section. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Corpus.Normalize.Validate(); err != nil {
		return fmt.Errorf("%w: normalize: %v", internalerr.ErrInvalidConfig, err)
	}
	for _, m := range c.Corpus.Markers {
		if strings.TrimSpace(m.Form) == "" {
			return fmt.Errorf("%w: marker with empty form", internalerr.ErrInvalidConfig)
		}
		if m.Role == "" {
			return fmt.Errorf("%w: marker %q has no role", internalerr.ErrInvalidConfig, m.Form)
		}
	}
	if c.Corpus.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be >= 0", internalerr.ErrInvalidConfig)
	}
	if err := c.Cooccurrence.Validate(); err != nil {
		return err
	}
	if err := c.Tagging.Validate(); err != nil {
		return err
	}
	if c.Density.WindowSize < 1 {
		return fmt.Errorf("%w: density.window_size must be >= 1", internalerr.ErrInvalidConfig)
	}
	if err := c.Density.Guardrails.Validate(); err != nil {
		return err
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("%w: run.workers must be >= 0", internalerr.ErrInvalidConfig)
	}
	return nil
}

// Load reads a config file, choosing the decoder by extension (.yaml,
// .yml or .toml). Keys absent from the file keep their defaults. Relative
// lexicon and cache paths are resolved against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	cfg.Lexicon = cfg.Lexicon.resolve(dir)
	if p := cfg.Run.CachePath; p != "" && !filepath.IsAbs(p) {
		cfg.Run.CachePath = filepath.Join(dir, p)
	}
	return cfg, nil
}

// Parse decodes config bytes. ext is ".yaml", ".yml" or ".toml".
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	// Maps merge: tagging dimensions the document omits keep defaults.
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unsupported config format %q", internalerr.ErrInvalidConfig, ext)
	}
	return cfg, nil
}

func (l Lexicon) resolve(dir string) Lexicon {
	out := Lexicon{Polysemy: l.Polysemy}
	for _, p := range l.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		out.Paths = append(out.Paths, p)
	}
	if out.Polysemy != "" && !filepath.IsAbs(out.Polysemy) {
		out.Polysemy = filepath.Join(dir, out.Polysemy)
	}
	return out
}

// ExpandPaths resolves the lexicon globs to a sorted, de-duplicated file
// list. A pattern that matches nothing is an error.
func (l Lexicon) ExpandPaths() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range l.Paths {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: lexicon pattern %q: %v", internalerr.ErrInvalidConfig, pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: lexicon pattern %q matched no files", internalerr.ErrNotFound, pattern)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SectionHash returns a SHA-256 over the canonical JSON encoding of the
// settings that affect phase's output. Run settings never contribute.
func (c Config) SectionHash(phase string) string {
	var section any
	switch phase {
	case schema.PhaseCorpus:
		section = c.Corpus
	case schema.PhaseLexical:
		section = c.Corpus.Normalize
	case schema.PhaseFeatures:
		section = schema.FeatureDimensions()
	case schema.PhaseCooccurrence:
		section = c.Cooccurrence
	case schema.PhaseTagging:
		section = c.Tagging
	case schema.PhaseDensity:
		section = c.Density
	}
	data, _ := json.Marshal(struct {
		Phase   string `json:"phase"`
		Section any    `json:"section"`
		Errors  any    `json:"errors"`
	}{phase, section, c.Errors})
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Hash covers every result-affecting section.
func (c Config) Hash() string {
	copyCfg := c
	copyCfg.Run = Run{}
	copyCfg.Lexicon = Lexicon{}
	data, _ := json.Marshal(copyCfg)
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
