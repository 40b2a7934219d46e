// Package features computes per-line register densities from matches.
package features

import (
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Dimension holds one dimension's figures for a line.
type Dimension struct {
	Dimension     schema.Dimension `json:"dimension"`
	Count         int              `json:"count"`
	Density       float64          `json:"density"`
	MatchedTokens []string         `json:"matched_tokens"`
}

// Vector is the feature vector of one line. Dims follow the engine's
// dimension order.
type Vector struct {
	LineUID    string      `json:"line_uid"`
	Seq        int         `json:"seq"`
	TokenCount int         `json:"token_count"`
	Dims       []Dimension `json:"dimensions"`
}

// Get returns the figures for d.
func (v *Vector) Get(d schema.Dimension) (Dimension, bool) {
	for _, x := range v.Dims {
		if x.Dimension == d {
			return x, true
		}
	}
	return Dimension{}, false
}

// Density returns the density for d, or 0.
func (v *Vector) Density(d schema.Dimension) float64 {
	x, _ := v.Get(d)
	return x.Density
}

// Engine computes feature vectors.
type Engine struct {
	index *lexicon.Index
	dims  []schema.Dimension
}

// NewEngine creates an engine over the feature dimensions.
func NewEngine(index *lexicon.Index) *Engine {
	return &Engine{index: index, dims: schema.FeatureDimensions()}
}

// Dimensions returns the dimensions the engine reports.
func (e *Engine) Dimensions() []schema.Dimension {
	return append([]schema.Dimension(nil), e.dims...)
}

// Compute counts the top-level matches whose entity carries each
// dimension. Nested matches are skipped so a phrase and a word inside it
// are not counted twice. A line without tokens gets zero densities and a
// ZERO_TOKENS warning.
func (e *Engine) Compute(line *ingest.Line, matches []match.Match) (Vector, internalerr.Issues) {
	var issues internalerr.Issues
	n := line.TokenCount()
	if n == 0 {
		issues.Warn(schema.PhaseFeatures, "ZERO_TOKENS", line.UID, "line %d has no tokens; densities reported as 0", line.Seq)
	}

	counts := make(map[schema.Dimension]int, len(e.dims))
	forms := make(map[schema.Dimension]map[string]struct{}, len(e.dims))
	for i := range matches {
		m := &matches[i]
		if m.Nested() {
			continue
		}
		ent, ok := e.index.Entity(m.EntityID)
		if !ok {
			continue
		}
		for _, d := range ent.Dimensions {
			counts[d]++
			if forms[d] == nil {
				forms[d] = make(map[string]struct{})
			}
			forms[d][m.Form] = struct{}{}
		}
	}

	v := Vector{LineUID: line.UID, Seq: line.Seq, TokenCount: n, Dims: make([]Dimension, len(e.dims))}
	for i, d := range e.dims {
		c := counts[d]
		density := 0.0
		if n > 0 {
			// Top-level matches start on distinct tokens, so c <= n.
			density = float64(c) / float64(n)
		}
		v.Dims[i] = Dimension{Dimension: d, Count: c, Density: density, MatchedTokens: sortedKeys(forms[d])}
	}
	return v, issues
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
