// Package analytics aggregates per-line densities and tags into
// per-page and per-composition views.
package analytics

import (
	"math"
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/features"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// Sliding window configuration constants
const (
	// DefaultWindowSize is the number of consecutive pages per window.
	DefaultWindowSize = 20

	// MinWindowSize is the smallest valid window; smaller values are clamped.
	MinWindowSize = 1
)

// Analyzer accumulates densities and tags. Results do not depend on the
// order lines are processed in.
type Analyzer struct {
	dims         []schema.Dimension
	windowSize   int
	pages        map[string]*bucket
	compositions map[string]*bucket
	primary      map[string]int64
	secondary    map[string]int64
	tagged       int64
	guard        *GuardrailConfig
}

type bucket struct {
	firstSeq int
	values   map[schema.Dimension][]float64
	counts   map[schema.Dimension]int64
	tokens   int64
	lines    int
}

// NewAnalyzer creates an empty analyzer over dims with the default window.
func NewAnalyzer(dims []schema.Dimension) *Analyzer {
	return &Analyzer{
		dims:         append([]schema.Dimension(nil), dims...),
		windowSize:   DefaultWindowSize,
		pages:        make(map[string]*bucket),
		compositions: make(map[string]*bucket),
		primary:      make(map[string]int64),
		secondary:    make(map[string]int64),
	}
}

// NewAnalyzerWithWindow creates an analyzer with a custom window size.
// Values below MinWindowSize are clamped.
func NewAnalyzerWithWindow(dims []schema.Dimension, windowSize int) *Analyzer {
	a := NewAnalyzer(dims)
	if windowSize < MinWindowSize {
		windowSize = MinWindowSize
	}
	a.windowSize = windowSize
	return a
}

// WithGuardrails attaches support flags, bootstrap intervals, effect
// sizes and log-odds to the report when cfg is enabled.
func (a *Analyzer) WithGuardrails(cfg GuardrailConfig) *Analyzer {
	if cfg.Enabled {
		a.guard = &cfg
	}
	return a
}

// Process consumes one line's feature vector.
func (a *Analyzer) Process(line *ingest.Line, v features.Vector) {
	if line.Page != "" {
		a.add(a.pages, line.Page, line.Seq, v)
	}
	if line.Composition != "" {
		a.add(a.compositions, line.Composition, line.Seq, v)
	}
}

// ProcessTag consumes one line's tag record.
func (a *Analyzer) ProcessTag(rec tagging.Record) {
	a.tagged++
	a.primary[rec.Primary]++
	for _, tag := range rec.Secondary {
		a.secondary[tag]++
	}
}

func (a *Analyzer) add(m map[string]*bucket, key string, seq int, v features.Vector) {
	b := m[key]
	if b == nil {
		b = &bucket{
			firstSeq: seq,
			values:   make(map[schema.Dimension][]float64, len(a.dims)),
			counts:   make(map[schema.Dimension]int64, len(a.dims)),
		}
		m[key] = b
	}
	if seq < b.firstSeq {
		b.firstSeq = seq
	}
	b.lines++
	b.tokens += int64(v.TokenCount)
	for _, d := range a.dims {
		x, _ := v.Get(d)
		b.values[d] = append(b.values[d], x.Density)
		b.counts[d] += int64(x.Count)
	}
}

// Summary is the distribution of one dimension's density over a group.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Stdev  float64 `json:"stdev"`
}

// GroupDensity summarizes the lines of one page or composition.
type GroupDensity struct {
	Key   string                       `json:"key"`
	Lines int                          `json:"line_count"`
	Stats map[schema.Dimension]Summary `json:"stats"`
}

// WindowDensity is the mean of page means over consecutive pages.
type WindowDensity struct {
	Start     string                       `json:"window_start"`
	End       string                       `json:"window_end"`
	Pages     int                          `json:"pages"`
	Densities map[schema.Dimension]float64 `json:"densities"`
}

// TagCount is how often a tag was assigned.
type TagCount struct {
	Tag     string  `json:"tag"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// Report is the aggregated view.
type Report struct {
	SchemaVersion string          `json:"schema_version"`
	Pages         []GroupDensity  `json:"by_page"`
	Compositions  []GroupDensity  `json:"by_composition"`
	Windows       []WindowDensity `json:"sliding_window"`
	WindowSize    int             `json:"window_size"`
	Primary       []TagCount      `json:"primary_tags"`
	Secondary     []TagCount      `json:"secondary_tags"`
	TaggedLines   int64           `json:"tagged_lines"`
	// Guardrails lists compositions, then pages, when enabled.
	Guardrails []GroupGuardrail `json:"guardrails,omitempty"`
}

// Snapshot computes the report from everything processed so far. Groups
// are ordered by their first line.
func (a *Analyzer) Snapshot() Report {
	pages := a.groups(a.pages)
	rep := Report{
		SchemaVersion: schema.Version,
		Pages:         pages,
		Compositions:  a.groups(a.compositions),
		Windows:       a.windows(pages),
		WindowSize:    a.windowSize,
		Primary:       tagCounts(a.primary, a.tagged),
		Secondary:     tagCounts(a.secondary, a.tagged),
		TaggedLines:   a.tagged,
	}
	if a.guard != nil {
		rep.Guardrails = append(a.guardrails(GroupComposition, a.compositions), a.guardrails(GroupPage, a.pages)...)
	}
	return rep
}

// orderedKeys orders groups by their first line.
func orderedKeys(m map[string]*bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		bi, bj := m[keys[i]], m[keys[j]]
		if bi.firstSeq != bj.firstSeq {
			return bi.firstSeq < bj.firstSeq
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (a *Analyzer) groups(m map[string]*bucket) []GroupDensity {
	keys := orderedKeys(m)
	out := make([]GroupDensity, 0, len(keys))
	for _, k := range keys {
		b := m[k]
		g := GroupDensity{Key: k, Lines: b.lines, Stats: make(map[schema.Dimension]Summary, len(a.dims))}
		for _, d := range a.dims {
			g.Stats[d] = summarize(b.values[d])
		}
		out = append(out, g)
	}
	return out
}

// windows slides over consecutive pages in corpus order. Fewer pages than
// the window size yields no windows.
func (a *Analyzer) windows(pages []GroupDensity) []WindowDensity {
	w := a.windowSize
	if len(pages) < w {
		return []WindowDensity{}
	}
	out := make([]WindowDensity, 0, len(pages)-w+1)
	for start := 0; start+w <= len(pages); start++ {
		span := pages[start : start+w]
		wd := WindowDensity{
			Start:     span[0].Key,
			End:       span[w-1].Key,
			Pages:     w,
			Densities: make(map[schema.Dimension]float64, len(a.dims)),
		}
		for _, d := range a.dims {
			means := make([]float64, w)
			for i, p := range span {
				means[i] = p.Stats[d].Mean
			}
			wd.Densities[d] = mean(sortedCopy(means))
		}
		out = append(out, wd)
	}
	return out
}

func tagCounts(m map[string]int64, total int64) []TagCount {
	out := make([]TagCount, 0, len(m))
	for tag, c := range m {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(c) / float64(total)
		}
		out = append(out, TagCount{Tag: tag, Count: c, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// summarize sorts first so the float sums do not depend on input order.
func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := sortedCopy(values)
	return Summary{Mean: mean(s), Median: median(s), Stdev: stdev(s)}
}

func sortedCopy(values []float64) []float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	return s
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func median(s []float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// stdev is the sample standard deviation; 0 for fewer than two values.
func stdev(s []float64) float64 {
	if len(s) < 2 {
		return 0
	}
	m := mean(s)
	var ss float64
	for _, v := range s {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(s)-1))
}
