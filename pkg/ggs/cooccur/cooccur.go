// Package cooccur aggregates entity presence over windows and scores
// every entity pair with smoothed PMI, NPMI and Jaccard.
package cooccur

import (
	"fmt"
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/pmi"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Version identifies the co-occurrence rules for provenance.
const Version = "1.0.0"

// Level is a window granularity.
type Level string

const (
	LevelLine        Level = "line"
	LevelComposition Level = "composition"
	LevelPage        Level = "page"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelLine, LevelComposition, LevelPage:
		return true
	}
	return false
}

// Config controls filtering and reporting.
type Config struct {
	Levels        []Level `json:"levels" yaml:"levels" toml:"levels"`
	MinCount      int     `json:"min_count" yaml:"min_count" toml:"min_count"`
	MinEntityFreq int     `json:"min_entity_freq" yaml:"min_entity_freq" toml:"min_entity_freq"`
	SmoothingK    float64 `json:"smoothing_k" yaml:"smoothing_k" toml:"smoothing_k"`
	MinPMISupport int     `json:"min_pmi_support" yaml:"min_pmi_support" toml:"min_pmi_support"`
}

// DefaultConfig returns the reporting floors used for the canonical corpus.
func DefaultConfig() Config {
	return Config{
		Levels:        []Level{LevelLine, LevelComposition, LevelPage},
		MinCount:      2,
		MinEntityFreq: 1,
		SmoothingK:    1.0,
		MinPMISupport: 3,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if len(c.Levels) == 0 {
		return fmt.Errorf("%w: cooccurrence needs at least one level", internalerr.ErrInvalidConfig)
	}
	seen := make(map[Level]bool, len(c.Levels))
	for _, l := range c.Levels {
		if !l.Valid() {
			return fmt.Errorf("%w: unknown cooccurrence level %q", internalerr.ErrInvalidConfig, l)
		}
		if seen[l] {
			return fmt.Errorf("%w: duplicate cooccurrence level %q", internalerr.ErrInvalidConfig, l)
		}
		seen[l] = true
	}
	if c.MinCount < 1 {
		return fmt.Errorf("%w: min_count must be >= 1, got %d", internalerr.ErrInvalidConfig, c.MinCount)
	}
	if c.MinEntityFreq < 1 {
		return fmt.Errorf("%w: min_entity_freq must be >= 1, got %d", internalerr.ErrInvalidConfig, c.MinEntityFreq)
	}
	if c.SmoothingK < 0 {
		return fmt.Errorf("%w: smoothing_k must be >= 0, got %g", internalerr.ErrInvalidConfig, c.SmoothingK)
	}
	if c.MinPMISupport < c.MinCount {
		return fmt.Errorf("%w: min_pmi_support (%d) below min_count (%d)", internalerr.ErrInvalidConfig, c.MinPMISupport, c.MinCount)
	}
	return nil
}

// Record is the score of one entity pair at one level. EntityA < EntityB.
// PMI and NPMI are nil below the support floor.
type Record struct {
	SchemaVersion string   `json:"schema_version"`
	EntityA       string   `json:"entity_a"`
	EntityB       string   `json:"entity_b"`
	Level         Level    `json:"window_level"`
	RawCount      int64    `json:"raw_count"`
	CountA        int64    `json:"count_a"`
	CountB        int64    `json:"count_b"`
	PMI           *float64 `json:"pmi"`
	NPMI          *float64 `json:"npmi"`
	Jaccard       float64  `json:"jaccard"`
}

// Stats describes the windows behind one level.
type Stats struct {
	Level    Level `json:"level"`
	Windows  int64 `json:"windows"`
	Entities int   `json:"entities"`
	Pairs    int   `json:"pairs"`
	Reported int   `json:"reported"`
}

// Result holds the records per level, in the configured level order.
type Result struct {
	Levels  []Level
	Records map[Level][]Record
	Stats   map[Level]Stats
}

// All returns every record, levels in configured order.
func (r *Result) All() []Record {
	var out []Record
	for _, l := range r.Levels {
		out = append(out, r.Records[l]...)
	}
	return out
}

// Engine computes co-occurrence statistics.
type Engine struct {
	cfg  Config
	calc *pmi.Calculator
}

// NewEngine creates an engine. The config must be valid.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, calc: pmi.NewCalculator(cfg.SmoothingK)}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute builds every configured level in one pass over the matches.
// matches is keyed by line UID. Every retained match counts as presence,
// nested ones included.
func (e *Engine) Compute(lines []ingest.Line, matches map[string][]match.Match) (*Result, internalerr.Issues) {
	var issues internalerr.Issues

	windows := make(map[Level]map[string]map[string]struct{}, len(e.cfg.Levels))
	for _, l := range e.cfg.Levels {
		windows[l] = make(map[string]map[string]struct{})
	}

	for i := range lines {
		line := &lines[i]
		ids := entityIDs(matches[line.UID])
		if len(ids) == 0 {
			continue
		}
		for _, l := range e.cfg.Levels {
			key, ok := windowKey(line, l)
			if !ok {
				issues.Warn(schema.PhaseCooccurrence, "UNGROUPED_LINE", line.UID,
					"line %d has no %s or page key; skipped at %s level", line.Seq, l, l)
				continue
			}
			w := windows[l][key]
			if w == nil {
				w = make(map[string]struct{})
				windows[l][key] = w
			}
			for _, id := range ids {
				w[id] = struct{}{}
			}
		}
	}

	res := &Result{
		Levels:  append([]Level(nil), e.cfg.Levels...),
		Records: make(map[Level][]Record, len(e.cfg.Levels)),
		Stats:   make(map[Level]Stats, len(e.cfg.Levels)),
	}
	for _, l := range e.cfg.Levels {
		recs, st := e.score(l, windows[l])
		res.Records[l] = recs
		res.Stats[l] = st
	}
	return res, issues
}

func (e *Engine) score(level Level, windows map[string]map[string]struct{}) ([]Record, Stats) {
	keep := e.frequentEntities(windows)

	counter := pmi.NewCounter()
	for _, key := range sortedKeys(windows) {
		ids := make([]string, 0, len(windows[key]))
		for id := range windows[key] {
			if keep == nil || keep[id] {
				ids = append(ids, id)
			}
		}
		counter.AddWindow(ids)
	}

	n := counter.TotalWindows()
	v := counter.Vocabulary()
	st := Stats{Level: level, Windows: n, Entities: v, Pairs: len(counter.Nxy)}

	var out []Record
	for _, p := range counter.Pairs() {
		joint := counter.Nxy[p]
		if joint < int64(e.cfg.MinCount) {
			continue
		}
		ca, cb := counter.Count(p.A), counter.Count(p.B)
		rec := Record{
			SchemaVersion: schema.Version,
			EntityA:       p.A,
			EntityB:       p.B,
			Level:         level,
			RawCount:      joint,
			CountA:        ca,
			CountB:        cb,
			Jaccard:       pmi.Jaccard(joint, ca, cb),
		}
		if joint >= int64(e.cfg.MinPMISupport) {
			if score, ok := e.calc.PMI(joint, ca, cb, n, v); ok {
				npmi := pmi.NPMI(score, joint, n)
				rec.PMI = &score
				rec.NPMI = &npmi
			}
		}
		out = append(out, rec)
	}
	SortRecords(out)
	st.Reported = len(out)
	return out, st
}

// frequentEntities returns the entities present in at least
// MinEntityFreq windows, or nil when no filtering applies.
func (e *Engine) frequentEntities(windows map[string]map[string]struct{}) map[string]bool {
	if e.cfg.MinEntityFreq <= 1 {
		return nil
	}
	freq := make(map[string]int)
	for _, w := range windows {
		for id := range w {
			freq[id]++
		}
	}
	keep := make(map[string]bool, len(freq))
	for id, c := range freq {
		if c >= e.cfg.MinEntityFreq {
			keep[id] = true
		}
	}
	return keep
}

// SortRecords orders by raw count descending, then entity ids.
func SortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.RawCount != b.RawCount {
			return a.RawCount > b.RawCount
		}
		if a.EntityA != b.EntityA {
			return a.EntityA < b.EntityA
		}
		return a.EntityB < b.EntityB
	})
}

func windowKey(line *ingest.Line, l Level) (string, bool) {
	switch l {
	case LevelLine:
		return line.UID, true
	case LevelComposition:
		key := line.GroupKey()
		return key, key != ""
	case LevelPage:
		if line.Page == "" {
			return "", false
		}
		return line.Page, true
	}
	return "", false
}

func entityIDs(ms []match.Match) []string {
	var ids []string
	for i := range ms {
		ids = append(ids, ms[i].EntityID)
	}
	return ids
}

func sortedKeys(m map[string]map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
