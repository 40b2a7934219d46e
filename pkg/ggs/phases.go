package ggs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cognicore/ggs/pkg/ggs/analytics"
	"github.com/cognicore/ggs/pkg/ggs/config"
	"github.com/cognicore/ggs/pkg/ggs/cooccur"
	"github.com/cognicore/ggs/pkg/ggs/features"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/match"
	"github.com/cognicore/ggs/pkg/ggs/normalize"
	"github.com/cognicore/ggs/pkg/ggs/pipeline"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// run is the state of one Engine.Run call. It is owned by the calling
// goroutine; workers only see their partition and return fresh values.
type run struct {
	e        *Engine
	id       string
	cache    *pipeline.Cache
	logger   *log.Logger
	manifest pipeline.Manifest
	issues   []internalerr.Issue
}

// phaseOutput is the artifact payload of a phase.
type phaseOutput[T any] struct {
	SchemaVersion string              `json:"schema_version"`
	Records       []T                 `json:"records"`
	Issues        []internalerr.Issue `json:"issues,omitempty"`
}

type phaseSpec[T any] struct {
	name string
	// key lists the upstream hashes and versions the output depends on.
	key     []string
	count   func([]T) int
	compute func(context.Context) ([]T, internalerr.Issues, error)
}

// runPhase reuses the cached output of a phase when its input hash is
// unchanged, and computes and stores it otherwise. Issues pass through
// the phase collector either way, so a cached phase reports the same
// counts as a fresh one. It returns the records and the content hash of
// the encoded output, which keys the phases downstream.
func runPhase[T any](ctx context.Context, r *run, p phaseSpec[T]) ([]T, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	start := time.Now()
	logger := r.logger.With("phase", p.name)
	cfg := r.e.comp.Config

	parts := append([]string{p.name, schema.Version, cfg.SectionHash(p.name)}, p.key...)
	inputHash := pipeline.HashKey(parts...)

	data, status, err := r.cache.Lookup(ctx, p.name, inputHash)
	if err != nil {
		return nil, "", err
	}
	var out phaseOutput[T]
	if status == pipeline.CacheHit {
		if err := json.Unmarshal(data, &out); err != nil {
			logger.Warn("cached artifact unreadable", "err", err)
			status = pipeline.CacheStale
		} else if out.SchemaVersion != schema.Version {
			return nil, "", internalerr.NewFatal(p.name, "SCHEMA_MISMATCH",
				fmt.Sprintf("artifact schema %q, want %q", out.SchemaVersion, schema.Version)).
				Wrap(internalerr.ErrSchemaMismatch)
		}
	}
	fresh := status != pipeline.CacheHit
	if fresh {
		logger.Debug("computing", "cache", status)
		recs, issues, err := p.compute(ctx)
		if err != nil {
			return nil, "", err
		}
		out = phaseOutput[T]{SchemaVersion: schema.Version, Records: recs, Issues: issues}
	}

	col := internalerr.NewCollector(p.name, cfg.Errors)
	if err := col.Add(out.Issues...); err != nil {
		return nil, "", err
	}

	count := len(out.Records)
	if p.count != nil {
		count = p.count(out.Records)
	}
	if fresh {
		data, err = pipeline.Marshal(out)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s artifact: %w", p.name, err)
		}
		if _, err := r.cache.Save(ctx, p.name, inputHash, r.id, count, data); err != nil {
			return nil, "", err
		}
	}

	sum := col.Summary()
	outputHash := pipeline.ContentHash(data)
	r.manifest.Phases = append(r.manifest.Phases, pipeline.PhaseReport{
		Phase:       p.name,
		InputHash:   inputHash,
		OutputHash:  outputHash,
		ArtifactKey: pipeline.ArtifactKey(p.name, data),
		Records:     count,
		Cache:       status,
		Summary:     sum,
	})
	r.issues = append(r.issues, col.Issues()...)

	logger.Info("phase done",
		"cache", status,
		"records", count,
		"errors", sum.Errors,
		"warnings", sum.Warnings,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out.Records, outputHash, nil
}

// levelOutput is the co-occurrence artifact record for one window level.
type levelOutput struct {
	Level   cooccur.Level    `json:"level"`
	Stats   cooccur.Stats    `json:"stats"`
	Records []cooccur.Record `json:"records"`
}

func (r *run) execute(ctx context.Context, in Input) (*Result, error) {
	comp := r.e.comp

	inputHash, err := hashInput(in.Lines)
	if err != nil {
		return nil, err
	}
	r.manifest.InputHash = inputHash
	lexKey := lexiconKey(comp)

	lines, corpusHash, err := runPhase(ctx, r, phaseSpec[ingest.Line]{
		name: schema.PhaseCorpus,
		key:  []string{inputHash, normalize.Version},
		compute: func(ctx context.Context) ([]ingest.Line, internalerr.Issues, error) {
			return r.prepare(ctx, in.Lines)
		},
	})
	if err != nil {
		return nil, err
	}

	matches, lexHash, err := runPhase(ctx, r, phaseSpec[match.Match]{
		name: schema.PhaseLexical,
		key:  []string{corpusHash, lexKey},
		compute: func(ctx context.Context) ([]match.Match, internalerr.Issues, error) {
			return r.match(ctx, lines)
		},
	})
	if err != nil {
		return nil, err
	}
	byLine := groupMatches(matches)

	vectors, featHash, err := runPhase(ctx, r, phaseSpec[features.Vector]{
		name: schema.PhaseFeatures,
		key:  []string{corpusHash, lexHash, lexKey},
		compute: func(ctx context.Context) ([]features.Vector, internalerr.Issues, error) {
			return r.features(ctx, lines, byLine)
		},
	})
	if err != nil {
		return nil, err
	}

	levels, _, err := runPhase(ctx, r, phaseSpec[levelOutput]{
		name:  schema.PhaseCooccurrence,
		key:   []string{corpusHash, lexHash, cooccur.Version},
		count: countLevelRecords,
		compute: func(context.Context) ([]levelOutput, internalerr.Issues, error) {
			res, issues := comp.Cooccurrence.Compute(lines, byLine)
			out := make([]levelOutput, len(res.Levels))
			for i, l := range res.Levels {
				out[i] = levelOutput{Level: l, Stats: res.Stats[l], Records: res.Records[l]}
			}
			return out, issues, nil
		},
	})
	if err != nil {
		return nil, err
	}

	tags, tagHash, err := runPhase(ctx, r, phaseSpec[tagging.Record]{
		name: schema.PhaseTagging,
		key:  []string{corpusHash, lexHash, featHash, lexKey, tagging.Version},
		compute: func(ctx context.Context) ([]tagging.Record, internalerr.Issues, error) {
			return r.tag(ctx, lines, byLine, vectors)
		},
	})
	if err != nil {
		return nil, err
	}

	reports, _, err := runPhase(ctx, r, phaseSpec[analytics.Report]{
		name: schema.PhaseDensity,
		key:  []string{corpusHash, featHash, tagHash},
		compute: func(context.Context) ([]analytics.Report, internalerr.Issues, error) {
			a := analytics.NewAnalyzerWithWindow(comp.Features.Dimensions(), comp.Config.Density.WindowSize).
				WithGuardrails(comp.Config.Density.Guardrails)
			for i := range lines {
				a.Process(&lines[i], vectors[i])
			}
			for _, t := range tags {
				a.ProcessTag(t)
			}
			return []analytics.Report{a.Snapshot()}, nil, nil
		},
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Lines:        lines,
		Matches:      matches,
		Features:     vectors,
		Cooccurrence: cooccurResult(levels),
		Tags:         tags,
	}
	if len(reports) > 0 {
		res.Density = reports[0]
	}
	res.CrossTradition = analytics.CrossTradition(res.Cooccurrence, lines, matches, comp.Index, comp.Config.RitualNegation)
	return res, nil
}

type prepared struct {
	lines  []ingest.Line
	issues internalerr.Issues
}

// prepare normalizes and tokenizes the raw lines in parallel, then checks
// the corpus-wide invariants on the sorted result.
func (r *run) prepare(ctx context.Context, raw []ingest.RawLine) ([]ingest.Line, internalerr.Issues, error) {
	pipe := r.e.comp.Ingest
	parts := pipeline.PartitionRaw(raw)
	results, err := pipeline.Map(ctx, r.e.workers, parts,
		func(_ context.Context, p pipeline.Partition[ingest.RawLine]) (prepared, error) {
			var out prepared
			for _, rl := range p.Items {
				if rl.Seq < 0 {
					out.issues.Error(schema.PhaseCorpus, "INVALID_LINE", "", "seq %d is negative", rl.Seq)
					continue
				}
				line, issues, ok := pipe.Prepare(rl)
				out.issues.Add(issues...)
				if ok {
					out.lines = append(out.lines, line)
				}
			}
			return out, nil
		})
	if err != nil {
		return nil, nil, err
	}

	var lines []ingest.Line
	var issues internalerr.Issues
	for _, p := range results {
		lines = append(lines, p.lines...)
		issues.Add(p.issues...)
	}
	ingest.SortLines(lines)
	if err := ingest.ValidateCorpus(lines); err != nil {
		return nil, nil, err
	}
	return lines, issues, nil
}

type lineMatches struct {
	uid     string
	matches []match.Match
}

type matched struct {
	lines  []lineMatches
	issues internalerr.Issues
}

func (r *run) match(ctx context.Context, lines []ingest.Line) ([]match.Match, internalerr.Issues, error) {
	m := r.e.comp.Matcher
	results, err := pipeline.Map(ctx, r.e.workers, pipeline.PartitionLines(lines),
		func(ctx context.Context, p pipeline.Partition[ingest.Line]) (matched, error) {
			var out matched
			for i := range p.Items {
				if err := ctx.Err(); err != nil {
					return matched{}, err
				}
				line := &p.Items[i]
				ms, issues, err := m.Match(line)
				out.issues.Add(issues...)
				if err != nil {
					return matched{}, err
				}
				out.lines = append(out.lines, lineMatches{uid: line.UID, matches: ms})
			}
			return out, nil
		})
	if err != nil {
		return nil, nil, err
	}

	var issues internalerr.Issues
	issues.Add(r.e.comp.LexiconIssues...)
	byUID := make(map[string][]match.Match, len(lines))
	for _, p := range results {
		for _, lm := range p.lines {
			byUID[lm.uid] = lm.matches
		}
		issues.Add(p.issues...)
	}
	// Concatenate in line order so the stream does not depend on how
	// partitions interleave.
	var out []match.Match
	for i := range lines {
		out = append(out, byUID[lines[i].UID]...)
	}
	return out, issues, nil
}

type featured struct {
	vectors map[string]features.Vector
	issues  internalerr.Issues
}

func (r *run) features(ctx context.Context, lines []ingest.Line, byLine map[string][]match.Match) ([]features.Vector, internalerr.Issues, error) {
	fe := r.e.comp.Features
	results, err := pipeline.Map(ctx, r.e.workers, pipeline.PartitionLines(lines),
		func(_ context.Context, p pipeline.Partition[ingest.Line]) (featured, error) {
			out := featured{vectors: make(map[string]features.Vector, len(p.Items))}
			for i := range p.Items {
				line := &p.Items[i]
				v, issues := fe.Compute(line, byLine[line.UID])
				out.vectors[line.UID] = v
				out.issues.Add(issues...)
			}
			return out, nil
		})
	if err != nil {
		return nil, nil, err
	}

	var issues internalerr.Issues
	all := make(map[string]features.Vector, len(lines))
	for _, p := range results {
		for uid, v := range p.vectors {
			all[uid] = v
		}
		issues.Add(p.issues...)
	}
	out := make([]features.Vector, len(lines))
	for i := range lines {
		out[i] = all[lines[i].UID]
	}
	return out, issues, nil
}

// tag scores each partition as one neighborhood set; partitions never
// split a composition or page, so every line sees its whole group.
func (r *run) tag(ctx context.Context, lines []ingest.Line, byLine map[string][]match.Match, vectors []features.Vector) ([]tagging.Record, internalerr.Issues, error) {
	tagger := r.e.comp.Tagger
	vecByUID := make(map[string]features.Vector, len(vectors))
	for _, v := range vectors {
		vecByUID[v.LineUID] = v
	}

	results, err := pipeline.Map(ctx, r.e.workers, pipeline.PartitionLines(lines),
		func(_ context.Context, p pipeline.Partition[ingest.Line]) ([]tagging.Record, error) {
			inputs := make([]tagging.Input, len(p.Items))
			for i := range p.Items {
				line := &p.Items[i]
				inputs[i] = tagging.Input{Line: line, Matches: byLine[line.UID], Features: vecByUID[line.UID]}
			}
			return tagger.TagGroup(inputs), nil
		})
	if err != nil {
		return nil, nil, err
	}

	byUID := make(map[string]tagging.Record, len(lines))
	for _, recs := range results {
		for _, rec := range recs {
			byUID[rec.LineUID] = rec
		}
	}
	out := make([]tagging.Record, len(lines))
	for i := range lines {
		out[i] = byUID[lines[i].UID]
	}
	return out, nil, nil
}

func groupMatches(ms []match.Match) map[string][]match.Match {
	out := make(map[string][]match.Match)
	for _, m := range ms {
		out[m.LineUID] = append(out[m.LineUID], m)
	}
	return out
}

func countLevelRecords(levels []levelOutput) int {
	n := 0
	for _, l := range levels {
		n += len(l.Records)
	}
	return n
}

func cooccurResult(levels []levelOutput) *cooccur.Result {
	res := &cooccur.Result{
		Records: make(map[cooccur.Level][]cooccur.Record, len(levels)),
		Stats:   make(map[cooccur.Level]cooccur.Stats, len(levels)),
	}
	for _, l := range levels {
		res.Levels = append(res.Levels, l.Level)
		res.Records[l.Level] = l.Records
		res.Stats[l.Level] = l.Stats
	}
	return res
}

func hashInput(lines []ingest.RawLine) (string, error) {
	data, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode input: %w", err)
	}
	return pipeline.ContentHash(data), nil
}

// lexiconKey covers the compiled lexicon and the source files, whose
// skipped entries surface as lexical issues.
func lexiconKey(comp *config.Components) string {
	names := make([]string, 0, len(comp.LexiconFiles))
	for name := range comp.LexiconFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := []string{comp.LexiconHash()}
	for _, name := range names {
		parts = append(parts, name, comp.LexiconFiles[name])
	}
	return pipeline.HashKey(parts...)
}

func asFatal(err error) (*internalerr.FatalError, bool) {
	var fe *internalerr.FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
