// Package ggs runs the annotation pipeline end to end: normalization and
// tokenization, lexical matching, feature densities, co-occurrence
// statistics, tagging and density aggregation.
//
// Every phase is cached by a hash of its inputs. A run whose inputs are
// unchanged reuses the stored artifacts, and a run's output bytes do not
// depend on the number of workers.
package ggs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/cognicore/ggs/internal/logging"
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
	"github.com/cognicore/ggs/pkg/ggs/store"
	"github.com/cognicore/ggs/pkg/ggs/store/memstore"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// Options configures an Engine.
type Options struct {
	// Components are built by config.Loader. Required.
	Components *config.Components
	// Store holds the cache and artifacts. Defaults to an in-memory store
	// owned by the engine.
	Store store.Store
	// Logger defaults to a discarding logger.
	Logger *log.Logger
	// Workers overrides the configured worker count when positive.
	Workers int
	// Force recomputes every phase regardless of the cache.
	Force bool
}

// Engine is the main entry point.
type Engine struct {
	comp      *config.Components
	store     store.Store
	ownsStore bool
	logger    *log.Logger
	workers   int
	force     bool
	now       func() time.Time
}

// New creates an engine from options.
func New(opts Options) (*Engine, error) {
	if opts.Components == nil {
		return nil, fmt.Errorf("%w: components are required", internalerr.ErrInvalidConfig)
	}
	e := &Engine{
		comp:    opts.Components,
		store:   opts.Store,
		logger:  opts.Logger,
		workers: opts.Workers,
		force:   opts.Force,
		now:     time.Now,
	}
	if e.store == nil {
		e.store = memstore.New()
		e.ownsStore = true
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.workers < 1 {
		e.workers = opts.Components.Config.Run.Workers
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e, nil
}

// Close releases the store when the engine created it.
func (e *Engine) Close() error {
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Invalidate drops the cache entry of one phase, or of every phase when
// phase is empty. Artifacts stay in the store.
func (e *Engine) Invalidate(ctx context.Context, phase string) error {
	if phase != "" && !knownPhase(phase) {
		return fmt.Errorf("%w: unknown phase %q", internalerr.ErrInvalidInput, phase)
	}
	if err := e.store.InvalidateCache(ctx, phase); err != nil {
		return fmt.Errorf("invalidate %q: %w", phase, err)
	}
	return nil
}

// Manifest loads the manifest of a previous run.
func (e *Engine) Manifest(ctx context.Context, runID string) (*pipeline.Manifest, bool, error) {
	return pipeline.LoadManifest(ctx, e.store, runID)
}

// Input is the corpus handed to a run.
type Input struct {
	Lines []ingest.RawLine
}

// Result holds every phase output of a successful run.
type Result struct {
	RunID        string
	Lines        []ingest.Line
	Matches      []match.Match
	Features     []features.Vector
	Cooccurrence *cooccur.Result
	Tags         []tagging.Record
	Density      analytics.Report
	// CrossTradition is derived from the cached outputs on every run.
	CrossTradition analytics.CrossTraditionReport
	// Issues are the ERROR and WARNING records of every phase, in phase
	// order.
	Issues   []internalerr.Issue
	Manifest pipeline.Manifest
}

// MatchesByLine indexes matches by line UID.
func (r *Result) MatchesByLine() map[string][]match.Match {
	return groupMatches(r.Matches)
}

// Predictions maps each line UID to its primary tag.
func (r *Result) Predictions() map[string]string {
	out := make(map[string]string, len(r.Tags))
	for _, t := range r.Tags {
		out[t.LineUID] = t.Primary
	}
	return out
}

// Stream is one named JSONL output of a run.
type Stream struct {
	Name   string
	encode func(io.Writer) error
}

// Encode writes the stream.
func (s Stream) Encode(w io.Writer) error { return s.encode(w) }

// Streams lists the JSONL outputs of the run in a fixed order. The
// manifest is not a stream; it varies per run.
func (r *Result) Streams() []Stream {
	out := []Stream{
		{Name: "lines", encode: func(w io.Writer) error { return pipeline.EncodeJSONL(w, r.Lines) }},
		{Name: "matches", encode: func(w io.Writer) error { return pipeline.EncodeJSONL(w, r.Matches) }},
		{Name: "features", encode: func(w io.Writer) error { return pipeline.EncodeJSONL(w, r.Features) }},
	}
	if r.Cooccurrence != nil {
		for _, l := range r.Cooccurrence.Levels {
			recs := r.Cooccurrence.Records[l]
			out = append(out, Stream{
				Name:   "cooccurrence_" + string(l),
				encode: func(w io.Writer) error { return pipeline.EncodeJSONL(w, recs) },
			})
		}
	}
	out = append(out,
		Stream{Name: "tags", encode: func(w io.Writer) error { return pipeline.EncodeJSONL(w, r.Tags) }},
		Stream{Name: "density", encode: func(w io.Writer) error {
			return pipeline.EncodeJSONL(w, []analytics.Report{r.Density})
		}},
		Stream{Name: "cross_tradition", encode: func(w io.Writer) error {
			return pipeline.EncodeJSONL(w, []analytics.CrossTraditionReport{r.CrossTradition})
		}},
		Stream{Name: "issues", encode: func(w io.Writer) error { return pipeline.EncodeJSONL(w, r.Issues) }},
	)
	return out
}

// Run executes every phase over the input. A FATAL condition aborts the
// run: the error is returned, the partial outputs are dropped and a
// failed manifest is stored.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	r := &run{
		e:     e,
		id:    ulid.Make().String(),
		cache: pipeline.NewCache(e.store, e.force, e.logger),
	}
	r.logger = e.logger.With("run", r.id)
	r.manifest = pipeline.Manifest{
		SchemaVersion:      schema.Version,
		RunID:              r.id,
		InputLines:         len(in.Lines),
		LexiconHash:        e.comp.LexiconHash(),
		LexiconFiles:       e.comp.LexiconFiles,
		ConfigHash:         e.comp.Config.Hash(),
		NormalizationSteps: normalize.StepNames(e.comp.Ingest.Policy()),
		Versions:           versions(),
		StartedAt:          e.now().UTC(),
	}

	res, err := r.execute(ctx, in)
	r.manifest.FinishedAt = e.now().UTC()
	if err != nil {
		r.manifest.Status = pipeline.StatusFailed
		if fe, ok := asFatal(err); ok {
			iss := fe.Issue()
			r.manifest.Fatal = &iss
		}
		r.logger.Error("run failed", "err", err)
		if serr := pipeline.SaveManifest(context.WithoutCancel(ctx), e.store, &r.manifest); serr != nil {
			r.logger.Warn("manifest not stored", "err", serr)
		}
		return nil, err
	}

	r.manifest.Status = pipeline.StatusOK
	if err := pipeline.SaveManifest(ctx, e.store, &r.manifest); err != nil {
		return nil, err
	}
	res.RunID = r.id
	res.Issues = r.issues
	res.Manifest = r.manifest
	r.logger.Info("run complete", "lines", len(res.Lines), "matches", len(res.Matches), "tags", len(res.Tags))
	return res, nil
}

func versions() map[string]string {
	return map[string]string{
		"schema":       schema.Version,
		"normalize":    normalize.Version,
		"cooccurrence": cooccur.Version,
		"tagging":      tagging.Version,
	}
}

func knownPhase(name string) bool {
	for _, p := range schema.Phases() {
		if p == name {
			return true
		}
	}
	return false
}
