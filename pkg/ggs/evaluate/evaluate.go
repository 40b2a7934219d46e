// Package evaluate scores tagger output against a hand-annotated gold
// set: per-tag precision, recall and F1, an error list, a confusion
// matrix and a sweep over alternative threshold tables.
package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/pipeline"
	"github.com/cognicore/ggs/pkg/ggs/schema"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// Confusion matrix labels for lines without a usable prediction.
const (
	LabelMissing      = "MISSING"
	LabelUnclassified = "unclassified"
)

// GoldLabel is one annotated line.
type GoldLabel struct {
	LineUID   string   `json:"line_uid"`
	Category  string   `json:"category"`
	Secondary []string `json:"secondary_categories,omitempty"`
	// Confidence is the annotator's certainty: certain, probable or
	// uncertain.
	Confidence string `json:"confidence,omitempty"`
	Annotator  string `json:"annotator,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// LoadGold reads gold labels as JSONL. Every label needs a line UID and a
// category, and a line may be labelled once.
func LoadGold(r io.Reader) ([]GoldLabel, error) {
	labels, err := pipeline.DecodeJSONL[GoldLabel](bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("%w: gold labels: %v", internalerr.ErrInvalidInput, err)
	}
	seen := make(map[string]struct{}, len(labels))
	for i := range labels {
		g := &labels[i]
		if g.LineUID == "" || g.Category == "" {
			return nil, fmt.Errorf("%w: gold label %d needs line_uid and category", internalerr.ErrInvalidInput, i+1)
		}
		if _, dup := seen[g.LineUID]; dup {
			return nil, fmt.Errorf("%w: gold label for %s", internalerr.ErrDuplicate, g.LineUID)
		}
		seen[g.LineUID] = struct{}{}
		if g.Confidence == "" {
			g.Confidence = "certain"
		}
	}
	return labels, nil
}

// Predictions maps line UID to primary tag.
func Predictions(recs []tagging.Record) map[string]string {
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		out[r.LineUID] = r.Primary
	}
	return out
}

// CategoryMetrics scores one tag. Support is TP + FN.
type CategoryMetrics struct {
	Category       string  `json:"category"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
	Support        int     `json:"support"`
}

// Result is the evaluation of one set of predictions. Macro figures
// average over categories with support; MacroF1 is the harmonic mean of
// the macro precision and recall.
type Result struct {
	PerCategory    []CategoryMetrics `json:"per_category"`
	MacroPrecision float64           `json:"macro_precision"`
	MacroRecall    float64           `json:"macro_recall"`
	MacroF1        float64           `json:"macro_f1"`
	TotalGold      int               `json:"total_gold"`
	TotalAligned   int               `json:"total_aligned"`
}

// Category returns the metrics of one tag.
func (r *Result) Category(name string) (CategoryMetrics, bool) {
	for _, m := range r.PerCategory {
		if m.Category == name {
			return m, true
		}
	}
	return CategoryMetrics{}, false
}

// Evaluate compares predicted primary tags with the gold set. Predictions
// for lines outside the gold set are ignored. With no categories given
// the union of gold categories and predicted tags is used.
func Evaluate(gold []GoldLabel, predicted map[string]string, categories []string) Result {
	if categories == nil {
		categories = categoriesOf(gold, predicted)
	}
	res := Result{PerCategory: make([]CategoryMetrics, 0, len(categories)), TotalGold: len(gold)}
	for _, g := range gold {
		if _, ok := predicted[g.LineUID]; ok {
			res.TotalAligned++
		}
	}

	var supported []CategoryMetrics
	for _, c := range categories {
		m := categoryMetrics(gold, predicted, c)
		res.PerCategory = append(res.PerCategory, m)
		if m.Support > 0 {
			supported = append(supported, m)
		}
	}
	if len(supported) > 0 {
		for _, m := range supported {
			res.MacroPrecision += m.Precision
			res.MacroRecall += m.Recall
		}
		res.MacroPrecision /= float64(len(supported))
		res.MacroRecall /= float64(len(supported))
		res.MacroF1 = f1(res.MacroPrecision, res.MacroRecall)
	}
	return res
}

func categoriesOf(gold []GoldLabel, predicted map[string]string) []string {
	set := make(map[string]struct{})
	for _, g := range gold {
		set[g.Category] = struct{}{}
	}
	for _, tag := range predicted {
		if tag != "" {
			set[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func categoryMetrics(gold []GoldLabel, predicted map[string]string, category string) CategoryMetrics {
	m := CategoryMetrics{Category: category}
	for _, g := range gold {
		pred, ok := predicted[g.LineUID]
		hit := ok && pred == category
		switch {
		case hit && g.Category == category:
			m.TruePositives++
		case hit:
			m.FalsePositives++
		case g.Category == category:
			m.FalseNegatives++
		}
	}
	if d := m.TruePositives + m.FalsePositives; d > 0 {
		m.Precision = float64(m.TruePositives) / float64(d)
	}
	if d := m.TruePositives + m.FalseNegatives; d > 0 {
		m.Recall = float64(m.TruePositives) / float64(d)
	}
	m.F1 = f1(m.Precision, m.Recall)
	m.Support = m.TruePositives + m.FalseNegatives
	return m
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// ErrorRecord is a gold line the prediction got wrong.
type ErrorRecord struct {
	LineUID    string `json:"line_uid"`
	Gold       string `json:"gold_category"`
	Predicted  string `json:"predicted_category"`
	Confidence string `json:"confidence"`
	Notes      string `json:"notes,omitempty"`
}

// Errors lists the mismatches in gold order. A line without a prediction
// is reported with an empty predicted category.
func Errors(gold []GoldLabel, predicted map[string]string) []ErrorRecord {
	out := []ErrorRecord{}
	for _, g := range gold {
		pred := predicted[g.LineUID]
		if pred == g.Category {
			continue
		}
		out = append(out, ErrorRecord{
			LineUID:    g.LineUID,
			Gold:       g.Category,
			Predicted:  pred,
			Confidence: g.Confidence,
			Notes:      g.Notes,
		})
	}
	return out
}

// Confusion counts gold category against predicted tag. Lines without a
// prediction count under LabelMissing and empty tags under
// LabelUnclassified.
func Confusion(gold []GoldLabel, predicted map[string]string) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, g := range gold {
		pred, ok := predicted[g.LineUID]
		switch {
		case !ok:
			pred = LabelMissing
		case pred == "":
			pred = LabelUnclassified
		}
		row := out[g.Category]
		if row == nil {
			row = make(map[string]int)
			out[g.Category] = row
		}
		row[pred]++
	}
	return out
}

// SweepPoint is the evaluation under one threshold variant.
type SweepPoint struct {
	Name    string `json:"threshold_name"`
	Metrics Result `json:"metrics"`
}

// Sweep re-derives the tags of recs under every variant and evaluates
// each against the gold set. Points are ordered by variant name.
func Sweep(gold []GoldLabel, recs []tagging.Record, variants map[string]tagging.Config, categories []string) []SweepPoint {
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]SweepPoint, 0, len(names))
	for _, n := range names {
		preds := Predictions(tagging.Rederive(recs, variants[n]))
		out = append(out, SweepPoint{Name: n, Metrics: Evaluate(gold, preds, categories)})
	}
	return out
}

// Report is everything an evaluation run writes.
type Report struct {
	SchemaVersion string                    `json:"schema_version"`
	Metrics       Result                    `json:"metrics"`
	Errors        []ErrorRecord             `json:"errors"`
	Confusion     map[string]map[string]int `json:"confusion_matrix"`
	Sweep         []SweepPoint              `json:"threshold_sweep,omitempty"`
}

// Run evaluates recs against the gold set and sweeps the variants.
func Run(gold []GoldLabel, recs []tagging.Record, variants map[string]tagging.Config) Report {
	preds := Predictions(recs)
	rep := Report{
		SchemaVersion: schema.Version,
		Metrics:       Evaluate(gold, preds, nil),
		Errors:        Errors(gold, preds),
		Confusion:     Confusion(gold, preds),
	}
	if len(variants) > 0 {
		rep.Sweep = Sweep(gold, recs, variants, nil)
	}
	return rep
}
