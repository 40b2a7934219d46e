package analytics

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Group levels of the guardrail report.
const (
	GroupComposition = "composition"
	GroupPage        = "page"
)

// GuardrailConfig controls the uncertainty figures attached to each
// page and composition. Every figure describes distinctiveness within
// this corpus; none of them is a significance test.
type GuardrailConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	// MinSupport is the sample size below which an estimate is flagged.
	MinSupport       int     `json:"min_support" yaml:"min_support" toml:"min_support"`
	BootstrapSamples int     `json:"bootstrap_samples" yaml:"bootstrap_samples" toml:"bootstrap_samples"`
	ConfidenceLevel  float64 `json:"confidence_level" yaml:"confidence_level" toml:"confidence_level"`
	// SmoothingPrior is added to every count of the log-odds ratio.
	SmoothingPrior float64 `json:"smoothing_prior" yaml:"smoothing_prior" toml:"smoothing_prior"`
	Seed           uint64  `json:"seed" yaml:"seed" toml:"seed"`
}

// DefaultGuardrailConfig returns 1000 resamples at 95% with a support
// floor of 20 and a prior of 0.5.
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		Enabled:          true,
		MinSupport:       20,
		BootstrapSamples: 1000,
		ConfidenceLevel:  0.95,
		SmoothingPrior:   0.5,
		Seed:             42,
	}
}

// Validate checks the ranges of an enabled configuration.
func (c GuardrailConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MinSupport < 0 {
		return fmt.Errorf("%w: guardrails.min_support must be >= 0", internalerr.ErrInvalidConfig)
	}
	if c.BootstrapSamples < 1 {
		return fmt.Errorf("%w: guardrails.bootstrap_samples must be >= 1", internalerr.ErrInvalidConfig)
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return fmt.Errorf("%w: guardrails.confidence_level must be in (0,1), got %g", internalerr.ErrInvalidConfig, c.ConfidenceLevel)
	}
	if !(c.SmoothingPrior > 0) || math.IsInf(c.SmoothingPrior, 0) {
		return fmt.Errorf("%w: guardrails.smoothing_prior must be positive", internalerr.ErrInvalidConfig)
	}
	return nil
}

// SupportCheck flags estimates built on too few observations.
type SupportCheck struct {
	SampleSize int  `json:"sample_size"`
	MinSupport int  `json:"min_support"`
	Sufficient bool `json:"sufficient_support"`
}

// CheckSupport compares n against the floor.
func CheckSupport(n, minSupport int) SupportCheck {
	return SupportCheck{SampleSize: n, MinSupport: minSupport, Sufficient: n >= minSupport}
}

// LogOdds compares how often something occurs in a group against a
// background.
//
//	odds_group = (count + prior) / (total - count + prior)
//	log_odds   = ln(odds_group / odds_background)
type LogOdds struct {
	GroupCount      int64        `json:"group_count"`
	GroupTotal      int64        `json:"group_total"`
	BackgroundCount int64        `json:"background_count"`
	BackgroundTotal int64        `json:"background_total"`
	LogOdds         float64      `json:"log_odds"`
	Prior           float64      `json:"smoothing_prior"`
	Support         SupportCheck `json:"support"`
}

// ComputeLogOdds returns the smoothed log-odds ratio. Support is judged on
// the group total. A non-positive denominator yields 0.
func ComputeLogOdds(groupCount, groupTotal, bgCount, bgTotal int64, prior float64, minSupport int) LogOdds {
	lo := LogOdds{
		GroupCount:      groupCount,
		GroupTotal:      groupTotal,
		BackgroundCount: bgCount,
		BackgroundTotal: bgTotal,
		Prior:           prior,
		Support:         CheckSupport(int(groupTotal), minSupport),
	}
	dg := float64(groupTotal-groupCount) + prior
	db := float64(bgTotal-bgCount) + prior
	if dg <= 0 || db <= 0 {
		return lo
	}
	og := (float64(groupCount) + prior) / dg
	ob := (float64(bgCount) + prior) / db
	if ob > 0 && og > 0 {
		lo.LogOdds = math.Log(og / ob)
	}
	return lo
}

// BootstrapCI is a percentile interval for a mean.
type BootstrapCI struct {
	Estimate   float64 `json:"point_estimate"`
	Lower      float64 `json:"ci_lower"`
	Upper      float64 `json:"ci_upper"`
	Level      float64 `json:"confidence_level"`
	Samples    int     `json:"n_samples"`
	SampleSize int     `json:"sample_size"`
	Sufficient bool    `json:"sufficient_support"`
}

// Width is Upper - Lower.
func (b BootstrapCI) Width() float64 { return b.Upper - b.Lower }

// Bootstrap resamples values with replacement samples times and returns
// the percentile interval of the resampled means. The result depends only
// on the multiset of values and the state of rng. Fewer than two values
// give a zero-width interval at the mean.
func Bootstrap(values []float64, samples int, level float64, minSupport int, rng *rand.Rand) BootstrapCI {
	n := len(values)
	ci := BootstrapCI{
		Level:      level,
		Samples:    samples,
		SampleSize: n,
		Sufficient: n > 0 && CheckSupport(n, minSupport).Sufficient,
	}
	if n == 0 {
		return ci
	}
	s := sortedCopy(values)
	ci.Estimate = mean(s)
	if n == 1 || samples < 1 {
		ci.Lower, ci.Upper = ci.Estimate, ci.Estimate
		return ci
	}

	means := make([]float64, samples)
	for i := range means {
		var sum float64
		for j := 0; j < n; j++ {
			sum += s[rng.IntN(n)]
		}
		means[i] = sum / float64(n)
	}
	means = sortedCopy(means)

	alpha := 1 - level
	lo := int(math.Floor(alpha / 2 * float64(samples)))
	hi := int(math.Ceil((1-alpha/2)*float64(samples))) - 1
	ci.Lower = means[clampIndex(lo, samples)]
	ci.Upper = means[clampIndex(hi, samples)]
	return ci
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}

// EffectSize is Cohen's d between two samples with a pooled standard
// deviation.
type EffectSize struct {
	MeanA          float64 `json:"mean_a"`
	MeanB          float64 `json:"mean_b"`
	PooledStd      float64 `json:"pooled_std"`
	D              float64 `json:"cohens_d"`
	Interpretation string  `json:"interpretation"`
}

// CohensD compares a against b. Either side with fewer than two values,
// or no spread at all, gives d = 0.
func CohensD(a, b []float64) EffectSize {
	return cohensD(momentsOf(sortedCopy(a)), momentsOf(sortedCopy(b)))
}

func cohensD(a, b moments) EffectSize {
	es := EffectSize{MeanA: a.mean(), MeanB: b.mean(), Interpretation: interpretD(0)}
	if a.n < 2 || b.n < 2 {
		return es
	}
	pooled := (float64(a.n-1)*a.variance() + float64(b.n-1)*b.variance()) / float64(a.n+b.n-2)
	es.PooledStd = math.Sqrt(pooled)
	if es.PooledStd > 0 {
		es.D = (es.MeanA - es.MeanB) / es.PooledStd
	}
	es.Interpretation = interpretD(es.D)
	return es
}

// interpretD uses the conventional 0.2 / 0.5 / 0.8 cut points.
func interpretD(d float64) string {
	switch d = math.Abs(d); {
	case d < 0.2:
		return "negligible"
	case d < 0.5:
		return "small"
	case d < 0.8:
		return "medium"
	default:
		return "large"
	}
}

// moments are running sums, so the rest of a corpus is total minus group.
type moments struct {
	n     int
	sum   float64
	sumSq float64
}

func momentsOf(s []float64) moments {
	m := moments{n: len(s)}
	for _, v := range s {
		m.sum += v
		m.sumSq += v * v
	}
	return m
}

func (m moments) add(o moments) moments {
	return moments{n: m.n + o.n, sum: m.sum + o.sum, sumSq: m.sumSq + o.sumSq}
}

func (m moments) sub(o moments) moments {
	return moments{n: m.n - o.n, sum: m.sum - o.sum, sumSq: m.sumSq - o.sumSq}
}

func (m moments) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// variance is the sample variance, clamped at 0 against rounding.
func (m moments) variance() float64 {
	if m.n < 2 {
		return 0
	}
	v := (m.sumSq - m.sum*m.sum/float64(m.n)) / float64(m.n-1)
	return math.Max(v, 0)
}

// DimensionGuardrail holds the figures of one dimension within a group.
// Effect and LogOdds compare the group with every other group of the same
// level.
type DimensionGuardrail struct {
	CI      BootstrapCI `json:"bootstrap_ci"`
	Effect  EffectSize  `json:"effect_vs_rest"`
	LogOdds LogOdds     `json:"log_odds_vs_rest"`
}

// GroupGuardrail is the guardrail entry of one page or composition.
type GroupGuardrail struct {
	Level      string                                  `json:"level"`
	Key        string                                  `json:"key"`
	Support    SupportCheck                            `json:"support"`
	Dimensions map[schema.Dimension]DimensionGuardrail `json:"dimensions"`
}

// guardrails computes the entries of one level in group order. Each
// group and dimension draws from its own generator seeded from the
// configured seed and the group key, so an entry does not depend on which
// other groups exist.
func (a *Analyzer) guardrails(level string, m map[string]*bucket) []GroupGuardrail {
	cfg := a.guard
	keys := orderedKeys(m)

	total := make(map[schema.Dimension]moments, len(a.dims))
	totalCounts := make(map[schema.Dimension]int64, len(a.dims))
	var totalTokens int64
	sorted := make(map[string]map[schema.Dimension][]float64, len(keys))
	for _, k := range keys {
		b := m[k]
		sorted[k] = make(map[schema.Dimension][]float64, len(a.dims))
		totalTokens += b.tokens
		for _, d := range a.dims {
			s := sortedCopy(b.values[d])
			sorted[k][d] = s
			total[d] = total[d].add(momentsOf(s))
			totalCounts[d] += b.counts[d]
		}
	}

	out := make([]GroupGuardrail, 0, len(keys))
	for _, k := range keys {
		b := m[k]
		g := GroupGuardrail{
			Level:      level,
			Key:        k,
			Support:    CheckSupport(b.lines, cfg.MinSupport),
			Dimensions: make(map[schema.Dimension]DimensionGuardrail, len(a.dims)),
		}
		for _, d := range a.dims {
			s := sorted[k][d]
			gm := momentsOf(s)
			rng := rand.New(rand.NewPCG(cfg.Seed, xxhash.Sum64String(level+"\x00"+k+"\x00"+string(d))))
			g.Dimensions[d] = DimensionGuardrail{
				CI:     Bootstrap(s, cfg.BootstrapSamples, cfg.ConfidenceLevel, cfg.MinSupport, rng),
				Effect: cohensD(gm, total[d].sub(gm)),
				LogOdds: ComputeLogOdds(b.counts[d], b.tokens,
					totalCounts[d]-b.counts[d], totalTokens-b.tokens,
					cfg.SmoothingPrior, cfg.MinSupport),
			}
		}
		out = append(out, g)
	}
	return out
}
