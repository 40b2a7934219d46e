// Package pmi computes smoothed association scores from window counts.
package pmi

import "math"

// Calculator computes association scores over window counts.
type Calculator struct {
	k float64 // additive smoothing constant
}

// NewCalculator creates a calculator with additive smoothing k. A negative
// k is treated as zero (unsmoothed).
func NewCalculator(k float64) *Calculator {
	if k < 0 {
		k = 0
	}
	return &Calculator{k: k}
}

// K returns the smoothing constant.
func (c *Calculator) K() float64 {
	return c.k
}

// PMI calculates smoothed Pointwise Mutual Information in bits.
//
// PMI(A,B) = log2( (joint + k) * N / ((countA + k*V) * (countB + k*V)) )
//
// where:
//   - joint is the number of windows containing both A and B
//   - countA, countB are the numbers of windows containing each entity
//   - N is the number of windows
//   - V is the vocabulary size
//
// The second return value is false when the score is undefined (N == 0 or
// a zero numerator/denominator, which only happens with k == 0).
func (c *Calculator) PMI(joint, countA, countB, n int64, v int) (float64, bool) {
	if n <= 0 {
		return 0, false
	}
	num := (float64(joint) + c.k) * float64(n)
	kv := c.k * float64(v)
	den := (float64(countA) + kv) * (float64(countB) + kv)
	if num <= 0 || den <= 0 {
		return 0, false
	}
	return math.Log2(num / den), true
}

// NPMI normalizes a PMI value by the joint self-information:
//
// NPMI(A,B) = PMI(A,B) / -log2(P(A,B)),  P(A,B) = joint / N
//
// The result is clamped to [-1, 1] since smoothing can push the ratio
// slightly past the theoretical bounds. When P(A,B) is 0 or 1 the
// normalizer is undefined and 0 is returned.
func NPMI(pmi float64, joint, n int64) float64 {
	if n <= 0 || joint <= 0 || joint >= n {
		return 0
	}
	pab := float64(joint) / float64(n)
	norm := -math.Log2(pab)
	if norm == 0 {
		return 0
	}
	return clamp(pmi/norm, -1, 1)
}

// Jaccard returns |A∩B| / |A∪B| in window counts.
func Jaccard(joint, countA, countB int64) float64 {
	union := countA + countB - joint
	if union <= 0 {
		return 0
	}
	return float64(joint) / float64(union)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
