package pmi

import (
	"math"
	"testing"
)

func TestPMIRareButStrongPair(t *testing.T) {
	calc := NewCalculator(1.0)

	// Each entity in 6 of 1000 windows, together in 5.
	pmi, ok := calc.PMI(5, 6, 6, 1000, 2)
	if !ok {
		t.Fatal("PMI should be defined")
	}
	want := math.Log2(6.0 * 1000 / (8 * 8))
	if math.Abs(pmi-want) > 1e-12 {
		t.Errorf("PMI = %f, want %f", pmi, want)
	}
	if pmi < 5 {
		t.Errorf("rare co-occurring pair should score high, got %f", pmi)
	}
}

func TestPMIIndependentUnsmoothed(t *testing.T) {
	calc := NewCalculator(0)

	// A in 50%, B in 50%, together in 25%: exactly independent.
	pmi, ok := calc.PMI(25, 50, 50, 100, 10)
	if !ok {
		t.Fatal("PMI should be defined")
	}
	if math.Abs(pmi) > 1e-12 {
		t.Errorf("PMI for independent entities should be 0, got %f", pmi)
	}
}

func TestPMINegative(t *testing.T) {
	calc := NewCalculator(0)

	pmi, _ := calc.PMI(5, 50, 50, 100, 10)
	if pmi >= 0 {
		t.Errorf("PMI for anti-correlated entities should be negative, got %f", pmi)
	}
}

func TestPMISymmetric(t *testing.T) {
	calc := NewCalculator(1.0)

	ab, _ := calc.PMI(3, 7, 19, 500, 40)
	ba, _ := calc.PMI(3, 19, 7, 500, 40)
	if ab != ba {
		t.Errorf("PMI not symmetric: %f vs %f", ab, ba)
	}
}

func TestPMISmoothingDampensRareCounts(t *testing.T) {
	raw := NewCalculator(0)
	smoothed := NewCalculator(1.0)

	p0, _ := raw.PMI(1, 1, 1, 1000, 50)
	p1, _ := smoothed.PMI(1, 1, 1, 1000, 50)
	if p1 >= p0 {
		t.Errorf("smoothing should lower PMI for singletons: raw=%f smoothed=%f", p0, p1)
	}
}

func TestPMIUndefined(t *testing.T) {
	calc := NewCalculator(0)

	if _, ok := calc.PMI(0, 0, 0, 0, 0); ok {
		t.Error("PMI over zero windows should be undefined")
	}
	if _, ok := calc.PMI(0, 3, 4, 10, 2); ok {
		t.Error("unsmoothed PMI with zero joint should be undefined")
	}
	if NewCalculator(-2).K() != 0 {
		t.Error("negative k should be clamped to 0")
	}
}

func TestNPMIBounds(t *testing.T) {
	calc := NewCalculator(1.0)
	pmi, _ := calc.PMI(5, 6, 6, 1000, 2)

	npmi := NPMI(pmi, 5, 1000)
	if npmi <= 0 || npmi > 1 {
		t.Errorf("NPMI should be in (0, 1], got %f", npmi)
	}
	if got := NPMI(100, 5, 1000); got != 1 {
		t.Errorf("NPMI should clamp to 1, got %f", got)
	}
	if got := NPMI(-100, 5, 1000); got != -1 {
		t.Errorf("NPMI should clamp to -1, got %f", got)
	}
	if got := NPMI(3, 10, 10); got != 0 {
		t.Errorf("NPMI with P(A,B)=1 should be 0, got %f", got)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		joint, a, b int64
		want        float64
	}{
		{5, 6, 6, 5.0 / 7.0},
		{2, 2, 2, 1},
		{0, 3, 4, 0},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		if got := Jaccard(tt.joint, tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Jaccard(%d,%d,%d) = %f, want %f", tt.joint, tt.a, tt.b, got, tt.want)
		}
	}
}
