package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPToZKnownValues(t *testing.T) {
	assert.InDelta(t, 1.6449, PToZ(0.05, OneTailed), 1e-3)
	assert.InDelta(t, 1.9600, PToZ(0.05, TwoTailed), 1e-3)
	assert.InDelta(t, 0.0, PToZ(0.5, OneTailed), 1e-12)

	// Extreme p stays finite
	assert.False(t, math.IsInf(PToZ(0, OneTailed), 0))
	assert.False(t, math.IsInf(PToZ(1, OneTailed), 0))

	// Quantile convention: p in the null bulk maps to negative z one-tailed
	assert.Less(t, PToZ(0.99, OneTailed), 0.0)
}

func TestPZRoundTrip(t *testing.T) {
	for _, p := range []float64{0.001, 0.01, 0.05, 0.2, 0.5} {
		assert.InDelta(t, p, ZToP(PToZ(p, OneTailed), OneTailed), 1e-9)
		assert.InDelta(t, p, ZToP(PToZ(p, TwoTailed), TwoTailed), 1e-9)
	}
}

func TestOneWayChiSquare(t *testing.T) {
	// Uniform counts carry no signal
	counts := []float64{3, 3, 3, 3}
	chi2 := OneWayChiSquare(counts, 10)
	for _, v := range chi2 {
		assert.InDelta(t, 0.0, v, 1e-12)
	}

	// A concentrated voxel stands out
	counts = []float64{9, 1, 1, 1}
	chi2 = OneWayChiSquare(counts, 10)
	assert.Greater(t, chi2[0], chi2[1])
	assert.Less(t, ChiSquareSurvival(chi2[0]), 0.05)
}

func TestTwoWayChiSquare(t *testing.T) {
	// Strong association
	chi2 := TwoWayChiSquare(20, 5, 5, 20)
	assert.Greater(t, chi2, 10.0)
	assert.Less(t, ChiSquareSurvival(chi2), 0.01)

	// Independence: proportional rows
	chi2 = TwoWayChiSquare(10, 10, 20, 20)
	assert.InDelta(t, 0.0, chi2, 1e-12)

	// Degenerate margin
	assert.Equal(t, 0.0, TwoWayChiSquare(0, 0, 5, 5))
}

func TestEmpiricalPValue(t *testing.T) {
	null := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}

	// Larger observed statistics give smaller p
	pLow := EmpiricalPValue(null, 2.5)
	pHigh := EmpiricalPValue(null, 8.5)
	assert.Greater(t, pLow, pHigh)

	// Never exactly zero even beyond the null's range
	assert.Equal(t, 1.0/10.0, EmpiricalPValue(null, 100))
	assert.Equal(t, 1.0, EmpiricalPValue(null, 0))
}

func TestAdjustFDRIndep(t *testing.T) {
	p := []float64{0.001, 0.008, 0.039, 0.041, 0.042, 0.06, 0.074, 0.205, 0.212, 0.216,
		0.222, 0.251, 0.269, 0.275, 0.34, 0.341, 0.384, 0.569, 0.594, 0.696, 0.762,
		0.94, 0.942, 0.975, 0.986}
	adj, err := AdjustFDR(p, FDRIndep)
	require.NoError(t, err)

	// Adjusted p is monotone in the originals and never below them
	for i := range p {
		assert.GreaterOrEqual(t, adj[i], p[i])
		assert.LessOrEqual(t, adj[i], 1.0)
	}
	// Known Benjamini-Hochberg outcome for this classic example
	assert.InDelta(t, 0.025, adj[0], 1e-9)
	assert.InDelta(t, 0.100, adj[1], 1e-9)
	nSig := func(q float64) int {
		n := 0
		for _, v := range adj {
			if v <= q {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, nSig(0.05))
	assert.Equal(t, 5, nSig(0.22))
}

func TestAdjustFDRNegCorrIsMoreConservative(t *testing.T) {
	p := []float64{0.001, 0.01, 0.02, 0.3, 0.5, 0.9}
	bh, err := AdjustFDR(p, FDRIndep)
	require.NoError(t, err)
	by, err := AdjustFDR(p, FDRNegCorr)
	require.NoError(t, err)
	for i := range p {
		assert.GreaterOrEqual(t, by[i], bh[i])
	}
}

func TestAdjustFDRErrors(t *testing.T) {
	_, err := AdjustFDR(nil, FDRIndep)
	assert.Error(t, err)
	_, err = AdjustFDR([]float64{0.5}, FDRMethod("bogus"))
	assert.Error(t, err)
}
