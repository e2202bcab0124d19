// Package stats provides the statistical primitives shared by the CBMA
// estimators and correctors: p/z conversion, chi-square tests, false
// discovery rate procedures, and the fixed-step value histograms used for
// analytic null distributions.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Tail selects one- or two-tailed p-value conventions
type Tail string

const (
	OneTailed Tail = "one"
	TwoTailed Tail = "two"
)

// pClip keeps p-values away from 0 and 1 so the normal quantile stays finite
const pClip = 1e-16

var unitNormal = distuv.Normal{Mu: 0, Sigma: 1}

// PToZ converts a p-value to a z-statistic. One-tailed: z such that
// P(Z >= z) = p. Two-tailed: z such that 2*P(Z >= z) = p. The result is
// always nonnegative for p <= 0.5 (one-tailed) and nonnegative for any
// two-tailed p; callers reapply the statistic's sign.
func PToZ(p float64, tail Tail) float64 {
	p = clamp(p, pClip, 1-pClip)
	if tail == TwoTailed {
		p /= 2
	}
	return unitNormal.Quantile(1 - p)
}

// ZToP converts a z-statistic to a p-value under the matching convention
func ZToP(z float64, tail Tail) float64 {
	p := unitNormal.Survival(math.Abs(z))
	if tail == TwoTailed {
		p *= 2
	}
	return clamp(p, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var chi2df1 = distuv.ChiSquared{K: 1}

// ChiSquareSurvival returns the upper-tail p of a chi-square statistic with
// one degree of freedom
func ChiSquareSurvival(chi2 float64) float64 {
	if chi2 <= 0 {
		return 1
	}
	return chi2df1.Survival(chi2)
}

// OneWayChiSquare runs a voxelwise one-way chi-square test of the observed
// activation counts against a uniform expectation (the mean count across
// voxels). counts[v] is the number of studies reporting activation at voxel
// v out of n studies. Returns the chi-square statistic per voxel.
//
// References:
//   - Wager, T.D., Lindquist, M., Kaplan, L. (2007). "Meta-analysis of
//     functional neuroimaging data: current and future directions."
//     Social Cognitive and Affective Neuroscience, 2(2), 150-158
func OneWayChiSquare(counts []float64, n float64) []float64 {
	if len(counts) == 0 || n <= 0 {
		return nil
	}
	exp := 0.0
	for _, c := range counts {
		exp += c
	}
	exp /= float64(len(counts))

	chi2 := make([]float64, len(counts))
	if exp <= 0 || exp >= n {
		return chi2
	}
	expNo := n - exp
	for v, c := range counts {
		d1 := c - exp
		d2 := (n - c) - expNo
		chi2[v] = d1*d1/exp + d2*d2/expNo
	}
	return chi2
}

// TwoWayChiSquare runs a 2x2 chi-square test of independence on the
// contingency table [[a, b], [c, d]] without continuity correction.
// Degenerate margins yield a zero statistic.
func TwoWayChiSquare(a, b, c, d float64) float64 {
	total := a + b + c + d
	if total <= 0 {
		return 0
	}
	r1, r2 := a+b, c+d
	c1, c2 := a+c, b+d
	if r1 == 0 || r2 == 0 || c1 == 0 || c2 == 0 {
		return 0
	}
	chi2 := 0.0
	obs := [2][2]float64{{a, b}, {c, d}}
	rows := [2]float64{r1, r2}
	cols := [2]float64{c1, c2}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			e := rows[i] * cols[j] / total
			diff := obs[i][j] - e
			chi2 += diff * diff / e
		}
	}
	return chi2
}

// EmpiricalPValue computes the upper-tail p of an observed statistic against
// a Monte Carlo null sample, with the add-one adjustment so finite samples
// never yield exactly zero
func EmpiricalPValue(null []float64, observed float64) float64 {
	count := 0
	for _, v := range null {
		if v >= observed {
			count++
		}
	}
	return float64(1+count) / float64(1+len(null))
}
