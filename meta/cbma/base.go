// Package cbma implements the coordinate-based meta-analysis estimators:
// ALE and ALESubtraction (Gaussian modeled activation combined under the
// probabilistic union rule), MKDADensity and KDA (binary-sphere density
// statistics), and MKDAChi2 (two-group chi-square association). Estimators
// aggregate per-study modeled-activation maps into a summary statistic map,
// attach uncorrected p and z maps from an analytic or Monte Carlo null
// distribution, and expose native Monte Carlo FWE correction to the
// correction layer.
package cbma

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
	"github.com/neurometa/gocbma/results"
	"github.com/neurometa/gocbma/stats"
)

// NullMethod selects how an estimator builds its uncorrected null
// distribution
type NullMethod string

const (
	// NullApproximate builds the null analytically by combining per-study
	// single-focus value histograms
	NullApproximate NullMethod = "approximate"
	// NullMonteCarlo builds the null empirically from random permutations
	// of foci locations
	NullMonteCarlo NullMethod = "montecarlo"
)

func (n NullMethod) validate() error {
	switch n {
	case NullApproximate, NullMonteCarlo:
		return nil
	default:
		return fmt.Errorf("unsupported null method %q: must be one of %q, %q",
			string(n), NullApproximate, NullMonteCarlo)
	}
}

// Estimator is a single-dataset CBMA method. Fit recomputes from scratch on
// every call; given identical inputs and seed the result is identical.
type Estimator interface {
	Name() string
	Fit(ctx context.Context, ds *dataset.Collection) (*results.MetaResult, error)
}

// PairedEstimator is a two-dataset CBMA method
type PairedEstimator interface {
	Name() string
	Fit2(ctx context.Context, ds1, ds2 *dataset.Collection) (*results.MetaResult, error)
}

// pFloor keeps analytic null p-values away from exact zero under finite bin
// resolution
const pFloor = 1e-10

// histBinWidth is the value resolution of ALE-style null histograms
const histBinWidth = 1e-4

func checkFittable(name string, ds *dataset.Collection) error {
	if ds == nil {
		return fmt.Errorf("%s: dataset is nil", name)
	}
	if !ds.HasFoci() {
		return fmt.Errorf("%s: no experiment has any in-mask focus", name)
	}
	return nil
}

func checkPair(name string, ds1, ds2 *dataset.Collection) error {
	if err := checkFittable(name, ds1); err != nil {
		return err
	}
	if err := checkFittable(name, ds2); err != nil {
		return err
	}
	if !ds1.Mask().SameGrid(ds2.Mask()) {
		return fmt.Errorf("%s: the two datasets use incompatible masks (shape or affine differ)", name)
	}
	if ds1.Space() != ds2.Space() {
		return fmt.Errorf("%s: the two datasets use different spaces (%s vs %s)", name, ds1.Space(), ds2.Space())
	}
	return nil
}

// permuteExperiments redraws every experiment's foci uniformly at random
// within the mask, preserving per-experiment foci counts and sample sizes.
// This is the spatial-randomness null arrangement.
func permuteExperiments(mask *imaging.Mask, exps []dataset.Experiment, rng *rand.Rand) []dataset.Experiment {
	out := make([]dataset.Experiment, len(exps))
	for i := range exps {
		out[i] = dataset.Experiment{
			ID:         exps[i].ID,
			SampleSize: exps[i].SampleSize,
			IJK:        mask.SampleVoxels(rng, len(exps[i].IJK)),
		}
	}
	return out
}

// sortedTailP computes the add-one empirical upper-tail p of v against an
// ascending-sorted null sample
func sortedTailP(sortedNull []float64, v float64) float64 {
	// First index with null >= v
	idx := sort.SearchFloat64s(sortedNull, v)
	count := len(sortedNull) - idx
	return float64(1+count) / float64(1+len(sortedNull))
}

// pzMaps derives the uncorrected p and z maps from a statistic map and a
// null histogram. z follows the one-tailed quantile convention: voxels whose
// statistic sits in the bulk of the null (p above 0.5) get negative z rather
// than zero.
func pzMaps(stat []float64, null *stats.Histogram) (p, z []float64) {
	tail := null.TailProbabilities()
	p = make([]float64, len(stat))
	z = make([]float64, len(stat))
	for v := range stat {
		pv := tail[null.BinOf(stat[v])]
		if pv < pFloor {
			pv = pFloor
		}
		if pv > 1 {
			pv = 1
		}
		p[v] = pv
		z[v] = stats.PToZ(pv, stats.OneTailed)
	}
	return p, z
}

func signOf(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
