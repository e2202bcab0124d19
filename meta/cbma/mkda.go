package cbma

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
	"github.com/neurometa/gocbma/logging"
	"github.com/neurometa/gocbma/meta"
	"github.com/neurometa/gocbma/meta/kernel"
	"github.com/neurometa/gocbma/results"
	"github.com/neurometa/gocbma/stats"
)

// densityFit is the state a density estimator retains from Fit for native
// FWE correction
type densityFit struct {
	ds   *dataset.Collection
	null *stats.Histogram
}

// MKDADensity is the multilevel kernel density analysis. Each experiment
// contributes a binary sphere map; the statistic is the weighted proportion
// of experiments activating each voxel.
//
// References:
//   - Wager, T.D., Lindquist, M., Kaplan, L. (2007). "Meta-analysis of
//     functional neuroimaging data: current and future directions."
//     Social Cognitive and Affective Neuroscience, 2(2), 150-158
type MKDADensity struct {
	Kernel *kernel.MKDAKernel
	// Null selects the permutation or analytic null; Monte Carlo by default
	Null NullMethod
	// SampleSizeWeights weights each experiment by the square root of its
	// sample size instead of uniformly
	SampleSizeWeights bool
	NIters            int
	NCores            int
	Seed              int64

	mu  sync.Mutex
	fit *densityFit
}

// NewMKDADensity creates an MKDA density estimator with conventional defaults
func NewMKDADensity() *MKDADensity {
	return &MKDADensity{
		Kernel: kernel.NewMKDAKernel(),
		Null:   NullMonteCarlo,
		NIters: 5000,
		NCores: 1,
	}
}

func (m *MKDADensity) Name() string { return "MKDADensity" }

// weights returns the per-experiment weights, normalized to sum to one
func (m *MKDADensity) weights(exps []dataset.Experiment) []float64 {
	w := make([]float64, len(exps))
	total := 0.0
	for i := range exps {
		w[i] = 1
		if m.SampleSizeWeights {
			n := exps[i].SampleSize
			if n <= 0 {
				n = kernel.DefaultSampleSize
			}
			w[i] = math.Sqrt(float64(n))
		}
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

func (m *MKDADensity) computeStat(mask *imaging.Mask, exps []dataset.Experiment, w []float64) []float64 {
	stat := make([]float64, mask.NumVoxels())
	for i := range exps {
		ma := m.Kernel.MA(mask, &exps[i])
		for v, a := range ma {
			if a != 0 {
				stat[v] += w[i] * a
			}
		}
	}
	return stat
}

// Fit computes the of (observed frequency), p, and z maps
func (m *MKDADensity) Fit(ctx context.Context, ds *dataset.Collection) (*results.MetaResult, error) {
	if err := checkFittable(m.Name(), ds); err != nil {
		return nil, err
	}
	if err := m.Null.validate(); err != nil {
		return nil, err
	}
	mask := ds.Mask()
	exps := ds.Experiments()
	w := m.weights(exps)

	logging.WithFields(logging.Fields{
		"estimator":     m.Name(),
		"n_experiments": len(exps),
		"null_method":   string(m.Null),
	}).Debug("fitting")

	stat := m.computeStat(mask, exps, w)

	var null *stats.Histogram
	var err error
	switch m.Null {
	case NullApproximate:
		null, err = additiveNull(mask, exps, m.Kernel, histBinWidth, w)
	case NullMonteCarlo:
		null, err = pooledValueNull(ctx, m.NIters, m.NCores, m.Seed, histBinWidth, 1, func(iter int, rng *rand.Rand) ([]float64, error) {
			return m.computeStat(mask, permuteExperiments(mask, exps, rng), w), nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: building null distribution: %w", m.Name(), err)
	}

	p, z := pzMaps(stat, null)

	m.mu.Lock()
	m.fit = &densityFit{ds: ds, null: null}
	m.mu.Unlock()

	r := results.New(m, mask)
	r.Set("of", stat)
	r.Set("p", p)
	r.Set("z", z)
	return r, nil
}

// CorrectFWEMonteCarlo reuses the fitted dataset and null to run
// permutation-based FWE correction. Fit must have been called first.
func (m *MKDADensity) CorrectFWEMonteCarlo(ctx context.Context, r *results.MetaResult, opts meta.FWEMonteCarloOptions) (map[string][]float64, error) {
	m.mu.Lock()
	fit := m.fit
	m.mu.Unlock()
	if fit == nil {
		return nil, fmt.Errorf("%s: estimator has not been fit", m.Name())
	}
	stat := r.Get("of")
	if stat == nil {
		return nil, fmt.Errorf("%s: result carries no of map", m.Name())
	}

	statThresh := fit.null.ValueAtTail(opts.VoxelThresh)
	mask := fit.ds.Mask()
	exps := fit.ds.Experiments()
	w := m.weights(exps)
	return fweMonteCarloMaps(ctx, mask, exps, stat, statThresh, func(perm []dataset.Experiment) ([]float64, error) {
		return m.computeStat(mask, perm, w), nil
	}, opts)
}

var _ meta.FWEMonteCarloCorrecter = (*MKDADensity)(nil)

// KDA is the original kernel density analysis: the statistic is the raw
// count of foci within the sphere radius of each voxel, summed over
// experiments.
//
// References:
//   - Wager, T.D., et al. (2003). "Valence, gender, and lateralization of
//     functional brain anatomy in emotion: a meta-analysis of findings from
//     neuroimaging." NeuroImage, 19(3), 513-531
type KDA struct {
	Kernel *kernel.KDAKernel
	Null   NullMethod
	NIters int
	NCores int
	Seed   int64

	mu  sync.Mutex
	fit *densityFit
}

// NewKDA creates a KDA estimator with conventional defaults
func NewKDA() *KDA {
	return &KDA{
		Kernel: kernel.NewKDAKernel(),
		Null:   NullMonteCarlo,
		NIters: 5000,
		NCores: 1,
	}
}

func (k *KDA) Name() string { return "KDA" }

func (k *KDA) computeStat(mask *imaging.Mask, exps []dataset.Experiment) []float64 {
	stat := make([]float64, mask.NumVoxels())
	for i := range exps {
		ma := k.Kernel.MA(mask, &exps[i])
		for v, a := range ma {
			stat[v] += a
		}
	}
	return stat
}

// Fit computes the kda (focus count), p, and z maps
func (k *KDA) Fit(ctx context.Context, ds *dataset.Collection) (*results.MetaResult, error) {
	if err := checkFittable(k.Name(), ds); err != nil {
		return nil, err
	}
	if err := k.Null.validate(); err != nil {
		return nil, err
	}
	mask := ds.Mask()
	exps := ds.Experiments()

	stat := k.computeStat(mask, exps)

	// Counts are integers, so the null histogram uses unit bins
	maxCount := 0.0
	for i := range exps {
		maxCount += k.Kernel.MaxValue(mask, &exps[i])
	}

	var null *stats.Histogram
	var err error
	switch k.Null {
	case NullApproximate:
		null, err = additiveNull(mask, exps, k.Kernel, 1, nil)
	case NullMonteCarlo:
		null, err = pooledValueNull(ctx, k.NIters, k.NCores, k.Seed, 1, maxCount, func(iter int, rng *rand.Rand) ([]float64, error) {
			return k.computeStat(mask, permuteExperiments(mask, exps, rng)), nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: building null distribution: %w", k.Name(), err)
	}

	p, z := pzMaps(stat, null)

	k.mu.Lock()
	k.fit = &densityFit{ds: ds, null: null}
	k.mu.Unlock()

	r := results.New(k, mask)
	r.Set("kda", stat)
	r.Set("p", p)
	r.Set("z", z)
	return r, nil
}

// CorrectFWEMonteCarlo reuses the fitted dataset and null to run
// permutation-based FWE correction. Fit must have been called first.
func (k *KDA) CorrectFWEMonteCarlo(ctx context.Context, r *results.MetaResult, opts meta.FWEMonteCarloOptions) (map[string][]float64, error) {
	k.mu.Lock()
	fit := k.fit
	k.mu.Unlock()
	if fit == nil {
		return nil, fmt.Errorf("%s: estimator has not been fit", k.Name())
	}
	stat := r.Get("kda")
	if stat == nil {
		return nil, fmt.Errorf("%s: result carries no kda map", k.Name())
	}

	statThresh := fit.null.ValueAtTail(opts.VoxelThresh)
	mask := fit.ds.Mask()
	exps := fit.ds.Experiments()
	return fweMonteCarloMaps(ctx, mask, exps, stat, statThresh, func(perm []dataset.Experiment) ([]float64, error) {
		return k.computeStat(mask, perm), nil
	}, opts)
}

var _ meta.FWEMonteCarloCorrecter = (*KDA)(nil)

// additiveNull builds the analytic null of a sum statistic by convolving the
// per-experiment value distributions. scale, when non-nil, multiplies each
// experiment's MA values (the density weights); nil means raw values.
func additiveNull(mask *imaging.Mask, exps []dataset.Experiment, k kernel.Transformer, step float64, scale []float64) (*stats.Histogram, error) {
	var null *stats.Histogram
	for i := range exps {
		ma := k.MA(mask, &exps[i])
		maxV := k.MaxValue(mask, &exps[i])
		if scale != nil {
			for v := range ma {
				ma[v] *= scale[i]
			}
			maxV *= scale[i]
		}
		h, err := stats.HistogramFromValues(ma, step, maxV)
		if err != nil {
			return nil, err
		}
		h.Normalize()
		if null == nil {
			null = h
			continue
		}
		null, err = null.Convolve(h)
		if err != nil {
			return nil, err
		}
	}
	return null, nil
}

// ChiSquareCorrection selects the multiple-comparisons correction MKDAChi2
// applies to its p maps during Fit2
type ChiSquareCorrection string

const (
	// ChiSquareCorrNone leaves the p maps uncorrected
	ChiSquareCorrNone ChiSquareCorrection = ""
	// ChiSquareCorrFDR appends Benjamini-Hochberg adjusted maps
	ChiSquareCorrFDR ChiSquareCorrection = "fdr"
	// ChiSquareCorrFWE appends Bonferroni adjusted maps
	ChiSquareCorrFWE ChiSquareCorrection = "fwe"
)

// MKDAChi2 contrasts the activation frequencies of two datasets with
// voxelwise chi-square tests: a one-way test of uniformity within the first
// dataset and a two-way test of association between dataset membership and
// activation. MA maps are binarized MKDA spheres.
//
// References:
//   - Wager, T.D., Lindquist, M., Kaplan, L. (2007). "Meta-analysis of
//     functional neuroimaging data: current and future directions."
//     Social Cognitive and Affective Neuroscience, 2(2), 150-158
type MKDAChi2 struct {
	Kernel *kernel.MKDAKernel
	// Corr is applied to the uniformity and association p maps within Fit2
	Corr ChiSquareCorrection
	// Q is the FDR acceptance level used when Corr is "fdr"
	Q float64
}

// NewMKDAChi2 creates a chi-square contrast estimator with no correction
func NewMKDAChi2() *MKDAChi2 {
	return &MKDAChi2{Kernel: kernel.NewMKDAKernel(), Q: 0.05}
}

func (m *MKDAChi2) Name() string { return "MKDAChi2" }

// activationCounts sums the binarized MA maps of a dataset's experiments
func (m *MKDAChi2) activationCounts(mask *imaging.Mask, exps []dataset.Experiment) []float64 {
	counts := make([]float64, mask.NumVoxels())
	for i := range exps {
		ma := m.Kernel.MA(mask, &exps[i])
		for v, a := range ma {
			if a != 0 {
				counts[v]++
			}
		}
	}
	return counts
}

// Fit2 computes the uniformity and association chi-square maps plus the
// conditional activation probabilities. ds1 is the selected group, ds2 the
// comparison group.
func (m *MKDAChi2) Fit2(ctx context.Context, ds1, ds2 *dataset.Collection) (*results.MetaResult, error) {
	if err := checkPair(m.Name(), ds1, ds2); err != nil {
		return nil, err
	}
	switch m.Corr {
	case ChiSquareCorrNone, ChiSquareCorrFDR, ChiSquareCorrFWE:
	default:
		return nil, fmt.Errorf("%s: unsupported correction %q: must be one of %q, %q, %q",
			m.Name(), string(m.Corr), ChiSquareCorrNone, ChiSquareCorrFDR, ChiSquareCorrFWE)
	}
	mask := ds1.Mask()
	nVox := mask.NumVoxels()

	counts1 := m.activationCounts(mask, ds1.Experiments())
	counts2 := m.activationCounts(mask, ds2.Experiments())
	n1 := float64(ds1.NumExperiments())
	n2 := float64(ds2.NumExperiments())

	meanCount1 := 0.0
	for _, c := range counts1 {
		meanCount1 += c
	}
	meanCount1 /= float64(nVox)

	pF := n1 / (n1 + n2)
	pA := make([]float64, nVox)
	pAgF := make([]float64, nVox)
	pFgA := make([]float64, nVox)
	for v := 0; v < nVox; v++ {
		pAgF[v] = counts1[v] / n1
		pA[v] = (counts1[v] + counts2[v]) / (n1 + n2)
		if pA[v] > 0 {
			pFgA[v] = pAgF[v] * pF / pA[v]
		}
	}

	// Uniformity: does the selected group activate this voxel more often
	// than its average voxel
	uniChi2 := stats.OneWayChiSquare(counts1, n1)
	uniP := make([]float64, nVox)
	uniZ := make([]float64, nVox)
	for v := 0; v < nVox; v++ {
		uniP[v] = stats.ChiSquareSurvival(uniChi2[v])
		uniZ[v] = stats.PToZ(uniP[v], stats.TwoTailed) * signOf(counts1[v]-meanCount1)
	}

	// Association: is activation at this voxel contingent on group
	// membership
	assocChi2 := make([]float64, nVox)
	assocP := make([]float64, nVox)
	assocZ := make([]float64, nVox)
	for v := 0; v < nVox; v++ {
		assocChi2[v] = stats.TwoWayChiSquare(counts1[v], counts2[v], n1-counts1[v], n2-counts2[v])
		assocP[v] = stats.ChiSquareSurvival(assocChi2[v])
		assocZ[v] = stats.PToZ(assocP[v], stats.TwoTailed) * signOf(pAgF[v]-counts2[v]/n2)
	}

	r := results.New(m, mask)
	r.Set("prob_desc-pA", pA)
	r.Set("prob_desc-pAgF", pAgF)
	r.Set("prob_desc-pFgA", pFgA)
	r.Set("chi2_desc-uniformity", uniChi2)
	r.Set("p_desc-uniformity", uniP)
	r.Set("z_desc-uniformity", uniZ)
	r.Set("chi2_desc-association", assocChi2)
	r.Set("p_desc-association", assocP)
	r.Set("z_desc-association", assocZ)

	if m.Corr != ChiSquareCorrNone {
		if err := m.applyCorrection(r, "uniformity", uniP, uniZ); err != nil {
			return nil, err
		}
		if err := m.applyCorrection(r, "association", assocP, assocZ); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// applyCorrection appends corrected p and z maps for one test family
func (m *MKDAChi2) applyCorrection(r *results.MetaResult, desc string, p, z []float64) error {
	var adj []float64
	var suffix string
	switch m.Corr {
	case ChiSquareCorrFDR:
		var err error
		adj, err = stats.AdjustFDR(p, stats.FDRIndep)
		if err != nil {
			return fmt.Errorf("%s: adjusting %s p-values: %w", m.Name(), desc, err)
		}
		suffix = fmt.Sprintf("_corr-FDR_q-%v_method-indep", m.Q)
	case ChiSquareCorrFWE:
		adj = make([]float64, len(p))
		n := float64(len(p))
		for v := range p {
			adj[v] = math.Min(p[v]*n, 1)
		}
		suffix = "_corr-FWE_method-bonferroni"
	}

	zAdj := make([]float64, len(adj))
	for v := range adj {
		zAdj[v] = stats.PToZ(adj[v], stats.TwoTailed) * signOf(z[v])
	}
	r.Set("p_desc-"+desc+suffix, adj)
	r.Set("z_desc-"+desc+suffix, zAdj)
	return nil
}
