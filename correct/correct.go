// Package correct applies multiple-comparisons corrections to fitted
// meta-analysis results. Correctors never mutate their input: Transform
// returns a copy of the result extended with suffixed corrected maps. When
// the producing estimator natively implements a correction (permutation FWE),
// the corrector delegates to it so the estimator's fitted state is reused;
// otherwise a generic procedure runs on the uncorrected p map.
package correct

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/neurometa/gocbma/logging"
	"github.com/neurometa/gocbma/meta"
	"github.com/neurometa/gocbma/results"
	"github.com/neurometa/gocbma/stats"
)

// Corrector extends a fitted result with corrected statistical maps
type Corrector interface {
	Name() string
	Transform(ctx context.Context, r *results.MetaResult) (*results.MetaResult, error)
}

// FDRCorrector controls the false discovery rate of the uncorrected p map
type FDRCorrector struct {
	// Q is the acceptance level recorded in the output map names
	Q float64 `json:"q"`
	// Method selects the step-up procedure; indep (Benjamini-Hochberg) by
	// default
	Method stats.FDRMethod `json:"method"`
}

// NewFDRCorrector creates an FDR corrector with the conventional defaults
func NewFDRCorrector() *FDRCorrector {
	return &FDRCorrector{Q: 0.05, Method: stats.FDRIndep}
}

func (c *FDRCorrector) Name() string { return "FDRCorrector" }

// Transform appends FDR-adjusted p, z, and logp maps
func (c *FDRCorrector) Transform(ctx context.Context, r *results.MetaResult) (*results.MetaResult, error) {
	p := r.Get("p")
	if p == nil {
		return nil, fmt.Errorf("%s: result carries no p map; available: %v", c.Name(), r.Names())
	}

	adj, err := stats.AdjustFDR(p, c.Method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}

	suffix := fmt.Sprintf("_corr-FDR_q-%v_method-%s", c.Q, c.Method)
	out := r.Copy()
	registerFamily(out, "p"+suffix, "z"+suffix, "logp"+suffix, adj)

	logging.Debug("applied FDR correction", logging.Fields{
		"method": string(c.Method),
		"q":      c.Q,
	})
	return out, nil
}

// FWEMethod selects the family-wise error procedure
type FWEMethod string

const (
	// FWEMonteCarlo delegates to the estimator's native permutation
	// correction
	FWEMonteCarlo FWEMethod = "montecarlo"
	// FWEBonferroni applies the Bonferroni bound to the uncorrected p map
	FWEBonferroni FWEMethod = "bonferroni"
)

// FWECorrector controls the family-wise error rate. The montecarlo method
// requires the result's estimator to expose native permutation correction;
// bonferroni works on any result with an uncorrected p map.
type FWECorrector struct {
	Method FWEMethod `json:"method"`
	// Options parametrize the montecarlo method and are ignored by
	// bonferroni
	Options meta.FWEMonteCarloOptions `json:"options"`
}

// NewFWECorrector creates a Monte Carlo FWE corrector with the conventional
// defaults
func NewFWECorrector() *FWECorrector {
	return &FWECorrector{Method: FWEMonteCarlo, Options: meta.DefaultFWEMonteCarloOptions()}
}

func (c *FWECorrector) Name() string { return "FWECorrector" }

// Transform appends FWE-corrected maps under the selected method
func (c *FWECorrector) Transform(ctx context.Context, r *results.MetaResult) (*results.MetaResult, error) {
	switch c.Method {
	case FWEMonteCarlo:
		return c.transformMonteCarlo(ctx, r)
	case FWEBonferroni:
		return c.transformBonferroni(r)
	default:
		return nil, fmt.Errorf("%s: unsupported method %q: must be one of %q, %q",
			c.Name(), string(c.Method), FWEMonteCarlo, FWEBonferroni)
	}
}

func (c *FWECorrector) transformMonteCarlo(ctx context.Context, r *results.MetaResult) (*results.MetaResult, error) {
	native, ok := r.Estimator().(meta.FWEMonteCarloCorrecter)
	if !ok {
		return nil, fmt.Errorf("%s: estimator %T does not support Monte Carlo FWE correction", c.Name(), r.Estimator())
	}

	maps, err := native.CorrectFWEMonteCarlo(ctx, r, c.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}

	out := r.Copy()
	suffix := "_corr-FWE_method-montecarlo"
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Set(name+suffix, maps[name])
	}

	logging.Debug("applied Monte Carlo FWE correction", logging.Fields{
		"n_iters":      c.Options.NIters,
		"voxel_thresh": c.Options.VoxelThresh,
	})
	return out, nil
}

func (c *FWECorrector) transformBonferroni(r *results.MetaResult) (*results.MetaResult, error) {
	p := r.Get("p")
	if p == nil {
		return nil, fmt.Errorf("%s: result carries no p map; available: %v", c.Name(), r.Names())
	}

	adj := make([]float64, len(p))
	n := float64(len(p))
	for v := range p {
		adj[v] = math.Min(p[v]*n, 1)
	}

	suffix := "_corr-FWE_method-bonferroni"
	out := r.Copy()
	registerFamily(out, "p"+suffix, "z"+suffix, "logp"+suffix, adj)
	return out, nil
}

// registerFamily derives the z and logp companions of a corrected p map and
// registers all three
func registerFamily(r *results.MetaResult, pName, zName, logpName string, p []float64) {
	z := make([]float64, len(p))
	logp := make([]float64, len(p))
	for v, pv := range p {
		z[v] = stats.PToZ(pv, stats.OneTailed)
		logp[v] = -math.Log10(pv)
	}
	r.Set(pName, p)
	r.Set(zName, z)
	r.Set(logpName, logp)
}
