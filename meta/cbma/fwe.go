package cbma

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
	"github.com/neurometa/gocbma/meta"
	"github.com/neurometa/gocbma/stats"
)

// fweNullSample is one permutation's contribution to the FWE null: the
// whole-brain maximum statistic and the largest suprathreshold cluster by
// size and by mass
type fweNullSample struct {
	maxStat float64
	maxSize float64
	maxMass float64
}

// fweMonteCarloMaps runs the permutation-based FWE null shared by all
// density estimators. statThresh is the cluster-defining threshold on the
// statistic scale; computeStat rebuilds the statistic map for a permuted
// arrangement of experiments. Returned names carry no correction suffix.
func fweMonteCarloMaps(
	ctx context.Context,
	mask *imaging.Mask,
	exps []dataset.Experiment,
	stat []float64,
	statThresh float64,
	computeStat func(exps []dataset.Experiment) ([]float64, error),
	opts meta.FWEMonteCarloOptions,
) (map[string][]float64, error) {
	if opts.VoxelThresh <= 0 || opts.VoxelThresh >= 1 {
		return nil, fmt.Errorf("voxel threshold must be in (0, 1), got %g", opts.VoxelThresh)
	}
	conn := opts.Connectivity
	if conn == 0 {
		conn = imaging.ConnFaces
	}
	if _, err := conn.Offsets(); err != nil {
		return nil, err
	}

	samples, err := RunSeeded(ctx, opts.NIters, opts.NCores, opts.Seed, func(iter int, rng *rand.Rand) (fweNullSample, error) {
		permStat, err := computeStat(permuteExperiments(mask, exps, rng))
		if err != nil {
			return fweNullSample{}, err
		}
		var s fweNullSample
		for _, v := range permStat {
			if v > s.maxStat {
				s.maxStat = v
			}
		}
		cs, err := mask.LabelClusters(permStat, statThresh, conn)
		if err != nil {
			return fweNullSample{}, err
		}
		s.maxSize = float64(cs.MaxSize())
		s.maxMass = cs.MaxMass()
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	nullMax := make([]float64, len(samples))
	nullSize := make([]float64, len(samples))
	nullMass := make([]float64, len(samples))
	for i, s := range samples {
		nullMax[i] = s.maxStat
		nullSize[i] = s.maxSize
		nullMass[i] = s.maxMass
	}
	sort.Float64s(nullMax)
	sort.Float64s(nullSize)
	sort.Float64s(nullMass)

	nv := len(stat)
	pVox := make([]float64, nv)
	for v := range stat {
		pVox[v] = sortedTailP(nullMax, stat[v])
	}

	// Cluster-level p: every voxel of an observed suprathreshold cluster
	// gets the cluster's p against the null of maximum cluster extent;
	// voxels outside any cluster are fully non-significant.
	cs, err := mask.LabelClusters(stat, statThresh, conn)
	if err != nil {
		return nil, err
	}
	pSize := make([]float64, nv)
	pMass := make([]float64, nv)
	clusterPSize := make([]float64, cs.NumClusters()+1)
	clusterPMass := make([]float64, cs.NumClusters()+1)
	clusterPSize[0], clusterPMass[0] = 1, 1
	for c := 1; c <= cs.NumClusters(); c++ {
		clusterPSize[c] = sortedTailP(nullSize, float64(cs.Sizes[c-1]))
		clusterPMass[c] = sortedTailP(nullMass, cs.Masses[c-1])
	}
	for v := range pSize {
		pSize[v] = clusterPSize[cs.Labels[v]]
		pMass[v] = clusterPMass[cs.Labels[v]]
	}

	out := make(map[string][]float64, 9)
	addFWEFamily(out, "p_level-voxel", "z_level-voxel", "logp_level-voxel", pVox)
	addFWEFamily(out, "p_level-cluster", "z_level-cluster", "logp_level-cluster", pSize)
	addFWEFamily(out, "p_desc-mass_level-cluster", "z_desc-mass_level-cluster", "logp_desc-mass_level-cluster", pMass)
	return out, nil
}

func addFWEFamily(out map[string][]float64, pName, zName, logpName string, p []float64) {
	z := make([]float64, len(p))
	logp := make([]float64, len(p))
	for i, pv := range p {
		z[i] = stats.PToZ(pv, stats.OneTailed)
		logp[i] = -math.Log10(pv)
	}
	out[pName] = p
	out[zName] = z
	out[logpName] = logp
}
