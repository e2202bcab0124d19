// Package meta declares the contracts shared between meta-analysis
// estimators and the correction layer.
package meta

import (
	"context"

	"github.com/neurometa/gocbma/imaging"
	"github.com/neurometa/gocbma/results"
)

// FWEMonteCarloOptions parametrizes permutation-based family-wise error
// correction.
type FWEMonteCarloOptions struct {
	// VoxelThresh is the uncorrected p threshold defining clusters
	VoxelThresh float64 `json:"voxel_thresh"`
	// NIters is the permutation count
	NIters int `json:"n_iters"`
	// NCores bounds parallel workers; 1 runs sequentially, <=0 uses all CPUs
	NCores int `json:"n_cores"`
	// Seed roots the deterministic per-iteration random streams
	Seed int64 `json:"seed"`
	// Connectivity selects cluster adjacency
	Connectivity imaging.Connectivity `json:"connectivity"`
}

// DefaultFWEMonteCarloOptions mirrors the conventional correction settings
func DefaultFWEMonteCarloOptions() FWEMonteCarloOptions {
	return FWEMonteCarloOptions{
		VoxelThresh:  0.001,
		NIters:       5000,
		NCores:       1,
		Connectivity: imaging.ConnFaces,
	}
}

// FWEMonteCarloCorrecter is the native correction capability a CBMA
// estimator can expose. A corrector that wants Monte Carlo FWE asserts the
// result's estimator against this interface instead of probing by name; the
// estimator reuses its fitted state (kernel, dataset, null distribution), so
// correction does not have to be reconstructed from p-values alone. Returned
// map names carry level/desc qualifiers but no correction suffix; the
// corrector appends it.
type FWEMonteCarloCorrecter interface {
	CorrectFWEMonteCarlo(ctx context.Context, r *results.MetaResult, opts FWEMonteCarloOptions) (map[string][]float64, error)
}
