// Package kernel implements the transformers that turn a study's sparse
// foci into a dense modeled-activation (MA) map aligned to the analysis
// mask. ALE uses sample-size-dependent Gaussians; MKDA and KDA use binary
// spheres of fixed radius.
package kernel

import (
	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
)

// Transformer converts one experiment's foci into a masked MA vector.
// Implementations only ever touch voxels near the experiment's foci; an
// experiment without in-mask foci yields an all-zero vector.
type Transformer interface {
	Name() string

	// MA returns the masked modeled-activation vector for one experiment
	MA(mask *imaging.Mask, exp *dataset.Experiment) []float64

	// MaxValue returns an upper bound on any single experiment's MA value,
	// used to size analytic null histograms
	MaxValue(mask *imaging.Mask, exp *dataset.Experiment) float64
}

// FullMA computes a dense full-volume MA map, mostly useful in tests
func FullMA(t Transformer, mask *imaging.Mask, exp *dataset.Experiment) ([]float64, error) {
	return mask.Unmask(t.MA(mask, exp))
}
