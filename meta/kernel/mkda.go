package kernel

import (
	"sync"

	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
)

// DefaultSphereRadius is the conventional 10mm smoothing sphere used by the
// density estimators
const DefaultSphereRadius = 10.0

// sphereOffsets enumerates voxel offsets within radius r mm of the center,
// given the grid's voxel sizes. The center voxel is always included for any
// positive radius.
func sphereOffsets(mask *imaging.Mask, r float64) [][3]int {
	dx, dy, dz := mask.Affine().VoxelSizes()
	hx := int(r / dx)
	hy := int(r / dy)
	hz := int(r / dz)
	var out [][3]int
	for ck := -hz; ck <= hz; ck++ {
		for cj := -hy; cj <= hy; cj++ {
			for ci := -hx; ci <= hx; ci++ {
				px := float64(ci) * dx
				py := float64(cj) * dy
				pz := float64(ck) * dz
				if px*px+py*py+pz*pz <= r*r {
					out = append(out, [3]int{ci, cj, ck})
				}
			}
		}
	}
	return out
}

type sphereCache struct {
	mu      sync.Mutex
	radius  float64
	offsets [][3]int
	sizes   [3]float64
}

func (s *sphereCache) get(mask *imaging.Mask, r float64) [][3]int {
	dx, dy, dz := mask.Affine().VoxelSizes()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offsets == nil || s.radius != r || s.sizes != [3]float64{dx, dy, dz} {
		s.offsets = sphereOffsets(mask, r)
		s.radius = r
		s.sizes = [3]float64{dx, dy, dz}
	}
	return s.offsets
}

// MKDAKernel places a binary sphere of fixed radius at each focus; the
// experiment's MA value at a voxel is 1 when any focus lies within the
// radius, else 0. The radius does not depend on sample size.
//
// References:
//   - Wager, T.D., Lindquist, M., Kaplan, L. (2007). "Meta-analysis of
//     functional neuroimaging data: current and future directions."
//     Social Cognitive and Affective Neuroscience, 2(2), 150-158
type MKDAKernel struct {
	Radius float64 `json:"radius"` // mm

	cache sphereCache
}

// NewMKDAKernel creates an MKDA kernel with the default 10mm radius
func NewMKDAKernel() *MKDAKernel { return &MKDAKernel{Radius: DefaultSphereRadius} }

// NewMKDAKernelWithRadius creates an MKDA kernel with a custom radius in mm
func NewMKDAKernelWithRadius(r float64) *MKDAKernel { return &MKDAKernel{Radius: r} }

func (k *MKDAKernel) Name() string { return "MKDAKernel" }

func (k *MKDAKernel) MA(mask *imaging.Mask, exp *dataset.Experiment) []float64 {
	ma := make([]float64, mask.NumVoxels())
	if exp == nil {
		return ma
	}
	offsets := k.cache.get(mask, k.Radius)
	for _, f := range exp.IJK {
		for _, off := range offsets {
			vi := mask.MaskedIndex(f[0]+off[0], f[1]+off[1], f[2]+off[2])
			if vi >= 0 {
				ma[vi] = 1
			}
		}
	}
	return ma
}

func (k *MKDAKernel) MaxValue(mask *imaging.Mask, exp *dataset.Experiment) float64 {
	if exp == nil || len(exp.IJK) == 0 {
		return 0
	}
	return 1
}

// KDAKernel places a binary sphere at each focus like MKDA but sums the
// per-focus contributions instead of clipping, so a voxel near several foci
// of the same experiment counts each of them.
type KDAKernel struct {
	Radius float64 `json:"radius"` // mm

	cache sphereCache
}

// NewKDAKernel creates a KDA kernel with the default 10mm radius
func NewKDAKernel() *KDAKernel { return &KDAKernel{Radius: DefaultSphereRadius} }

// NewKDAKernelWithRadius creates a KDA kernel with a custom radius in mm
func NewKDAKernelWithRadius(r float64) *KDAKernel { return &KDAKernel{Radius: r} }

func (k *KDAKernel) Name() string { return "KDAKernel" }

func (k *KDAKernel) MA(mask *imaging.Mask, exp *dataset.Experiment) []float64 {
	ma := make([]float64, mask.NumVoxels())
	if exp == nil {
		return ma
	}
	offsets := k.cache.get(mask, k.Radius)
	for _, f := range exp.IJK {
		for _, off := range offsets {
			vi := mask.MaskedIndex(f[0]+off[0], f[1]+off[1], f[2]+off[2])
			if vi >= 0 {
				ma[vi]++
			}
		}
	}
	return ma
}

func (k *KDAKernel) MaxValue(mask *imaging.Mask, exp *dataset.Experiment) float64 {
	if exp == nil {
		return 0
	}
	return float64(len(exp.IJK))
}
