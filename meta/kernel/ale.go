package kernel

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
)

// DefaultSampleSize substitutes for experiments that did not report a
// participant count
const DefaultSampleSize = 20

// ALEKernel places a 3D Gaussian at each focus. The kernel width encodes
// between-subject and between-template spatial uncertainty: larger samples
// localize activation better and get narrower kernels. Overlapping Gaussians
// from the same experiment combine under the probabilistic union rule
// 1 - prod(1 - p), keeping MA values in [0, 1].
//
// References:
//   - Eickhoff, S.B., et al. (2009). "Coordinate-based activation likelihood
//     estimation meta-analysis of neuroimaging data: a random-effects
//     approach based on empirical estimates of spatial uncertainty."
//     Human Brain Mapping, 30(9), 2907-2926
//   - Turkeltaub, P.E., et al. (2012). "Minimizing within-experiment and
//     within-group effects in activation likelihood estimation
//     meta-analyses." Human Brain Mapping, 33(1), 1-13
type ALEKernel struct {
	// FWHM, when positive, fixes the kernel width in mm and ignores sample
	// sizes
	FWHM float64 `json:"fwhm"`

	mu    sync.Mutex
	cache map[cubeKey]*cube
}

type cubeKey struct {
	sampleSize int
	dx, dy, dz float64
}

// cube is a dense kernel evaluated on the voxel grid, centered at index
// (hx, hy, hz)
type cube struct {
	hx, hy, hz int
	vals       []float64 // (2hx+1)*(2hy+1)*(2hz+1), x fastest
	peak       float64
}

// NewALEKernel creates the standard sample-size-dependent ALE kernel
func NewALEKernel() *ALEKernel {
	return &ALEKernel{cache: make(map[cubeKey]*cube)}
}

// NewALEKernelWithFWHM creates an ALE kernel with a fixed FWHM in mm
func NewALEKernelWithFWHM(fwhm float64) *ALEKernel {
	return &ALEKernel{FWHM: fwhm, cache: make(map[cubeKey]*cube)}
}

func (k *ALEKernel) Name() string { return "ALEKernel" }

// fwhmForSampleSize applies the Eickhoff empirical uncertainty model:
// between-template uncertainty of 5.7mm and between-subject uncertainty of
// 11.6mm shrinking with the square root of the sample size.
func (k *ALEKernel) fwhmForSampleSize(n int) float64 {
	if k.FWHM > 0 {
		return k.FWHM
	}
	if n <= 0 {
		n = DefaultSampleSize
	}
	scale := math.Sqrt(8*math.Ln2) / (2 * math.Sqrt(2/math.Pi))
	uncertainTemplates := 5.7 * scale
	uncertainSubjects := 11.6 * scale / math.Sqrt(float64(n))
	return math.Sqrt(uncertainTemplates*uncertainTemplates + uncertainSubjects*uncertainSubjects)
}

func (k *ALEKernel) kernelFor(mask *imaging.Mask, sampleSize int) *cube {
	dx, dy, dz := mask.Affine().VoxelSizes()
	key := cubeKey{sampleSize: sampleSize, dx: dx, dy: dy, dz: dz}
	if k.FWHM > 0 {
		key.sampleSize = -1
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if c, ok := k.cache[key]; ok {
		return c
	}

	fwhm := k.fwhmForSampleSize(sampleSize)
	sigma := fwhm / math.Sqrt(8*math.Ln2) // mm
	sx, sy, sz := sigma/dx, sigma/dy, sigma/dz

	halfWidth := func(s float64) int {
		h := int(math.Ceil(3 * s))
		if h < 1 {
			h = 1
		}
		return h
	}
	c := &cube{hx: halfWidth(sx), hy: halfWidth(sy), hz: halfWidth(sz)}
	nx := 2*c.hx + 1
	ny := 2*c.hy + 1
	nz := 2*c.hz + 1
	c.vals = make([]float64, nx*ny*nz)

	idx := 0
	for ck := -c.hz; ck <= c.hz; ck++ {
		for cj := -c.hy; cj <= c.hy; cj++ {
			for ci := -c.hx; ci <= c.hx; ci++ {
				ex := float64(ci) * float64(ci) / (2 * sx * sx)
				ey := float64(cj) * float64(cj) / (2 * sy * sy)
				ez := float64(ck) * float64(ck) / (2 * sz * sz)
				c.vals[idx] = math.Exp(-(ex + ey + ez))
				idx++
			}
		}
	}
	// Normalize to unit mass so MA values are probabilities of a single
	// focus being "truly located" at each voxel
	floats.Scale(1/floats.Sum(c.vals), c.vals)
	c.peak = floats.Max(c.vals)

	k.cache[key] = c
	return c
}

// MA computes the experiment's modeled-activation vector
func (k *ALEKernel) MA(mask *imaging.Mask, exp *dataset.Experiment) []float64 {
	ma := make([]float64, mask.NumVoxels())
	if exp == nil || len(exp.IJK) == 0 {
		return ma
	}
	c := k.kernelFor(mask, exp.SampleSize)

	for _, f := range exp.IJK {
		idx := 0
		for ck := -c.hz; ck <= c.hz; ck++ {
			for cj := -c.hy; cj <= c.hy; cj++ {
				for ci := -c.hx; ci <= c.hx; ci++ {
					w := c.vals[idx]
					idx++
					vi := mask.MaskedIndex(f[0]+ci, f[1]+cj, f[2]+ck)
					if vi < 0 || w == 0 {
						continue
					}
					// Union rule across same-experiment foci
					ma[vi] = 1 - (1-ma[vi])*(1-w)
				}
			}
		}
	}
	return ma
}

// MaxValue bounds the experiment's peak MA value: all foci stacked on one
// voxel under the union rule
func (k *ALEKernel) MaxValue(mask *imaging.Mask, exp *dataset.Experiment) float64 {
	if exp == nil || len(exp.IJK) == 0 {
		return 0
	}
	peak := k.kernelFor(mask, exp.SampleSize).peak
	return 1 - math.Pow(1-peak, float64(len(exp.IJK)))
}
