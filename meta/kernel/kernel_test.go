package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurometa/gocbma/dataset"
	"github.com/neurometa/gocbma/imaging"
)

func testMask() *imaging.Mask {
	aff := imaging.ScalingAffine(2, 2, 2, [3]float64{-20, -20, -20})
	return imaging.NewBoxMask([3]int{21, 21, 21}, aff)
}

func centerExperiment(n int) *dataset.Experiment {
	return &dataset.Experiment{ID: "s-1", SampleSize: n, IJK: [][3]int{{10, 10, 10}}}
}

func TestALEKernelPeakAtFocus(t *testing.T) {
	mask := testMask()
	k := NewALEKernel()
	ma := k.MA(mask, centerExperiment(30))

	peakIdx := 0
	for i, v := range ma {
		if v > ma[peakIdx] {
			peakIdx = i
		}
	}
	assert.Equal(t, mask.MaskedIndex(10, 10, 10), peakIdx)

	for _, v := range ma {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestALEKernelNarrowsWithSampleSize(t *testing.T) {
	mask := testMask()
	k := NewALEKernel()

	maSmall := k.MA(mask, centerExperiment(10))
	maLarge := k.MA(mask, centerExperiment(200))

	center := mask.MaskedIndex(10, 10, 10)
	// Narrower kernel concentrates more mass at the peak
	assert.Greater(t, maLarge[center], maSmall[center])
}

func TestALEKernelUnionRuleBounds(t *testing.T) {
	mask := testMask()
	k := NewALEKernel()

	// Two coincident foci: union, not summation
	exp := &dataset.Experiment{
		ID:         "s-1",
		SampleSize: 30,
		IJK:        [][3]int{{10, 10, 10}, {10, 10, 10}},
	}
	maDouble := k.MA(mask, exp)
	maSingle := k.MA(mask, centerExperiment(30))

	center := mask.MaskedIndex(10, 10, 10)
	p := maSingle[center]
	assert.InDelta(t, 1-(1-p)*(1-p), maDouble[center], 1e-12)
	assert.Less(t, maDouble[center], 2*p)
	assert.LessOrEqual(t, maDouble[center], k.MaxValue(mask, exp))
}

func TestALEKernelFixedFWHM(t *testing.T) {
	mask := testMask()
	k := NewALEKernelWithFWHM(12)

	// Sample size must not matter once FWHM is fixed
	a := k.MA(mask, centerExperiment(10))
	b := k.MA(mask, centerExperiment(500))
	assert.Equal(t, a, b)
}

func TestEmptyExperimentIsAllZero(t *testing.T) {
	mask := testMask()
	empty := &dataset.Experiment{ID: "s-1", SampleSize: 30}

	for _, tr := range []Transformer{NewALEKernel(), NewMKDAKernel(), NewKDAKernel()} {
		ma := tr.MA(mask, empty)
		require.Len(t, ma, mask.NumVoxels())
		for _, v := range ma {
			assert.Equal(t, 0.0, v, tr.Name())
		}
		assert.Equal(t, 0.0, tr.MaxValue(mask, empty), tr.Name())
	}
}

func TestMKDAKernelCoversFocus(t *testing.T) {
	mask := testMask()
	for _, radius := range []float64{0.5, 2, 10} {
		k := NewMKDAKernelWithRadius(radius)
		ma := k.MA(mask, centerExperiment(30))
		assert.Equal(t, 1.0, ma[mask.MaskedIndex(10, 10, 10)], "radius %v", radius)
	}
}

func TestMKDAKernelIsBinary(t *testing.T) {
	mask := testMask()
	k := NewMKDAKernel()
	exp := &dataset.Experiment{
		ID:         "s-1",
		SampleSize: 30,
		IJK:        [][3]int{{10, 10, 10}, {11, 10, 10}},
	}
	ma := k.MA(mask, exp)
	for _, v := range ma {
		assert.True(t, v == 0 || v == 1)
	}
}

func TestKDAKernelCounts(t *testing.T) {
	mask := testMask()
	k := NewKDAKernel()
	exp := &dataset.Experiment{
		ID:         "s-1",
		SampleSize: 30,
		IJK:        [][3]int{{10, 10, 10}, {11, 10, 10}},
	}
	ma := k.MA(mask, exp)

	// The midpoint is inside both spheres
	assert.Equal(t, 2.0, ma[mask.MaskedIndex(10, 10, 10)])
	assert.Equal(t, 2.0, k.MaxValue(mask, exp))
}

func TestSphereRespectsMaskBounds(t *testing.T) {
	aff := imaging.ScalingAffine(2, 2, 2, [3]float64{0, 0, 0})
	mask := imaging.NewBoxMask([3]int{5, 5, 5}, aff)
	k := NewMKDAKernel()

	// Focus at the corner: sphere clipped, no panic, values stay in mask
	exp := &dataset.Experiment{ID: "s-1", IJK: [][3]int{{0, 0, 0}}}
	ma := k.MA(mask, exp)
	assert.Equal(t, 1.0, ma[mask.MaskedIndex(0, 0, 0)])
}

func TestFullMA(t *testing.T) {
	mask := testMask()
	k := NewMKDAKernel()
	vol, err := FullMA(k, mask, centerExperiment(30))
	require.NoError(t, err)
	assert.Len(t, vol, mask.Size())
	assert.Equal(t, 1.0, vol[mask.Linear(10, 10, 10)])
}
