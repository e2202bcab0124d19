package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogramBinning(t *testing.T) {
	h, err := HistogramFromValues([]float64{0, 0.05, 0.1, 0.1, 0.99}, 0.1, 1.0)
	require.NoError(t, err)

	assert.Equal(t, 11, len(h.Mass))
	assert.Equal(t, 2.0, h.Mass[0]) // 0 and 0.05
	assert.Equal(t, 2.0, h.Mass[1]) // both 0.1 values, despite float error
	assert.Equal(t, 1.0, h.Mass[9])
	assert.InDelta(t, 5.0, h.Total(), 1e-12)

	h.Normalize()
	assert.InDelta(t, 1.0, h.Total(), 1e-12)
}

func TestUnionFoldMatchesBruteForce(t *testing.T) {
	// Two two-point distributions: union statistic takes four values
	a, err := NewHistogram(0.001, 101)
	require.NoError(t, err)
	a.Add(0.0, 0.5)
	a.Add(0.1, 0.5)
	b, err := NewHistogram(0.001, 201)
	require.NoError(t, err)
	b.Add(0.0, 0.25)
	b.Add(0.2, 0.75)

	out, err := a.UnionFold(b)
	require.NoError(t, err)

	// 1-(1-0.1)(1-0.2) = 0.28
	assert.InDelta(t, 0.125, out.Mass[out.BinOf(0.0)], 1e-12)
	assert.InDelta(t, 0.375, out.Mass[out.BinOf(0.2)], 1e-12)
	assert.InDelta(t, 0.125, out.Mass[out.BinOf(0.1)], 1e-12)
	assert.InDelta(t, 0.375, out.Mass[out.BinOf(0.28)], 1e-12)
	assert.InDelta(t, 1.0, out.Total(), 1e-12)
}

func TestUnionFoldIsCommutative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a, _ := NewHistogram(0.0001, 300)
	b, _ := NewHistogram(0.0001, 500)
	for i := 0; i < 50; i++ {
		a.Add(rng.Float64()*0.03, rng.Float64())
		b.Add(rng.Float64()*0.05, rng.Float64())
	}

	ab, err := a.UnionFold(b)
	require.NoError(t, err)
	ba, err := b.UnionFold(a)
	require.NoError(t, err)

	require.Equal(t, len(ab.Mass), len(ba.Mass))
	for i := range ab.Mass {
		assert.InDelta(t, ab.Mass[i], ba.Mass[i], 1e-9)
	}
}

func TestConvolveDirect(t *testing.T) {
	a, _ := NewHistogram(1, 3)
	a.Mass = []float64{0.5, 0.5, 0}
	b, _ := NewHistogram(1, 3)
	b.Mass = []float64{0.25, 0, 0.75}

	out, err := a.Convolve(b)
	require.NoError(t, err)
	require.Equal(t, 5, len(out.Mass))
	assert.InDelta(t, 0.125, out.Mass[0], 1e-12)
	assert.InDelta(t, 0.125, out.Mass[1], 1e-12)
	assert.InDelta(t, 0.375, out.Mass[2], 1e-12)
	assert.InDelta(t, 0.375, out.Mass[3], 1e-12)
	assert.InDelta(t, 1.0, out.Total(), 1e-12)
}

func TestConvolveFFTMatchesDirect(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	size := fftConvolutionCutoff // forces the FFT path for the pair
	a, _ := NewHistogram(1, size)
	b, _ := NewHistogram(1, size)
	for i := range a.Mass {
		a.Mass[i] = rng.Float64()
		b.Mass[i] = rng.Float64()
	}

	viaFFT, err := a.Convolve(b)
	require.NoError(t, err)

	// Direct reference
	direct := make([]float64, 2*size-1)
	for ia, ma := range a.Mass {
		for ib, mb := range b.Mass {
			direct[ia+ib] += ma * mb
		}
	}

	require.Equal(t, len(direct), len(viaFFT.Mass))
	for i := range direct {
		assert.InDelta(t, direct[i], viaFFT.Mass[i], 1e-6)
	}
}

func TestTailProbabilitiesMonotone(t *testing.T) {
	h, _ := NewHistogram(0.01, 100)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 1000; i++ {
		h.Add(rng.Float64()*0.5, 1)
	}

	tail := h.TailProbabilities()
	assert.InDelta(t, 1.0, tail[0], 1e-12)
	for i := 1; i < len(tail); i++ {
		assert.LessOrEqual(t, tail[i], tail[i-1])
	}
}

func TestPValueFloorAndMonotonicity(t *testing.T) {
	h, _ := NewHistogram(0.01, 200)
	for i := 0; i < 100; i++ {
		h.Add(float64(i)*0.01, 1)
	}

	pLow := h.PValue(0.10, 1e-10)
	pHigh := h.PValue(0.90, 1e-10)
	assert.Greater(t, pLow, pHigh)

	// Beyond all observed mass the floor applies
	assert.Equal(t, 1e-10, h.PValue(1.99, 1e-10))
}

func TestValueAtTail(t *testing.T) {
	h, _ := NewHistogram(0.1, 5)
	h.Mass = []float64{0.4, 0.3, 0.2, 0.05, 0.05}

	// tails: 1.0, 0.6, 0.3, 0.1, 0.05
	assert.InDelta(t, 0.2, h.ValueAtTail(0.3), 1e-12)
	assert.InDelta(t, 0.3, h.ValueAtTail(0.25), 1e-12)
	assert.InDelta(t, 0.4, h.ValueAtTail(0.05), 1e-12)
	// No bin is extreme enough: threshold sits past the histogram
	assert.InDelta(t, 0.5, h.ValueAtTail(0.01), 1e-12)
}

func TestStepMismatch(t *testing.T) {
	a, _ := NewHistogram(0.1, 10)
	b, _ := NewHistogram(0.2, 10)
	_, err := a.UnionFold(b)
	assert.Error(t, err)
	_, err = a.Convolve(b)
	assert.Error(t, err)
}
