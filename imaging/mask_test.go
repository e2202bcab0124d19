package imaging

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineRoundTrip(t *testing.T) {
	aff := ScalingAffine(2, 2, 2, [3]float64{-20, -24, -16})

	x, y, z := aff.VoxToMM(10, 12, 8)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
	assert.Equal(t, 0.0, z)

	i, j, k := aff.MMToVox(x, y, z)
	assert.Equal(t, 10, i)
	assert.Equal(t, 12, j)
	assert.Equal(t, 8, k)

	dx, dy, dz := aff.VoxelSizes()
	assert.InDelta(t, 2.0, dx, 1e-12)
	assert.InDelta(t, 2.0, dy, 1e-12)
	assert.InDelta(t, 2.0, dz, 1e-12)
}

func TestMMToVoxRoundsHalfAwayFromZero(t *testing.T) {
	aff := ScalingAffine(1, 1, 1, [3]float64{0, 0, 0})
	i, j, k := aff.MMToVox(2.5, -2.5, 0.0)
	assert.Equal(t, 3, i)
	assert.Equal(t, -3, j)
	assert.Equal(t, 0, k)
}

func TestSpaceConversionRoundTrip(t *testing.T) {
	p := [3]float64{32, -12, 44}
	back := TalToMNI(MNIToTal(p))
	for ax := 0; ax < 3; ax++ {
		assert.InDelta(t, p[ax], back[ax], 1e-9)
	}

	_, err := ConvertSpace(p, SpaceMNI, Space("SCANNER"))
	assert.Error(t, err)

	same, err := ConvertSpace(p, SpaceMNI, SpaceMNI)
	require.NoError(t, err)
	assert.Equal(t, p, same)
}

func TestMaskRoundTrip(t *testing.T) {
	aff := ScalingAffine(2, 2, 2, [3]float64{0, 0, 0})
	m := NewBoxMask([3]int{4, 3, 2}, aff)

	require.Equal(t, 24, m.NumVoxels())
	require.Equal(t, 24, m.Size())

	vol := make([]float64, m.Size())
	for i := range vol {
		vol[i] = float64(i)
	}
	vec, err := m.Apply(vol)
	require.NoError(t, err)
	back, err := m.Unmask(vec)
	require.NoError(t, err)
	assert.Equal(t, vol, back)
}

func TestMaskContainsAndIndexing(t *testing.T) {
	aff := ScalingAffine(1, 1, 1, [3]float64{0, 0, 0})
	m := NewEllipsoidMask([3]int{9, 9, 9}, aff)

	assert.True(t, m.Contains(4, 4, 4))
	assert.False(t, m.Contains(0, 0, 0))
	assert.False(t, m.Contains(-1, 4, 4))
	assert.Equal(t, -1, m.MaskedIndex(0, 0, 0))
	assert.GreaterOrEqual(t, m.MaskedIndex(4, 4, 4), 0)

	i, j, k := m.Coords(m.Linear(3, 5, 7))
	assert.Equal(t, [3]int{3, 5, 7}, [3]int{i, j, k})
}

func TestSampleVoxelsStaysInMask(t *testing.T) {
	aff := ScalingAffine(2, 2, 2, [3]float64{0, 0, 0})
	m := NewEllipsoidMask([3]int{11, 11, 11}, aff)
	rng := rand.New(rand.NewSource(7))

	for _, v := range m.SampleVoxels(rng, 500) {
		assert.True(t, m.Contains(v[0], v[1], v[2]))
	}
}

func TestSameGrid(t *testing.T) {
	aff := ScalingAffine(2, 2, 2, [3]float64{0, 0, 0})
	a := NewBoxMask([3]int{5, 5, 5}, aff)
	b := NewBoxMask([3]int{5, 5, 5}, aff)
	c := NewBoxMask([3]int{5, 5, 4}, aff)
	d := NewBoxMask([3]int{5, 5, 5}, ScalingAffine(1, 1, 1, [3]float64{0, 0, 0}))

	assert.True(t, a.SameGrid(b))
	assert.False(t, a.SameGrid(c))
	assert.False(t, a.SameGrid(d))
	assert.False(t, a.SameGrid(nil))
}
