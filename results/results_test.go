package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurometa/gocbma/imaging"
)

func testMask() *imaging.Mask {
	aff := imaging.ScalingAffine(2, 2, 2, [3]float64{0, 0, 0})
	return imaging.NewBoxMask([3]int{3, 3, 3}, aff)
}

func TestSetGetOrder(t *testing.T) {
	r := New(nil, testMask())
	r.Set("ale", make([]float64, 27))
	r.Set("p", make([]float64, 27))
	r.Set("z", make([]float64, 27))

	assert.Equal(t, []string{"ale", "p", "z"}, r.Names())
	assert.True(t, r.Has("p"))
	assert.Nil(t, r.Get("missing"))

	// Replacing keeps order
	r.Set("p", make([]float64, 27))
	assert.Equal(t, []string{"ale", "p", "z"}, r.Names())
}

func TestCopyIsIndependent(t *testing.T) {
	r := New(nil, testMask())
	orig := []float64{1, 2, 3}
	r.Set("p", orig)

	cp := r.Copy()
	cp.Set("p_corr", []float64{4, 5, 6})
	cp.Set("p", []float64{9, 9, 9})

	assert.False(t, r.Has("p_corr"))
	assert.Equal(t, orig, r.Get("p"))
	assert.Equal(t, []string{"p"}, r.Names())
	assert.Equal(t, []string{"p", "p_corr"}, cp.Names())
}

func TestVolume(t *testing.T) {
	m := testMask()
	r := New(nil, m)
	vec := make([]float64, m.NumVoxels())
	vec[m.MaskedIndex(1, 1, 1)] = 7
	r.Set("stat", vec)

	vol, err := r.Volume("stat")
	require.NoError(t, err)
	assert.Equal(t, 7.0, vol[m.Linear(1, 1, 1)])

	_, err = r.Volume("nope")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	m := testMask()
	r := New(nil, m)
	vec := make([]float64, m.NumVoxels())
	for i := range vec {
		vec[i] = float64(i)
	}
	r.Set("stat", vec)

	s, err := r.Describe("stat")
	require.NoError(t, err)
	assert.Equal(t, 27, s.N)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 26.0, s.Max)
	assert.InDelta(t, 13.0, s.Mean, 1e-9)

	_, err = r.Describe("nope")
	assert.Error(t, err)
}
