package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurometa/gocbma/imaging"
)

func testMask() *imaging.Mask {
	aff := imaging.ScalingAffine(2, 2, 2, [3]float64{-10, -10, -10})
	return imaging.NewBoxMask([3]int{11, 11, 11}, aff)
}

func TestNewCollectionFlattensContrasts(t *testing.T) {
	studies := []Study{
		{
			ID: "study1",
			Contrasts: []Contrast{
				{ID: "1", SampleSize: 20, Foci: []Focus{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}}},
				{ID: "2", SampleSize: 15, Foci: []Focus{{X: -2, Y: -2, Z: -2}}},
			},
		},
		{
			ID:        "study2",
			Contrasts: []Contrast{{ID: "1", SampleSize: 30, Foci: []Focus{{X: 4, Y: 4, Z: 4}}}},
		},
	}

	c, err := NewCollection(studies, testMask(), imaging.SpaceMNI)
	require.NoError(t, err)

	require.Equal(t, 3, c.NumExperiments())
	assert.Equal(t, "study1-1", c.Experiments()[0].ID)
	assert.Equal(t, "study1-2", c.Experiments()[1].ID)
	assert.Equal(t, "study2-1", c.Experiments()[2].ID)
	assert.Equal(t, 4, c.TotalFoci())
	assert.True(t, c.HasFoci())

	// (0,0,0)mm with origin -10 and 2mm voxels is voxel (5,5,5)
	assert.Equal(t, [3]int{5, 5, 5}, c.Experiments()[0].IJK[0])
}

func TestNewCollectionDropsOutOfMaskFoci(t *testing.T) {
	studies := []Study{
		{
			ID: "s",
			Contrasts: []Contrast{{
				ID:         "1",
				SampleSize: 10,
				Foci:       []Focus{{X: 0, Y: 0, Z: 0}, {X: 500, Y: 500, Z: 500}},
			}},
		},
	}

	c, err := NewCollection(studies, testMask(), imaging.SpaceMNI)
	require.NoError(t, err)

	exp := c.Experiments()[0]
	assert.Equal(t, 1, exp.NumFoci())
	assert.Equal(t, 1, exp.Dropped)
}

func TestNewCollectionKeepsEmptyExperiments(t *testing.T) {
	studies := []Study{
		{ID: "empty", Contrasts: []Contrast{{ID: "1", SampleSize: 12}}},
	}

	c, err := NewCollection(studies, testMask(), imaging.SpaceMNI)
	require.NoError(t, err)
	require.Equal(t, 1, c.NumExperiments())
	assert.Equal(t, 0, c.Experiments()[0].NumFoci())
	assert.False(t, c.HasFoci())
}

func TestNewCollectionConvertsSpaces(t *testing.T) {
	talFocus := imaging.MNIToTal([3]float64{4, 4, 4})
	studies := []Study{
		{
			ID: "tal",
			Contrasts: []Contrast{{
				ID:    "1",
				Space: imaging.SpaceTalairach,
				Foci:  []Focus{{X: talFocus[0], Y: talFocus[1], Z: talFocus[2]}},
			}},
		},
	}

	c, err := NewCollection(studies, testMask(), imaging.SpaceMNI)
	require.NoError(t, err)
	require.Equal(t, 1, c.Experiments()[0].NumFoci())
	// Converted back to MNI (4,4,4)mm -> voxel (7,7,7)
	assert.Equal(t, [3]int{7, 7, 7}, c.Experiments()[0].IJK[0])
}

func TestNewCollectionRequiresMask(t *testing.T) {
	_, err := NewCollection(nil, nil, imaging.SpaceMNI)
	assert.Error(t, err)
}
