package imaging

import (
	"fmt"
	"math/rand"
)

// Mask is a 3D boolean brain mask aligned to a voxel grid. It defines the
// set of valid voxels for an analysis and owns the voxel-to-world affine.
// Dense full-volume arrays use linear index i + nx*(j + ny*k); most of the
// engine works on "masked vectors" holding only in-mask voxels in linear
// index order.
type Mask struct {
	nx, ny, nz int
	affine     *Affine
	data       []bool
	inMask     []int   // linear indices of in-mask voxels, ascending
	maskedIdx  []int32 // full-length; position in the masked vector, -1 outside
}

// NewMask builds a mask from a flat boolean grid of the given shape
func NewMask(shape [3]int, data []bool, affine *Affine) (*Mask, error) {
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, fmt.Errorf("mask shape must be positive, got %v", shape)
	}
	size := shape[0] * shape[1] * shape[2]
	if len(data) != size {
		return nil, fmt.Errorf("mask data length %d does not match shape %v (%d voxels)", len(data), shape, size)
	}
	if affine == nil {
		return nil, fmt.Errorf("mask requires an affine")
	}

	m := &Mask{
		nx:        shape[0],
		ny:        shape[1],
		nz:        shape[2],
		affine:    affine,
		data:      data,
		maskedIdx: make([]int32, size),
	}
	for lin, in := range data {
		if in {
			m.maskedIdx[lin] = int32(len(m.inMask))
			m.inMask = append(m.inMask, lin)
		} else {
			m.maskedIdx[lin] = -1
		}
	}
	if len(m.inMask) == 0 {
		return nil, fmt.Errorf("mask contains no valid voxels")
	}
	return m, nil
}

// NewBoxMask builds an all-true mask, useful for tests
func NewBoxMask(shape [3]int, affine *Affine) *Mask {
	data := make([]bool, shape[0]*shape[1]*shape[2])
	for i := range data {
		data[i] = true
	}
	m, err := NewMask(shape, data, affine)
	if err != nil {
		panic(err)
	}
	return m
}

// NewEllipsoidMask builds a pseudo-brain mask: the ellipsoid inscribed in the
// grid. Used by the simulation utilities as a stand-in for a template mask.
func NewEllipsoidMask(shape [3]int, affine *Affine) *Mask {
	data := make([]bool, shape[0]*shape[1]*shape[2])
	cx := float64(shape[0]-1) / 2
	cy := float64(shape[1]-1) / 2
	cz := float64(shape[2]-1) / 2
	rx := (float64(shape[0]) / 2) + 0.5
	ry := (float64(shape[1]) / 2) + 0.5
	rz := (float64(shape[2]) / 2) + 0.5
	for k := 0; k < shape[2]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[0]; i++ {
				dx := (float64(i) - cx) / rx
				dy := (float64(j) - cy) / ry
				dz := (float64(k) - cz) / rz
				data[i+shape[0]*(j+shape[1]*k)] = dx*dx+dy*dy+dz*dz <= 1.0
			}
		}
	}
	m, err := NewMask(shape, data, affine)
	if err != nil {
		panic(err)
	}
	return m
}

// Shape returns the grid dimensions
func (m *Mask) Shape() [3]int { return [3]int{m.nx, m.ny, m.nz} }

// Affine returns the voxel-to-world transform
func (m *Mask) Affine() *Affine { return m.affine }

// Size returns the full grid voxel count
func (m *Mask) Size() int { return m.nx * m.ny * m.nz }

// NumVoxels returns the in-mask voxel count, i.e. the masked vector length
func (m *Mask) NumVoxels() int { return len(m.inMask) }

// Linear converts voxel subscripts to a full-volume linear index
func (m *Mask) Linear(i, j, k int) int { return i + m.nx*(j+m.ny*k) }

// Coords converts a full-volume linear index back to voxel subscripts
func (m *Mask) Coords(lin int) (int, int, int) {
	i := lin % m.nx
	rest := lin / m.nx
	return i, rest % m.ny, rest / m.ny
}

// InBounds reports whether subscripts fall inside the grid
func (m *Mask) InBounds(i, j, k int) bool {
	return i >= 0 && i < m.nx && j >= 0 && j < m.ny && k >= 0 && k < m.nz
}

// Contains reports whether subscripts name a valid in-mask voxel
func (m *Mask) Contains(i, j, k int) bool {
	return m.InBounds(i, j, k) && m.data[m.Linear(i, j, k)]
}

// MaskedIndex returns the masked-vector position of a voxel, or -1 when the
// voxel is out of bounds or outside the mask
func (m *Mask) MaskedIndex(i, j, k int) int {
	if !m.InBounds(i, j, k) {
		return -1
	}
	return int(m.maskedIdx[m.Linear(i, j, k)])
}

// InMaskLinear returns the ascending full-volume linear indices of in-mask
// voxels. The returned slice is shared; callers must not modify it.
func (m *Mask) InMaskLinear() []int { return m.inMask }

// Apply reduces a dense full-volume array to a masked vector
func (m *Mask) Apply(vol []float64) ([]float64, error) {
	if len(vol) != m.Size() {
		return nil, fmt.Errorf("volume length %d does not match grid size %d", len(vol), m.Size())
	}
	out := make([]float64, len(m.inMask))
	for vi, lin := range m.inMask {
		out[vi] = vol[lin]
	}
	return out, nil
}

// Unmask expands a masked vector into a dense full-volume array with zeros
// outside the mask
func (m *Mask) Unmask(vec []float64) ([]float64, error) {
	if len(vec) != len(m.inMask) {
		return nil, fmt.Errorf("masked vector length %d does not match mask voxel count %d", len(vec), len(m.inMask))
	}
	out := make([]float64, m.Size())
	for vi, lin := range m.inMask {
		out[lin] = vec[vi]
	}
	return out, nil
}

// SampleVoxels draws n in-mask voxels uniformly with replacement
func (m *Mask) SampleVoxels(rng *rand.Rand, n int) [][3]int {
	out := make([][3]int, n)
	for s := range out {
		lin := m.inMask[rng.Intn(len(m.inMask))]
		i, j, k := m.Coords(lin)
		out[s] = [3]int{i, j, k}
	}
	return out
}

// SameGrid reports whether two masks share shape and affine, i.e. whether
// masked vectors from one are meaningful on the other
func (m *Mask) SameGrid(other *Mask) bool {
	if other == nil {
		return false
	}
	return m.nx == other.nx && m.ny == other.ny && m.nz == other.nz &&
		m.affine.Equal(other.affine, 1e-6)
}
