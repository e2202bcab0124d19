package imaging

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Affine is a 4x4 voxel-index-to-world-coordinate transform in homogeneous
// form, with a precomputed inverse for the world-to-voxel direction.
type Affine struct {
	fwd *mat.Dense
	inv *mat.Dense
}

// NewAffine builds an affine from row-major 4x4 entries. The last row is
// expected to be [0 0 0 1]; the matrix must be invertible.
func NewAffine(rows [4][4]float64) (*Affine, error) {
	flat := make([]float64, 16)
	for r := 0; r < 4; r++ {
		copy(flat[r*4:(r+1)*4], rows[r][:])
	}
	fwd := mat.NewDense(4, 4, flat)

	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return nil, fmt.Errorf("affine is not invertible: %w", err)
	}
	return &Affine{fwd: fwd, inv: &inv}, nil
}

// ScalingAffine builds a diagonal affine with the given voxel sizes (mm) and
// world-space origin. Convenient for synthetic masks and tests.
func ScalingAffine(sx, sy, sz float64, origin [3]float64) *Affine {
	a, err := NewAffine([4][4]float64{
		{sx, 0, 0, origin[0]},
		{0, sy, 0, origin[1]},
		{0, 0, sz, origin[2]},
		{0, 0, 0, 1},
	})
	if err != nil {
		// Zero voxel sizes only; caller bug.
		panic(err)
	}
	return a
}

// VoxToMM converts a voxel index to world coordinates (mm)
func (a *Affine) VoxToMM(i, j, k int) (float64, float64, float64) {
	x := a.fwd.At(0, 0)*float64(i) + a.fwd.At(0, 1)*float64(j) + a.fwd.At(0, 2)*float64(k) + a.fwd.At(0, 3)
	y := a.fwd.At(1, 0)*float64(i) + a.fwd.At(1, 1)*float64(j) + a.fwd.At(1, 2)*float64(k) + a.fwd.At(1, 3)
	z := a.fwd.At(2, 0)*float64(i) + a.fwd.At(2, 1)*float64(j) + a.fwd.At(2, 2)*float64(k) + a.fwd.At(2, 3)
	return x, y, z
}

// MMToVox converts world coordinates (mm) to the nearest voxel index.
// Halfway values round away from zero so that symmetric coordinates map to
// symmetric voxels.
func (a *Affine) MMToVox(x, y, z float64) (int, int, int) {
	i := a.inv.At(0, 0)*x + a.inv.At(0, 1)*y + a.inv.At(0, 2)*z + a.inv.At(0, 3)
	j := a.inv.At(1, 0)*x + a.inv.At(1, 1)*y + a.inv.At(1, 2)*z + a.inv.At(1, 3)
	k := a.inv.At(2, 0)*x + a.inv.At(2, 1)*y + a.inv.At(2, 2)*z + a.inv.At(2, 3)
	return int(math.Round(i)), int(math.Round(j)), int(math.Round(k))
}

// VoxelSizes returns the voxel edge lengths in mm along each axis, computed
// as the norms of the affine's spatial columns.
func (a *Affine) VoxelSizes() (float64, float64, float64) {
	norm := func(c int) float64 {
		return math.Sqrt(a.fwd.At(0, c)*a.fwd.At(0, c) +
			a.fwd.At(1, c)*a.fwd.At(1, c) +
			a.fwd.At(2, c)*a.fwd.At(2, c))
	}
	return norm(0), norm(1), norm(2)
}

// Equal reports whether two affines match entrywise within tol
func (a *Affine) Equal(b *Affine, tol float64) bool {
	if b == nil {
		return false
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(a.fwd.At(r, c)-b.fwd.At(r, c)) > tol {
				return false
			}
		}
	}
	return true
}
