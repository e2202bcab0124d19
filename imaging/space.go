package imaging

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Space names a stereotactic coordinate convention
type Space string

const (
	// SpaceMNI is ICBM/MNI space as used by templates other than SPM/FSL
	SpaceMNI Space = "MNI"
	// SpaceTalairach is Talairach-Tournoux space
	SpaceTalairach Space = "TAL"
)

// Lancaster icbm_other transform: maps MNI coordinates (normalized with
// templates other than SPM/FSL) to Talairach space. The inverse maps
// Talairach to MNI.
//
// References:
//   - Lancaster, J.L., et al. (2007). "Bias between MNI and Talairach
//     coordinates analyzed using the ICBM-152 brain template."
//     Human Brain Mapping, 28(11), 1194-1205
var lancasterICBMOther = mat.NewDense(4, 4, []float64{
	0.9357, 0.0029, -0.0072, -1.0423,
	-0.0065, 0.9396, -0.0726, -1.3940,
	0.0103, 0.0752, 0.8967, 3.6475,
	0.0000, 0.0000, 0.0000, 1.0000,
})

var lancasterICBMOtherInv = func() *mat.Dense {
	var inv mat.Dense
	if err := inv.Inverse(lancasterICBMOther); err != nil {
		panic(err)
	}
	return &inv
}()

func applyHomogeneous(m *mat.Dense, p [3]float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = m.At(r, 0)*p[0] + m.At(r, 1)*p[1] + m.At(r, 2)*p[2] + m.At(r, 3)
	}
	return out
}

// MNIToTal converts an MNI coordinate (mm) to Talairach space
func MNIToTal(p [3]float64) [3]float64 {
	return applyHomogeneous(lancasterICBMOther, p)
}

// TalToMNI converts a Talairach coordinate (mm) to MNI space
func TalToMNI(p [3]float64) [3]float64 {
	return applyHomogeneous(lancasterICBMOtherInv, p)
}

// ConvertSpace maps a coordinate between named stereotactic conventions.
// Identical from/to is a no-op.
func ConvertSpace(p [3]float64, from, to Space) ([3]float64, error) {
	if from == to {
		return p, nil
	}
	switch {
	case from == SpaceTalairach && to == SpaceMNI:
		return TalToMNI(p), nil
	case from == SpaceMNI && to == SpaceTalairach:
		return MNIToTal(p), nil
	default:
		return p, fmt.Errorf("unsupported space conversion: %s -> %s", from, to)
	}
}
