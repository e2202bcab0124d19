package stats

import (
	"fmt"
	"sort"
)

// FDRMethod selects the false discovery rate step-up procedure
type FDRMethod string

const (
	// FDRIndep is Benjamini-Hochberg, valid under independence or positive
	// dependence
	FDRIndep FDRMethod = "indep"
	// FDRNegCorr is Benjamini-Yekutieli, valid under arbitrary dependence
	FDRNegCorr FDRMethod = "negcorr"
)

// AdjustFDR returns FDR-adjusted p-values for the given procedure. A voxel
// is significant at rate q exactly when its adjusted p is <= q.
//
// References:
//   - Benjamini, Y., Hochberg, Y. (1995). "Controlling the false discovery
//     rate: a practical and powerful approach to multiple testing."
//     Journal of the Royal Statistical Society B, 57(1), 289-300
//   - Benjamini, Y., Yekutieli, D. (2001). "The control of the false
//     discovery rate in multiple testing under dependency."
//     Annals of Statistics, 29(4), 1165-1188
func AdjustFDR(p []float64, method FDRMethod) ([]float64, error) {
	n := len(p)
	if n == 0 {
		return nil, fmt.Errorf("empty p-value array")
	}

	scale := 1.0
	switch method {
	case FDRIndep:
	case FDRNegCorr:
		// Benjamini-Yekutieli penalty c(n) = sum_{i=1..n} 1/i
		scale = 0.0
		for i := 1; i <= n; i++ {
			scale += 1.0 / float64(i)
		}
	default:
		return nil, fmt.Errorf("unsupported FDR method %q: must be one of %q, %q", method, FDRIndep, FDRNegCorr)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

	adj := make([]float64, n)
	running := 1.0
	for rank := n; rank >= 1; rank-- {
		idx := order[rank-1]
		v := p[idx] * float64(n) / float64(rank) * scale
		if v < running {
			running = v
		}
		adj[idx] = running
	}
	return adj, nil
}
