package stats

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// fftConvolutionCutoff is the output length above which histogram
// convolution switches from the direct O(n*m) loop to FFT
const fftConvolutionCutoff = 4096

// Histogram is a fixed-step mass distribution over achievable statistic
// values. Bin i covers values rounding down to i*Step; Mass need not be
// normalized until Normalize is called. Used to build analytic null
// distributions by combining per-study single-voxel value distributions.
type Histogram struct {
	Step float64
	Mass []float64
}

// NewHistogram allocates an empty histogram with the given bin width and count
func NewHistogram(step float64, bins int) (*Histogram, error) {
	if step <= 0 {
		return nil, fmt.Errorf("histogram step must be positive, got %g", step)
	}
	if bins <= 0 {
		return nil, fmt.Errorf("histogram must have at least one bin")
	}
	return &Histogram{Step: step, Mass: make([]float64, bins)}, nil
}

// HistogramFromValues bins raw values at the given step. maxValue fixes the
// bin count so that histograms from different studies share an axis.
func HistogramFromValues(values []float64, step, maxValue float64) (*Histogram, error) {
	h, err := NewHistogram(step, int(math.Floor(maxValue/step))+1)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		h.Add(v, 1)
	}
	return h, nil
}

// BinOf maps a value to its bin index, clipped to the allocated range
func (h *Histogram) BinOf(v float64) int {
	// Small forward nudge so values sitting exactly on a bin edge do not
	// fall to the lower bin through floating-point error.
	idx := int(math.Floor(v/h.Step + 1e-9))
	if idx < 0 {
		return 0
	}
	if idx >= len(h.Mass) {
		return len(h.Mass) - 1
	}
	return idx
}

// Value returns the representative statistic value of bin i
func (h *Histogram) Value(i int) float64 { return float64(i) * h.Step }

// Add accumulates mass at the bin containing v
func (h *Histogram) Add(v, mass float64) { h.Mass[h.BinOf(v)] += mass }

// Total returns the summed mass
func (h *Histogram) Total() float64 { return floats.Sum(h.Mass) }

// Normalize scales the mass to sum to one. A zero histogram is left alone.
func (h *Histogram) Normalize() {
	total := h.Total()
	if total > 0 {
		floats.Scale(1/total, h.Mass)
	}
}

// MaxNonzeroValue returns the largest value with nonzero mass
func (h *Histogram) MaxNonzeroValue() float64 {
	for i := len(h.Mass) - 1; i >= 0; i-- {
		if h.Mass[i] > 0 {
			return h.Value(i)
		}
	}
	return 0
}

// UnionFold combines two statistic distributions under the probabilistic
// union rule s = 1 - (1-a)(1-b), the combination ALE applies across
// independent modeled-activation values. Both inputs must share a step. The
// result holds the distribution of the combined statistic.
func (h *Histogram) UnionFold(other *Histogram) (*Histogram, error) {
	if math.Abs(h.Step-other.Step) > h.Step*1e-12 {
		return nil, fmt.Errorf("histogram steps differ: %g vs %g", h.Step, other.Step)
	}

	// The union statistic is bounded by 1; size the output to the largest
	// achievable combination.
	maxA := h.MaxNonzeroValue()
	maxB := other.MaxNonzeroValue()
	maxS := 1 - (1-maxA)*(1-maxB)
	out, err := NewHistogram(h.Step, int(math.Floor(maxS/h.Step+1e-9))+1)
	if err != nil {
		return nil, err
	}

	for ia, ma := range h.Mass {
		if ma == 0 {
			continue
		}
		va := h.Value(ia)
		for ib, mb := range other.Mass {
			if mb == 0 {
				continue
			}
			s := 1 - (1-va)*(1-other.Value(ib))
			out.Add(s, ma*mb)
		}
	}
	return out, nil
}

// Convolve combines two statistic distributions under summation, the
// combination used by density estimators whose statistic is a weighted sum
// across studies. Long histograms go through FFT; short ones use the direct
// product loop. Both inputs must share a step.
func (h *Histogram) Convolve(other *Histogram) (*Histogram, error) {
	if math.Abs(h.Step-other.Step) > h.Step*1e-12 {
		return nil, fmt.Errorf("histogram steps differ: %g vs %g", h.Step, other.Step)
	}
	n := len(h.Mass) + len(other.Mass) - 1
	out, err := NewHistogram(h.Step, n)
	if err != nil {
		return nil, err
	}

	if n < fftConvolutionCutoff {
		for ia, ma := range h.Mass {
			if ma == 0 {
				continue
			}
			for ib, mb := range other.Mass {
				if mb == 0 {
					continue
				}
				out.Mass[ia+ib] += ma * mb
			}
		}
		return out, nil
	}

	// FFT path: pad to the linear-convolution length, multiply spectra.
	// mjibson/go-dsp handles non-power-of-2 sizes.
	a := make([]float64, n)
	b := make([]float64, n)
	copy(a, h.Mass)
	copy(b, other.Mass)
	fa := fft.FFTReal(a)
	fb := fft.FFTReal(b)
	for i := range fa {
		fa[i] *= fb[i]
	}
	res := fft.IFFT(fa)
	for i := range out.Mass {
		v := real(res[i])
		// Spectral round-off can leave tiny negative mass
		if v < 0 {
			v = 0
		}
		out.Mass[i] = v
	}
	return out, nil
}

// TailProbabilities returns, per bin, the probability mass at or above that
// bin's value. The histogram is treated as normalized.
func (h *Histogram) TailProbabilities() []float64 {
	total := h.Total()
	tail := make([]float64, len(h.Mass))
	if total <= 0 {
		for i := range tail {
			tail[i] = 1
		}
		return tail
	}
	running := 0.0
	for i := len(h.Mass) - 1; i >= 0; i-- {
		running += h.Mass[i] / total
		tail[i] = math.Min(running, 1)
	}
	return tail
}

// ValueAtTail returns the smallest statistic value whose upper-tail
// probability is at or below p, i.e. the statistic threshold corresponding
// to an uncorrected p threshold. Returns the value just past the histogram
// when no bin is that extreme.
func (h *Histogram) ValueAtTail(p float64) float64 {
	tail := h.TailProbabilities()
	for i, t := range tail {
		if t <= p {
			return h.Value(i)
		}
	}
	return h.Value(len(h.Mass))
}

// PValue returns the upper-tail probability of an observed statistic,
// floored to keep finite bin resolution from producing exact zeros
func (h *Histogram) PValue(observed, floor float64) float64 {
	tail := h.TailProbabilities()
	p := tail[h.BinOf(observed)]
	if p < floor {
		return floor
	}
	if p > 1 {
		return 1
	}
	return p
}
