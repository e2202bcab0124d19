// Package results holds the MetaResult container that estimators populate
// and correctors extend: an ordered mapping from map name to a masked
// statistic vector, plus references to the producing estimator and mask.
package results

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/neurometa/gocbma/imaging"
)

// MetaResult owns the named statistical maps produced by one estimator fit.
// Maps accumulate additively: the estimator registers the initial statistic
// and p maps, correctors append suffixed corrected variants. Apart from this
// additive registration a MetaResult is immutable; Copy gives correctors an
// independent map registry so the original is never mutated.
type MetaResult struct {
	estimator any
	mask      *imaging.Mask
	names     []string
	maps      map[string][]float64
}

// New creates an empty result bound to its producing estimator and mask
func New(estimator any, mask *imaging.Mask) *MetaResult {
	return &MetaResult{
		estimator: estimator,
		mask:      mask,
		maps:      make(map[string][]float64),
	}
}

// Estimator returns the estimator that produced this result. Correctors
// probe it for native correction capabilities via interface assertions.
func (r *MetaResult) Estimator() any { return r.estimator }

// Mask returns the analysis mask all maps are aligned to
func (r *MetaResult) Mask() *imaging.Mask { return r.mask }

// Set registers a masked map under a name, keeping first-insertion order.
// Registering an existing name replaces its values in place in the order.
func (r *MetaResult) Set(name string, vals []float64) {
	if _, ok := r.maps[name]; !ok {
		r.names = append(r.names, name)
	}
	r.maps[name] = vals
}

// Get returns the masked map registered under name, or nil
func (r *MetaResult) Get(name string) []float64 { return r.maps[name] }

// Has reports whether a map is registered under name
func (r *MetaResult) Has(name string) bool {
	_, ok := r.maps[name]
	return ok
}

// Names returns the registered map names in insertion order
func (r *MetaResult) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Copy returns a result with an independent map registry. Map values are
// shared until replaced; registering on the copy never affects the
// original.
func (r *MetaResult) Copy() *MetaResult {
	cp := New(r.estimator, r.mask)
	cp.names = make([]string, len(r.names))
	copy(cp.names, r.names)
	for k, v := range r.maps {
		cp.maps[k] = v
	}
	return cp
}

// Volume reconstructs a named map as a dense full-grid array
func (r *MetaResult) Volume(name string) ([]float64, error) {
	vals, ok := r.maps[name]
	if !ok {
		return nil, fmt.Errorf("no map named %q; available: %v", name, r.names)
	}
	return r.mask.Unmask(vals)
}

// MapSummary describes one map's in-mask value distribution
type MapSummary struct {
	Name   string  `json:"name"`
	N      int     `json:"n"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	P95    float64 `json:"p95"`
}

// Describe summarizes a named map for logs and reports
func (r *MetaResult) Describe(name string) (*MapSummary, error) {
	vals, ok := r.maps[name]
	if !ok {
		return nil, fmt.Errorf("no map named %q; available: %v", name, r.names)
	}

	data := stats.Float64Data(vals)
	min, err := data.Min()
	if err != nil {
		return nil, fmt.Errorf("summarizing %q: %w", name, err)
	}
	max, _ := data.Max()
	mean, _ := data.Mean()
	median, _ := data.Median()
	sd, _ := data.StandardDeviation()
	p95, _ := stats.Percentile(data, 95)

	return &MapSummary{
		Name:   name,
		N:      len(vals),
		Min:    min,
		Max:    max,
		Mean:   mean,
		Median: median,
		StdDev: sd,
		P95:    p95,
	}, nil
}
