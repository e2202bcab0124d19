// Package dataset holds the in-memory study collection consumed by the CBMA
// estimators: studies, contrasts, reported foci, and the shared brain mask
// that defines the analysis grid. Loading from on-disk formats is an
// external concern; this package only models the loaded data.
package dataset

import (
	"fmt"

	"github.com/neurometa/gocbma/imaging"
	"github.com/neurometa/gocbma/logging"
)

// Focus is a reported activation coordinate in world space (mm)
type Focus struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Contrast is one experimental contrast within a study
type Contrast struct {
	ID         string        `json:"id"`
	Space      imaging.Space `json:"space"`
	SampleSize int           `json:"sample_size"` // participant count; 0 when unreported
	Foci       []Focus       `json:"foci"`
}

// Study groups one or more contrasts reported by a single publication
type Study struct {
	ID        string     `json:"id"`
	Contrasts []Contrast `json:"contrasts"`
}

// Experiment is a flattened study-contrast analysis unit with foci already
// converted to the collection's working space and mapped to voxel indices.
// This is what the kernel transformers consume.
type Experiment struct {
	ID         string
	SampleSize int
	IJK        [][3]int // surviving in-mask voxel indices
	Dropped    int      // foci that fell outside the mask
}

// NumFoci returns the count of in-mask foci
func (e *Experiment) NumFoci() int { return len(e.IJK) }

// Collection is an ordered, read-only set of studies bound to a shared mask
// and working space. Built once before analysis; estimators only read it.
type Collection struct {
	studies     []Study
	experiments []Experiment
	mask        *imaging.Mask
	space       imaging.Space
}

// NewCollection binds studies to a mask and working space. Foci in other
// declared spaces are converted on load; foci whose voxel falls outside the
// mask are dropped with a logged count. A contrast with no surviving foci
// still yields an (empty) experiment so that it contributes a zero MA map
// rather than failing the batch.
func NewCollection(studies []Study, mask *imaging.Mask, space imaging.Space) (*Collection, error) {
	if mask == nil {
		return nil, fmt.Errorf("collection requires a mask")
	}

	c := &Collection{
		studies: studies,
		mask:    mask,
		space:   space,
	}

	totalDropped := 0
	for _, study := range studies {
		for _, con := range study.Contrasts {
			exp := Experiment{
				ID:         fmt.Sprintf("%s-%s", study.ID, con.ID),
				SampleSize: con.SampleSize,
			}

			conSpace := con.Space
			if conSpace == "" {
				conSpace = space
			}
			for _, f := range con.Foci {
				p, err := imaging.ConvertSpace([3]float64{f.X, f.Y, f.Z}, conSpace, space)
				if err != nil {
					return nil, fmt.Errorf("experiment %s: %w", exp.ID, err)
				}
				i, j, k := mask.Affine().MMToVox(p[0], p[1], p[2])
				if !mask.Contains(i, j, k) {
					exp.Dropped++
					continue
				}
				exp.IJK = append(exp.IJK, [3]int{i, j, k})
			}

			if exp.Dropped > 0 {
				totalDropped += exp.Dropped
				logging.Warn("dropped out-of-mask foci", logging.Fields{
					"experiment": exp.ID,
					"dropped":    exp.Dropped,
					"kept":       len(exp.IJK),
				})
			}
			c.experiments = append(c.experiments, exp)
		}
	}

	if totalDropped > 0 {
		logging.Info("collection built with dropped foci", logging.Fields{
			"experiments":   len(c.experiments),
			"dropped_total": totalDropped,
		})
	}
	return c, nil
}

// Mask returns the shared brain mask
func (c *Collection) Mask() *imaging.Mask { return c.mask }

// Space returns the working stereotactic space
func (c *Collection) Space() imaging.Space { return c.space }

// Studies returns the source studies
func (c *Collection) Studies() []Study { return c.studies }

// Experiments returns the flattened analysis units in input order
func (c *Collection) Experiments() []Experiment { return c.experiments }

// NumExperiments returns the analysis-unit count
func (c *Collection) NumExperiments() int { return len(c.experiments) }

// TotalFoci returns the count of in-mask foci across all experiments
func (c *Collection) TotalFoci() int {
	n := 0
	for i := range c.experiments {
		n += len(c.experiments[i].IJK)
	}
	return n
}

// HasFoci reports whether at least one experiment kept at least one focus.
// Fitting an estimator on a collection without any foci is a configuration
// error.
func (c *Collection) HasFoci() bool { return c.TotalFoci() > 0 }
