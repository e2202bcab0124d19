package imaging

import "fmt"

// Connectivity selects the voxel adjacency used for cluster labeling
type Connectivity int

const (
	// ConnFaces links voxels sharing a face (6 neighbors)
	ConnFaces Connectivity = 6
	// ConnEdges links voxels sharing a face or edge (18 neighbors)
	ConnEdges Connectivity = 18
	// ConnCorners links voxels sharing a face, edge, or corner (26 neighbors)
	ConnCorners Connectivity = 26
)

func (c Connectivity) String() string {
	switch c {
	case ConnFaces:
		return "faces"
	case ConnEdges:
		return "edges"
	case ConnCorners:
		return "corners"
	default:
		return fmt.Sprintf("connectivity(%d)", int(c))
	}
}

// Offsets returns the neighbor offsets for this connectivity
func (c Connectivity) Offsets() ([][3]int, error) {
	var out [][3]int
	for dk := -1; dk <= 1; dk++ {
		for dj := -1; dj <= 1; dj++ {
			for di := -1; di <= 1; di++ {
				if di == 0 && dj == 0 && dk == 0 {
					continue
				}
				order := abs(di) + abs(dj) + abs(dk)
				switch c {
				case ConnFaces:
					if order > 1 {
						continue
					}
				case ConnEdges:
					if order > 2 {
						continue
					}
				case ConnCorners:
					// all 26
				default:
					return nil, fmt.Errorf("unsupported connectivity %d: must be one of 6, 18, 26", int(c))
				}
				out = append(out, [3]int{di, dj, dk})
			}
		}
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ClusterSet holds the connected components of a thresholded masked map.
// Labels are per masked voxel, 1-based, 0 meaning below threshold. Sizes and
// Masses are indexed by label-1.
type ClusterSet struct {
	Labels []int32
	Sizes  []int
	Masses []float64
}

// NumClusters returns the component count
func (cs *ClusterSet) NumClusters() int { return len(cs.Sizes) }

// MaxSize returns the largest component's voxel count, 0 when none
func (cs *ClusterSet) MaxSize() int {
	best := 0
	for _, s := range cs.Sizes {
		if s > best {
			best = s
		}
	}
	return best
}

// MaxMass returns the largest within-component statistic sum, 0 when none
func (cs *ClusterSet) MaxMass() float64 {
	best := 0.0
	for _, m := range cs.Masses {
		if m > best {
			best = m
		}
	}
	return best
}

// LabelClusters labels the connected components of vec (a masked vector
// aligned to this mask) strictly above thresh, under the given connectivity.
// Adjacency never crosses out-of-mask voxels.
func (m *Mask) LabelClusters(vec []float64, thresh float64, conn Connectivity) (*ClusterSet, error) {
	if len(vec) != m.NumVoxels() {
		return nil, fmt.Errorf("masked vector length %d does not match mask voxel count %d", len(vec), m.NumVoxels())
	}
	offsets, err := conn.Offsets()
	if err != nil {
		return nil, err
	}

	cs := &ClusterSet{Labels: make([]int32, len(vec))}
	var queue []int

	for seed := range vec {
		if cs.Labels[seed] != 0 || vec[seed] <= thresh {
			continue
		}
		label := int32(len(cs.Sizes) + 1)
		size := 0
		mass := 0.0

		cs.Labels[seed] = label
		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			cur := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++
			mass += vec[cur]

			ci, cj, ck := m.Coords(m.inMask[cur])
			for _, off := range offsets {
				nb := m.MaskedIndex(ci+off[0], cj+off[1], ck+off[2])
				if nb < 0 || cs.Labels[nb] != 0 || vec[nb] <= thresh {
					continue
				}
				cs.Labels[nb] = label
				queue = append(queue, nb)
			}
		}
		cs.Sizes = append(cs.Sizes, size)
		cs.Masses = append(cs.Masses, mass)
	}
	return cs, nil
}
