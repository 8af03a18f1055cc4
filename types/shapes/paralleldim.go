package shapes

import "github.com/pkg/errors"

// ParallelDim is the quadruple (size, degree, parallel_idx, is_replica)
// describing how one logical dimension is split across devices
// (spec.md §3 "Parallel dimension").
type ParallelDim struct {
	// Size is the logical extent of the dimension.
	Size int

	// Degree is how many ways this dimension is split across devices.
	// Must be >= 1 and must divide Size unless IsReplica.
	Degree int

	// ParallelIdx is the index into the machine-view axes this dimension is
	// split along, or -1 if the dimension is not split.
	ParallelIdx int

	// IsReplica marks a redundant replication dimension of logical size 1,
	// used to model pure replication alongside real dimensions.
	IsReplica bool
}

// Clone returns a copy of the dimension (value type, no pointers/slices to copy).
func (d ParallelDim) Clone() ParallelDim {
	return d
}

// Equal returns whether d and other describe the same parallel dimension.
func (d ParallelDim) Equal(other ParallelDim) bool {
	return d == other
}

// Validate checks the per-dimension invariants from spec.md §3 and
// Testable Property 4 ("Degree divisibility"):
//   - Degree >= 1
//   - Size divisible by Degree, unless IsReplica
//   - Degree > 1 implies ParallelIdx >= 0
func (d ParallelDim) Validate() error {
	if d.Degree < 1 {
		return errors.Errorf("parallel dim degree must be >= 1, got %d", d.Degree)
	}
	if !d.IsReplica && d.Size%d.Degree != 0 {
		return errors.Errorf("parallel dim size %d is not divisible by degree %d", d.Size, d.Degree)
	}
	if d.Degree > 1 && d.ParallelIdx < 0 {
		return errors.Errorf("parallel dim has degree %d > 1 but parallel_idx %d < 0", d.Degree, d.ParallelIdx)
	}
	return nil
}

// IsSplit returns whether this dimension is actually partitioned (degree > 1).
func (d ParallelDim) IsSplit() bool {
	return d.Degree > 1
}
