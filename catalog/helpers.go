package catalog

import (
	"slices"

	"github.com/williamberman/FlexFlow/types/shapes"
)

// splitTrailingReplica separates the trailing replica dimension the lifter
// (C3) appends to every OP_INPUT tensor from the dimensions an operator's
// shape-inference rule actually reasons about. Every infer* function below
// operates on the "logical" part and reattaches the replica tail (if any)
// unchanged, so a replica marker introduced at the input survives
// untouched through the rest of the graph -- matching spec.md §4.2's rule
// that OP_INPUT appends exactly one trailing replica dimension.
func splitTrailingReplica(dims []shapes.ParallelDim) (logical []shapes.ParallelDim, tail *shapes.ParallelDim) {
	if len(dims) > 0 && dims[len(dims)-1].IsReplica {
		t := dims[len(dims)-1]
		return dims[:len(dims)-1], &t
	}
	return dims, nil
}

// withTail reattaches a previously-split replica tail to a newly-computed
// logical dimension slice.
func withTail(logical []shapes.ParallelDim, tail *shapes.ParallelDim) []shapes.ParallelDim {
	if tail == nil {
		return logical
	}
	return append(slices.Clone(logical), *tail)
}

// logicalSizes returns the plain int sizes of a dims slice, for rank/size
// sanity checks that don't care about partitioning.
func logicalSizes(dims []shapes.ParallelDim) []int {
	sizes := make([]int, len(dims))
	for i, d := range dims {
		sizes[i] = d.Size
	}
	return sizes
}
