package catalog

import (
	"slices"

	"github.com/williamberman/FlexFlow/types/shapes"
	"github.com/pkg/errors"
)

// inferRepartition splits Dim into Degree shards along machine axis
// ParallelIdx. The target dim must not already be split.
func inferRepartition(a RepartitionAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "repartition"); err != nil {
		return nil, err
	}
	if a.Degree <= 0 {
		return nil, errors.New("repartition: degree must be positive")
	}
	if a.Dim < 0 || a.Dim >= len(inputs[0].Dims) {
		return nil, errors.Errorf("repartition: dim %d out of range for rank %d", a.Dim, len(inputs[0].Dims))
	}
	target := inputs[0].Dims[a.Dim]
	if target.IsReplica {
		return nil, errors.New("repartition: cannot split a replica dimension")
	}
	if target.Degree != 1 {
		return nil, errors.Errorf("repartition: dim %d is already split with degree %d", a.Dim, target.Degree)
	}
	if target.Size%a.Degree != 0 {
		return nil, errors.Errorf("repartition: degree %d does not divide size %d", a.Degree, target.Size)
	}
	out := slices.Clone(inputs[0].Dims)
	out[a.Dim] = shapes.ParallelDim{Size: target.Size, Degree: a.Degree, ParallelIdx: a.ParallelIdx}
	return []shapes.ParallelTensorShape{{Dims: out, DType: inputs[0].DType}}, nil
}

// inferReplicate appends a pure replication dimension of the given degree
// along machine axis ParallelIdx.
func inferReplicate(a ReplicateAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "replicate"); err != nil {
		return nil, err
	}
	if a.Degree <= 0 {
		return nil, errors.New("replicate: degree must be positive")
	}
	replicaDim := shapes.ParallelDim{Size: 1, Degree: a.Degree, ParallelIdx: a.ParallelIdx, IsReplica: true}
	out := append(slices.Clone(inputs[0].Dims), replicaDim)
	return []shapes.ParallelTensorShape{{Dims: out, DType: inputs[0].DType}}, nil
}

// inferReduction is the adjoint of Repartition: it collapses a
// degree-Degree split of Dim back to an unsplit dimension of the same
// logical size.
func inferReduction(a ReductionAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "reduction"); err != nil {
		return nil, err
	}
	if a.Dim < 0 || a.Dim >= len(inputs[0].Dims) {
		return nil, errors.Errorf("reduction: dim %d out of range for rank %d", a.Dim, len(inputs[0].Dims))
	}
	target := inputs[0].Dims[a.Dim]
	if target.Degree != a.Degree {
		return nil, errors.Errorf("reduction: dim %d has degree %d, expected %d", a.Dim, target.Degree, a.Degree)
	}
	out := slices.Clone(inputs[0].Dims)
	out[a.Dim] = shapes.ParallelDim{Size: target.Size, Degree: 1, ParallelIdx: -1}
	return []shapes.ParallelTensorShape{{Dims: out, DType: inputs[0].DType}}, nil
}

// inferCombine is the adjoint of Replicate: it removes the replica
// dimension at a.Dim, keeping one representative shard.
func inferCombine(a CombineAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "combine"); err != nil {
		return nil, err
	}
	if a.Dim < 0 || a.Dim >= len(inputs[0].Dims) {
		return nil, errors.Errorf("combine: dim %d out of range for rank %d", a.Dim, len(inputs[0].Dims))
	}
	if !inputs[0].Dims[a.Dim].IsReplica {
		return nil, errors.Errorf("combine: dim %d is not a replica dimension", a.Dim)
	}
	out := append(slices.Clone(inputs[0].Dims[:a.Dim]), inputs[0].Dims[a.Dim+1:]...)
	return []shapes.ParallelTensorShape{{Dims: out, DType: inputs[0].DType}}, nil
}

// inferFusedParallel threads inputs through each step's Infer in sequence,
// matching the behavior of the unfused chain it replaces.
func inferFusedParallel(a FusedParallelAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if len(a.Steps) == 0 {
		return nil, errors.New("fused_parallel: must contain at least one step")
	}
	current := inputs
	for i, step := range a.Steps {
		out, err := Infer(step, current)
		if err != nil {
			return nil, errors.Wrapf(err, "fused_parallel: step %d (%s)", i, step.Kind())
		}
		current = out
	}
	return current, nil
}
