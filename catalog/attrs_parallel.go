package catalog

import (
	"github.com/williamberman/FlexFlow/internal/optypes"
)

// RepartitionAttrs is the attribute record for optypes.Repartition: it
// splits dimension Dim into Degree shards along machine axis ParallelIdx.
type RepartitionAttrs struct {
	Dim         int
	Degree      int
	ParallelIdx int
}

func (a RepartitionAttrs) Kind() optypes.OpKind { return optypes.Repartition }
func (a RepartitionAttrs) Equal(other Attrs) bool {
	o, ok := other.(RepartitionAttrs)
	return ok && a == o
}

// ReplicateAttrs is the attribute record for optypes.Replicate: it adds a
// pure replication dimension of the given degree along machine axis
// ParallelIdx.
type ReplicateAttrs struct {
	Degree      int
	ParallelIdx int
}

func (a ReplicateAttrs) Kind() optypes.OpKind { return optypes.Replicate }
func (a ReplicateAttrs) Equal(other Attrs) bool {
	o, ok := other.(ReplicateAttrs)
	return ok && a == o
}

// ReductionAttrs is the attribute record for optypes.Reduction: it
// collapses a degree-Degree split of dimension Dim back down by summing
// across the shards (the adjoint of Repartition along a contracted axis).
type ReductionAttrs struct {
	Dim    int
	Degree int
}

func (a ReductionAttrs) Kind() optypes.OpKind { return optypes.Reduction }
func (a ReductionAttrs) Equal(other Attrs) bool {
	o, ok := other.(ReductionAttrs)
	return ok && a == o
}

// CombineAttrs is the attribute record for optypes.Combine: it collapses a
// replica dimension, picking one representative shard (the adjoint of
// Replicate).
type CombineAttrs struct {
	Dim int
}

func (a CombineAttrs) Kind() optypes.OpKind { return optypes.Combine }
func (a CombineAttrs) Equal(other Attrs) bool {
	o, ok := other.(CombineAttrs)
	return ok && a == o
}

// FusedParallelAttrs is the attribute record for optypes.FusedParallel: a
// sequence of parallel-operator steps (Repartition/Replicate/Reduction/
// Combine) collapsed into a single data-movement operator, so the task
// runtime issues one launch instead of a chain. The fusion pass (C9) does
// not produce it: parallel operators are never fused there.
type FusedParallelAttrs struct {
	Steps []Attrs
}

func (a FusedParallelAttrs) Kind() optypes.OpKind { return optypes.FusedParallel }
func (a FusedParallelAttrs) Equal(other Attrs) bool {
	o, ok := other.(FusedParallelAttrs)
	if !ok || len(a.Steps) != len(o.Steps) {
		return false
	}
	for i := range a.Steps {
		if !a.Steps[i].Equal(o.Steps[i]) {
			return false
		}
	}
	return true
}
