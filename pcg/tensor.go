// Package pcg implements C4, the Parallel Computation Graph: the DAG of
// operators and parallel tensors produced by lift (C3), mutated by assign
// (C5) and fusion (C9), and consumed by regionmap (C8) and serialize (C10).
package pcg

import (
	"github.com/williamberman/FlexFlow/types/shapes"
)

// SyncMode is how a weight tensor is kept consistent across its shards
// (spec.md §3 "Parallel tensor").
type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncParameterServer
	SyncCollective
)

func (m SyncMode) String() string {
	switch m {
	case SyncParameterServer:
		return "parameter-server"
	case SyncCollective:
		return "collective"
	default:
		return "none"
	}
}

// InitializerKind is the closed set of weight-initialization strategies a
// weight tensor's descriptor may name.
type InitializerKind int

const (
	InitializerZero InitializerKind = iota
	InitializerUniform
	InitializerGlorotUniform
	InitializerNormal
)

// InitializerDescriptor describes how a weight tensor's storage should be
// populated before the first forward pass. The core never executes it --
// kernels are opaque per spec.md §1 -- it only carries the parameters
// through to the external runtime.
type InitializerDescriptor struct {
	Kind InitializerKind
	Seed int64
	Low  float64
	High float64
}

// RegionHandle is the opaque region/partition handle regionmap (C8)
// attaches to a parallel tensor once it has been mapped onto the task
// runtime's index space. It is nil until C8 runs.
type RegionHandle struct {
	// IndexSpaceRank is the rank T of the task index space this region
	// was partitioned against.
	IndexSpaceRank int

	// Extents holds the per-dimension tile extent used to build the
	// restriction partition (spec.md §4.6 point 2).
	Extents []int

	// Transform is the N x T transform matrix from spec.md §4.6 point 3,
	// stored row-major.
	Transform [][]int

	// Disjoint and Complete record the assertions spec.md §4.6 point 4
	// requires regionmap to check before returning a handle.
	Disjoint bool
	Complete bool

	// AliasedDim names the one dimension along which disjointness is
	// relaxed for an "aliased partition" (spec.md GLOSSARY), or -1 if
	// this region is not aliased.
	AliasedDim int
}

// ParallelTensor is a shape plus identity and ownership metadata
// (spec.md §3 "Parallel tensor").
type ParallelTensor struct {
	ID int

	// OwnerOpID and OwnerIdx locate the operator and output slot that
	// created and exclusively owns this tensor (spec.md §9
	// "Back-references and cycles"): operators own their outputs,
	// consumers hold a weak (OperatorID, Slot) lookup instead.
	OwnerOpID int
	OwnerIdx  int

	Shape shapes.ParallelTensorShape

	// CreateGradient marks whether a shadow gradient tensor/region should
	// be materialized for this tensor during training.
	CreateGradient bool

	Region       *RegionHandle
	ShadowRegion *RegionHandle

	// Initializer and Sync are only meaningful for weight tensors.
	Initializer *InitializerDescriptor
	Sync        SyncMode
}

// Clone returns a deep copy that shares no mutable state with the original.
func (t *ParallelTensor) Clone() *ParallelTensor {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Shape = t.Shape.Clone()
	if t.Initializer != nil {
		init := *t.Initializer
		clone.Initializer = &init
	}
	return &clone
}
