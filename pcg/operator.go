package pcg

import (
	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/types/machineview"
)

// TensorRef is a weak (by-id) reference to a parallel tensor owned by
// another operator -- spec.md §9 "Back-references and cycles": operators
// never share ownership of an input, they look it up by id in the PCG's
// operator table.
type TensorRef struct {
	OperatorID int
	Slot       int
}

// Operator is a globally unique id, a kind tag, a kind-specific attribute
// record, its input/output/weight parallel-tensor slots, and per-input
// needs-gradient flags (spec.md §3 "Operator").
type Operator struct {
	ID    int
	Kind  optypes.OpKind
	Attrs catalog.Attrs

	Inputs        []TensorRef
	NeedsGradient []bool

	Outputs []*ParallelTensor
	Weights []*ParallelTensor

	// MachineView is the operator's assigned location on devices, set by
	// C5/C7 and consulted by fusion (C9) and regionmap (C8).
	MachineView *machineview.MachineView

	// Config is the operator's current ParallelConfig (spec.md §3
	// "Parallel config"), assigned by C5 and mutated by C7.
	Config *machineview.ParallelConfig

	// InPlace is set by the in-place pass (SPEC_FULL.md §12.1) when this
	// operator's sole output shares a machine view with its sole input
	// and no other consumer reads that input. Fusion skips in-place
	// operators both as seeds and as merge candidates.
	InPlace bool

	// SourceTags records, for a fused operator's sub-ops, which of
	// SOURCE_INPUT/SOURCE_OUTPUT/SOURCE_WEIGHT each exposed slot came
	// from (spec.md §4.7); empty for a non-fused operator.
	SourceTags []SourceTag

	// subOps holds the original operators a fused operator collapsed,
	// in fusion order, used by fusion's integrity check (Testable
	// Property 7) and by serialize (C10) when it needs per-sub-op
	// attributes.
	subOps []*Operator
}

// SourceTag is the closed set of provenance tags a fused operator's
// exposed slots carry (spec.md §4.7).
type SourceTag int

const (
	SourceInput SourceTag = iota
	SourceOutput
	SourceWeight
)

// IsParallelOp reports whether this operator is one of the five kinds that
// exist purely to move or rearrange data (spec.md GLOSSARY "Parallel
// operator"): these are never fusion seeds or merge candidates, and are
// never mutated by C5/C7 the way compute operators are.
func (o *Operator) IsParallelOp() bool {
	return o.Kind.IsParallel()
}

// SubOperators returns the sub-operators a fused operator collapsed, or
// nil if this is not a fused operator.
func (o *Operator) SubOperators() []*Operator {
	return o.subOps
}

// SetSubOperators records the sub-operators a fused operator collapsed.
// Only fusion (C9) calls this, when constructing a new FusedOp.
func (o *Operator) SetSubOperators(subOps []*Operator) {
	o.subOps = subOps
}

// OutputSlot returns the parallel tensor at the given output index, or nil
// if out of range.
func (o *Operator) OutputSlot(idx int) *ParallelTensor {
	if idx < 0 || idx >= len(o.Outputs) {
		return nil
	}
	return o.Outputs[idx]
}
