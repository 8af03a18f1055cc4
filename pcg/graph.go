package pcg

import (
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/pkg/errors"
)

// CollectiveHandle is a pre-created collective communicator handle, cached
// per machine view (spec.md §3 "PCG", §5 "Shared resources": a one-shot
// cache, entries created on first use and never evicted or mutated).
type CollectiveHandle struct {
	View    machineview.MachineView
	OpaqueID uint64
}

// PCG is the ordered operator DAG described in spec.md §3 "PCG": an
// ordered list of operators in any topological order, plus a map from
// machine-view hash to a lazily-created collective communicator handle.
// The global id allocators live on the owning Model, not here.
type PCG struct {
	Operators []*Operator

	byID map[int]*Operator

	collectives map[uint64]*CollectiveHandle
}

// NewPCG returns an empty graph ready to receive lifted operators.
func NewPCG() *PCG {
	return &PCG{
		byID:        make(map[int]*Operator),
		collectives: make(map[uint64]*CollectiveHandle),
	}
}

// AddOperator appends op to the graph's operator order and indexes it by
// id. Callers (lift, fusion) are responsible for appending operators in an
// order consistent with the DAG's topological order (Testable Property 1).
func (g *PCG) AddOperator(op *Operator) {
	g.Operators = append(g.Operators, op)
	g.byID[op.ID] = op
}

// Lookup resolves a TensorRef to the parallel tensor it names, or nil if
// the operator id or slot is unknown.
func (g *PCG) Lookup(ref TensorRef) *ParallelTensor {
	op, ok := g.byID[ref.OperatorID]
	if !ok {
		return nil
	}
	return op.OutputSlot(ref.Slot)
}

// OperatorByID returns the operator with the given id, or nil.
func (g *PCG) OperatorByID(id int) *Operator {
	return g.byID[id]
}

// IndexOf returns the position of op in the operator order, or -1.
func (g *PCG) IndexOf(op *Operator) int {
	for i, o := range g.Operators {
		if o == op {
			return i
		}
	}
	return -1
}

// Replace substitutes the operator list with newOps, reindexing byID.
// Used by fusion (C9) when it rebuilds the operator list after a merge.
func (g *PCG) Replace(newOps []*Operator) {
	g.Operators = newOps
	g.byID = make(map[int]*Operator, len(newOps))
	for _, op := range newOps {
		g.byID[op.ID] = op
	}
}

// CollectiveFor returns the cached communicator handle for view, creating
// one via newHandle if this is the first request for that view.
func (g *PCG) CollectiveFor(view machineview.MachineView, newHandle func() uint64) *CollectiveHandle {
	key := view.Hash()
	if h, ok := g.collectives[key]; ok {
		return h
	}
	h := &CollectiveHandle{View: view.Clone(), OpaqueID: newHandle()}
	g.collectives[key] = h
	return h
}

// CheckTopologicalSoundness verifies Testable Property 1: for every
// operator and each of its inputs, the owning operator appears strictly
// before it in the operator order.
func (g *PCG) CheckTopologicalSoundness() error {
	position := make(map[int]int, len(g.Operators))
	for i, op := range g.Operators {
		position[op.ID] = i
	}
	for i, op := range g.Operators {
		for _, in := range op.Inputs {
			ownerPos, ok := position[in.OperatorID]
			if !ok {
				return errors.Errorf("operator %d (%s) references unknown owner operator %d", op.ID, op.Kind, in.OperatorID)
			}
			if ownerPos >= i {
				return errors.Errorf("operator %d (%s) input owned by operator %d does not precede it in topological order", op.ID, op.Kind, in.OperatorID)
			}
		}
	}
	return nil
}

// CheckUniqueOwnership verifies Testable Property 2: every parallel tensor
// has exactly one owner, and its OwnerIdx equals its position in the
// owner's Outputs slice.
func (g *PCG) CheckUniqueOwnership() error {
	for _, op := range g.Operators {
		for idx, t := range op.Outputs {
			if t.OwnerOpID != op.ID || t.OwnerIdx != idx {
				return errors.Errorf("tensor %d claims owner (%d,%d), actual position is (%d,%d)",
					t.ID, t.OwnerOpID, t.OwnerIdx, op.ID, idx)
			}
		}
	}
	return nil
}
