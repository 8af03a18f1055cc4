// Package fusion implements C9, the greedy vertical fusion pass that
// collapses compatible adjacent operators into a single fused operator
// (spec.md §4.7).
package fusion

import (
	"slices"

	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/pkg/errors"
)

// MaxFusedInputs, MaxFusedWeights and MaxFusedOutputs bound a FusedOp's
// exposed slot counts (spec.md §4.7 "bounded input/weight/output counts").
const (
	MaxFusedInputs  = 32
	MaxFusedWeights = 16
	MaxFusedOutputs = 8
)

// Run repeatedly scans graph's operator list for a fusible pair and
// rewrites it until no more fusions apply, per spec.md §4.7's greedy
// vertical-fusion algorithm. terminalID is excluded from both seed and
// fusion-target roles (GLOSSARY "Terminal operator").
func Run(graph *pcg.PCG, terminalID int) error {
	for {
		fused, err := fuseOnce(graph, terminalID)
		if err != nil {
			return err
		}
		if !fused {
			return nil
		}
	}
}

// fuseOnce performs a single fusion pass over graph.Operators, returning
// whether a fusion was applied.
func fuseOnce(graph *pcg.PCG, terminalID int) (bool, error) {
	ops := graph.Operators
	n := len(ops)

	for l := 1; l < n-1; l++ {
		target := ops[l]
		if target.ID == terminalID {
			continue
		}
		if !fusibleAsTarget(target) {
			continue
		}

		for i := l - 1; i >= 0; i-- {
			seed := ops[i]
			if seed.ID == terminalID {
				continue
			}
			if !fusibleAsSeed(seed) {
				continue
			}
			if seed.MachineView == nil || target.MachineView == nil || !seed.MachineView.Equal(*target.MachineView) {
				continue
			}

			fusedOp, err := buildFusedOp(seed, target)
			if err != nil {
				// This (seed, target) pair fails FusedOp's structural
				// constraints; spec.md says to keep searching for the
				// latest valid i, so try an earlier seed instead.
				continue
			}

			newOps := rewrite(graph, i, l, fusedOp)
			if err := checkIntegrity(ops, newOps); err != nil {
				return false, errors.Wrap(err, "fusion integrity check")
			}
			graph.Replace(newOps)
			return true, nil
		}
	}
	return false, nil
}

// fusibleAsSeed reports whether op may anchor a fusion (spec.md §4.7:
// "neither is an input/weight/parallel operator", plus the in-place
// exclusion from §12.1; noop operators are excluded as well). A seed may
// own weights -- a compute op like linear or conv2d is exactly the kind of
// operator later elementwise ops fold into.
func fusibleAsSeed(op *pcg.Operator) bool {
	if op.Kind == optypes.Input || op.Kind == optypes.Noop || op.IsParallelOp() {
		return false
	}
	if op.InPlace {
		return false
	}
	return true
}

// fusibleAsTarget reports whether op may be folded into an earlier seed.
// In addition to fusibleAsSeed's exclusions, a target must own no weights
// of its own: a weighted compute op (linear, conv2d, ...) always starts
// its own fusion chain as a future seed rather than being absorbed into
// the seed before it, matching scenario S3 (only the weight-free relu and
// dropout fold into the preceding linear; the second linear does not).
func fusibleAsTarget(op *pcg.Operator) bool {
	return fusibleAsSeed(op) && len(op.Weights) == 0
}

// buildFusedOp merges target into a FusedOp seeded at seed, enforcing
// spec.md §4.7's bounded input/weight/output counts and consistent source
// tagging.
func buildFusedOp(seed, target *pcg.Operator) (*pcg.Operator, error) {
	seedSubs := collapseSubOps(seed)
	subOps := append(append([]*pcg.Operator{}, seedSubs...), collapseSubOps(target)...)
	// resolve finds the tensor a sub-op input reads. A target that reads a
	// previously fused seed addresses the seed's own output slots, not
	// those of the seed's first sub-op (which shares the seed's id).
	resolve := func(sub *pcg.Operator, ref pcg.TensorRef) *pcg.ParallelTensor {
		if seed.Kind == optypes.Fused && ref.OperatorID == seed.ID && !slices.Contains(seedSubs, sub) {
			if ref.Slot < 0 || ref.Slot >= len(seed.Outputs) {
				return nil
			}
			return seed.Outputs[ref.Slot]
		}
		return lookupOutput(subOps, ref)
	}

	var inputs []pcg.TensorRef
	var needsGradient []bool
	var outputs []*pcg.ParallelTensor
	var weights []*pcg.ParallelTensor
	var sourceTags []pcg.SourceTag

	producedBySub := make(map[int]bool)
	consumedInternally := make(map[int]bool)
	for _, sub := range subOps {
		for _, out := range sub.Outputs {
			producedBySub[out.ID] = true
		}
	}
	for _, sub := range subOps {
		for _, ref := range sub.Inputs {
			if tensor := resolve(sub, ref); tensor != nil {
				consumedInternally[tensor.ID] = true
			}
		}
	}

	for _, sub := range subOps {
		for idx, ref := range sub.Inputs {
			tensor := resolve(sub, ref)
			if tensor != nil && producedBySub[tensor.ID] {
				// Internal edge between two sub-ops: not exposed on the
				// fused op's boundary.
				continue
			}
			inputs = append(inputs, ref)
			if idx < len(sub.NeedsGradient) {
				needsGradient = append(needsGradient, sub.NeedsGradient[idx])
			} else {
				needsGradient = append(needsGradient, false)
			}
			sourceTags = append(sourceTags, pcg.SourceInput)
		}
		for _, w := range sub.Weights {
			weights = append(weights, w)
			sourceTags = append(sourceTags, pcg.SourceWeight)
		}
		for _, out := range sub.Outputs {
			if consumedInternally[out.ID] {
				// Consumed by another sub-op inside this same fused op:
				// not a boundary output (Testable Property 7).
				continue
			}
			outputs = append(outputs, out)
			sourceTags = append(sourceTags, pcg.SourceOutput)
		}
	}

	if len(inputs) > MaxFusedInputs {
		return nil, errors.Errorf("fusion: fused op would expose %d inputs, exceeding the bound of %d", len(inputs), MaxFusedInputs)
	}
	if len(weights) > MaxFusedWeights {
		return nil, errors.Errorf("fusion: fused op would expose %d weights, exceeding the bound of %d", len(weights), MaxFusedWeights)
	}
	if len(outputs) > MaxFusedOutputs {
		return nil, errors.Errorf("fusion: fused op would expose %d outputs, exceeding the bound of %d", len(outputs), MaxFusedOutputs)
	}

	fusedOp := &pcg.Operator{
		ID:            seed.ID,
		Kind:          optypes.Fused,
		Inputs:        inputs,
		NeedsGradient: needsGradient,
		Outputs:       outputs,
		Weights:       weights,
		MachineView:   seed.MachineView,
		Config:        seed.Config,
		SourceTags:    sourceTags,
	}
	fusedOp.SetSubOperators(subOps)
	return fusedOp, nil
}

// lookupOutput finds the parallel tensor produced by ref among subOps, or
// nil if ref is not produced by any of them (an external boundary edge).
func lookupOutput(subOps []*pcg.Operator, ref pcg.TensorRef) *pcg.ParallelTensor {
	for _, sub := range subOps {
		if sub.ID != ref.OperatorID {
			continue
		}
		if ref.Slot < 0 || ref.Slot >= len(sub.Outputs) {
			return nil
		}
		return sub.Outputs[ref.Slot]
	}
	return nil
}

// rewrite implements spec.md §4.7's rebuild step: keep O[0..i), substitute
// the enlarged fused op, keep O[i+1..n) \ {O[l]}, and retarget any
// downstream reference to O[l] or O[i] onto the matching output slot of
// the fused op.
func rewrite(graph *pcg.PCG, i, l int, fusedOp *pcg.Operator) []*pcg.Operator {
	ops := graph.Operators
	seedID := ops[i].ID
	targetID := ops[l].ID

	slotOf := make(map[pcg.TensorRef]int)
	for slot, out := range fusedOp.Outputs {
		if out == nil {
			continue
		}
		slotOf[pcg.TensorRef{OperatorID: seedID, Slot: slotForOriginalOwner(ops[i], out)}] = slot
		slotOf[pcg.TensorRef{OperatorID: targetID, Slot: slotForOriginalOwner(ops[l], out)}] = slot
	}

	newOps := make([]*pcg.Operator, 0, len(ops)-1)
	newOps = append(newOps, ops[:i]...)
	newOps = append(newOps, fusedOp)
	for idx := i + 1; idx < len(ops); idx++ {
		if idx == l {
			continue
		}
		newOps = append(newOps, ops[idx])
	}

	for _, op := range newOps {
		if op == fusedOp {
			continue
		}
		for idx, ref := range op.Inputs {
			if ref.OperatorID != seedID && ref.OperatorID != targetID {
				continue
			}
			if newSlot, ok := slotOf[ref]; ok {
				op.Inputs[idx] = pcg.TensorRef{OperatorID: fusedOp.ID, Slot: newSlot}
			}
		}
	}
	return newOps
}

// slotForOriginalOwner returns the output slot index within owner that
// produced tensor, or -1 if owner never produced it.
func slotForOriginalOwner(owner *pcg.Operator, tensor *pcg.ParallelTensor) int {
	for slot, out := range owner.Outputs {
		if out == tensor {
			return slot
		}
	}
	return -1
}

// collapseSubOps returns op's own sub-ops if it is already a fused
// operator (so re-fusing a previously fused op flattens rather than
// nests), or a one-element slice containing op itself otherwise.
func collapseSubOps(op *pcg.Operator) []*pcg.Operator {
	if existing := op.SubOperators(); existing != nil {
		return existing
	}
	return []*pcg.Operator{op}
}

// checkIntegrity is Testable Property 7 plus spec.md §4.7's post-pass
// integrity check: every non-fused operator in newOps also existed
// unchanged in oldOps, and every fused operator has sub-ops and exposes
// only outputs that one of its sub-ops produces. A fused operator's Inputs
// and Weights are not checked against its sub-ops.
func checkIntegrity(oldOps, newOps []*pcg.Operator) error {
	oldByID := make(map[int]*pcg.Operator, len(oldOps))
	for _, op := range oldOps {
		oldByID[op.ID] = op
	}

	for _, op := range newOps {
		if op.Kind != optypes.Fused {
			if oldByID[op.ID] != op {
				return errors.Errorf("operator %d in the new list did not exist unchanged in the old list", op.ID)
			}
			continue
		}
		subOps := op.SubOperators()
		if len(subOps) == 0 {
			return errors.Errorf("fused operator %d has no sub-ops", op.ID)
		}
		exposedOutputs := make(map[int]bool)
		for _, sub := range subOps {
			for _, out := range sub.Outputs {
				if out != nil {
					exposedOutputs[out.ID] = true
				}
			}
		}
		for _, out := range op.Outputs {
			if out != nil && !exposedOutputs[out.ID] {
				return errors.Errorf("fused operator %d exposes output %d not produced by any of its sub-ops", op.ID, out.ID)
			}
		}
	}
	return nil
}
