package fusion

import "github.com/williamberman/FlexFlow/pcg"

// MarkInPlace is the post-lift, pre-fusion in-place pass (spec.md §9
// "In-place optimization", SPEC_FULL.md §12.1): an operator with exactly
// one input and one output is marked in-place when that output shares a
// machine view with the input and no other operator's input also reads
// it. Fusion then skips it both as a seed and as a merge candidate
// (see fusibleAsSeed and fusibleAsTarget).
func MarkInPlace(graph *pcg.PCG) {
	refCount := make(map[pcg.TensorRef]int)
	for _, op := range graph.Operators {
		for _, ref := range op.Inputs {
			refCount[ref]++
		}
	}

	for _, op := range graph.Operators {
		op.InPlace = false
		if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
			continue
		}
		if op.MachineView == nil {
			continue
		}
		producer := graph.OperatorByID(op.Inputs[0].OperatorID)
		if producer == nil || producer.MachineView == nil {
			continue
		}
		if !producer.MachineView.Equal(*op.MachineView) {
			continue
		}
		if refCount[op.Inputs[0]] != 1 {
			continue
		}
		op.InPlace = true
	}
}
