package sim

import (
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
)

// flopsPerElement is a coarse, per-kind proxy for arithmetic intensity,
// used only by the reference simulator's cost model -- real costing is an
// external-collaborator concern per spec.md §1.
var flopsPerElement = map[optypes.OpKind]float64{
	optypes.Linear:             2,
	optypes.Conv2D:             9,
	optypes.MultiHeadAttention: 4,
	optypes.BatchMatmul:        2,
	optypes.Softmax:            3,
}

// MeasureOperatorCost estimates forward/backward time and memory
// footprint for op run under view (spec.md §4.4
// "measure_operator_cost(sim, machine_view) -> CostMetrics?"). It never
// fails in this reference implementation -- an un-tilable shape or OOM is
// a concern of the external runtime's actual kernels, not this estimator
// -- so it always returns a metrics value, never nil.
func MeasureOperatorCost(op *pcg.Operator, view machineview.MachineView) *CostMetrics {
	elements := 0
	for _, t := range op.Outputs {
		n := 1
		for _, d := range t.Shape.Dims {
			n *= d.Size
		}
		elements += n
	}
	perDevice := float64(elements)
	if view.NumDevices() > 0 {
		perDevice /= float64(view.NumDevices())
	}

	weight := flopsPerElement[op.Kind]
	if weight == 0 {
		weight = 1
	}
	forward := perDevice * weight

	// spec.md §9 Open Question 3: aggregate's backward cost is a known
	// under-estimate (reported as 0, "not implemented" upstream); this
	// is carried forward unchanged rather than special-cased anywhere
	// else in C6/C7.
	backward := forward * 2
	if op.Kind == optypes.Aggregate || op.Kind == optypes.AggregateSpec {
		backward = 0
	}

	memory := perDevice * float64(outputByteSize(op))
	return &CostMetrics{
		ForwardTime:  forward,
		BackwardTime: backward,
		InputMemory:  memory,
		OutputMemory: memory,
	}
}

func outputByteSize(op *pcg.Operator) int {
	if len(op.Outputs) == 0 {
		return 0
	}
	return op.Outputs[0].Shape.DType.ByteSize()
}
