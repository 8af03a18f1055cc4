package sim

import (
	"github.com/williamberman/FlexFlow/assign"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
)

// TransferBytesPerSecond is the reference simulator's flat network
// bandwidth model for edges crossing between two distinct machine views.
const TransferBytesPerSecond = 1e10

// ReferenceSimulator is a small, deterministic in-process implementation
// of the Simulator contract: it sums MeasureOperatorCost across every
// operator plus a flat-bandwidth transfer cost for every edge whose
// producer and consumer sit on different machine views. It exists to
// drive C7's search and its own tests without requiring the external
// runtime's actual simulator.
type ReferenceSimulator struct{}

var _ Simulator = ReferenceSimulator{}

// SimulateRuntime implements Simulator.
func (ReferenceSimulator) SimulateRuntime(graph *pcg.PCG, assignment *assign.Assignment, mode Mode) float64 {
	var total float64
	views := viewsFor(graph, assignment)

	for _, op := range graph.Operators {
		view := views[op.ID]
		metrics := MeasureOperatorCost(op, view)
		if metrics == nil {
			return MaximumTaskRunTime
		}
		total += metrics.ForwardTime
		if mode == ModeTraining {
			total += metrics.BackwardTime
		}

		for _, ref := range op.Inputs {
			producer := graph.OperatorByID(ref.OperatorID)
			if producer == nil {
				continue
			}
			producerView := views[producer.ID]
			if producerView.Equal(view) {
				continue
			}
			tensor := graph.Lookup(ref)
			if tensor == nil {
				continue
			}
			total += transferCost(tensor.Shape.DType.ByteSize(), tensor.Shape.LogicalShape().NumElements())
		}
	}
	return total
}

func viewsFor(graph *pcg.PCG, assignment *assign.Assignment) map[int]machineview.MachineView {
	views := make(map[int]machineview.MachineView, len(graph.Operators))
	for _, op := range graph.Operators {
		if op.MachineView != nil {
			views[op.ID] = *op.MachineView
			continue
		}
		if cfg, ok := assignment.Get(op.ID); ok {
			views[op.ID] = cfg.ToMachineView()
			continue
		}
		views[op.ID] = machineview.Make(1)
	}
	return views
}

func transferCost(byteSize int, numElements int) float64 {
	bytes := float64(numElements * byteSize)
	return bytes / TransferBytesPerSecond
}
