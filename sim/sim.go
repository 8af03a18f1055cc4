// Package sim implements C6, the cost simulator interface: an external
// collaborator contract (spec.md §4.4) plus a reference in-process
// simulator good enough to drive search (C7) and its tests.
package sim

import (
	"math"

	"github.com/williamberman/FlexFlow/assign"
	"github.com/williamberman/FlexFlow/pcg"
)

// Mode is the closed set of execution modes a simulation runs under
// (spec.md §4.4).
type Mode int

const (
	ModeTraining Mode = iota
	ModeInference
)

// MaximumTaskRunTime is the sentinel simulate_runtime returns on OOM
// (spec.md §4.4): a cost so large MCMC always rejects the candidate.
const MaximumTaskRunTime = math.MaxFloat64

// CostMetrics is what measure_operator_cost returns for one operator
// under one machine view (spec.md §4.4).
type CostMetrics struct {
	ForwardTime  float64
	BackwardTime float64
	InputMemory  float64
	OutputMemory float64
}

// Simulator is the external collaborator contract from spec.md §4.4: a
// pure function of (pcg, assignment, mode) with no internal caching
// visible to the search driver (spec.md §9 "Simulator as a pure oracle").
type Simulator interface {
	SimulateRuntime(graph *pcg.PCG, assignment *assign.Assignment, mode Mode) float64
}
