// Package assign implements C5, parallel-config assignment and mutation:
// a map from operator to ParallelConfig, an initial data-parallel
// assignment, and the two mutation primitives C7's MCMC loop proposes
// from (spec.md §4.3).
package assign

import (
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/pkg/errors"
)

// Assignment is a map from operator id to its current ParallelConfig
// (spec.md §4.3 "An assignment is a map from operator to parallel-config").
type Assignment struct {
	Configs map[int]machineview.ParallelConfig
}

// Clone returns a deep, independent copy -- every mutation primitive
// builds its proposal off a clone so the caller's current assignment is
// never mutated in place.
func (a *Assignment) Clone() *Assignment {
	clone := &Assignment{Configs: make(map[int]machineview.ParallelConfig, len(a.Configs))}
	for id, cfg := range a.Configs {
		clone.Configs[id] = cfg.Clone()
	}
	return clone
}

// Get returns the config for operatorID and whether one is assigned.
func (a *Assignment) Get(operatorID int) (machineview.ParallelConfig, bool) {
	cfg, ok := a.Configs[operatorID]
	return cfg, ok
}

// Set assigns cfg to operatorID.
func (a *Assignment) Set(operatorID int, cfg machineview.ParallelConfig) {
	a.Configs[operatorID] = cfg
}

// InitialDataParallel builds the initial assignment described in
// spec.md §4.3: every non-input, non-parallel, non-terminal operator is
// split along its primary output's batch dimension (dim 0, matching
// scenario S1's "parallel config tiles along the batch dim") with degree
// numWorkers; input and parallel operators keep whatever config their
// lift-time construction implies and are left unassigned here.
func InitialDataParallel(graph *pcg.PCG, terminalID int, numWorkers int) (*Assignment, error) {
	if numWorkers <= 0 {
		return nil, errors.New("assign: numWorkers must be positive")
	}
	a := &Assignment{Configs: make(map[int]machineview.ParallelConfig)}
	for _, op := range graph.Operators {
		if op.ID == terminalID || op.IsParallelOp() || op.Kind == optypes.Input || len(op.Outputs) == 0 {
			continue
		}
		shape := op.Outputs[0].Shape
		if shape.Rank() == 0 || shape.Dims[0].IsReplica {
			continue
		}
		deviceIDs := make([]int, numWorkers)
		for i := range deviceIDs {
			deviceIDs[i] = i
		}
		cfg := machineview.MakeConfig([]int{numWorkers}, deviceIDs)
		if err := IsValidConfig(op, cfg, numWorkers); err != nil {
			continue
		}
		a.Set(op.ID, cfg)
	}
	return a, nil
}

// Apply stamps a's configs onto graph's operators: each assigned
// operator's Config is set to its ParallelConfig and its MachineView to
// that config's ToMachineView() (spec.md §4.5 "the search driver's
// winning assignment becomes the operator's chosen machine view" --
// consulted downstream by fusion's co-location test and by regionmap).
// Operators with no entry in a (input/parallel/terminal operators, per
// InitialDataParallel) are left untouched.
func Apply(graph *pcg.PCG, a *Assignment) {
	for _, op := range graph.Operators {
		cfg, ok := a.Get(op.ID)
		if !ok {
			continue
		}
		view := cfg.ToMachineView()
		op.Config = &cfg
		op.MachineView = &view
	}
}

// IsValidConfig checks the validity rule from spec.md §4.3: dimension
// count matches a config addressable shape, degrees divide the
// corresponding output dimension sizes, and device-id count equals the
// product of degrees.
func IsValidConfig(op *pcg.Operator, cfg machineview.ParallelConfig, totalDevices int) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrapf(err, "operator %d (%s)", op.ID, op.Kind)
	}
	if len(op.Outputs) == 0 {
		return errors.Errorf("operator %d (%s) has no outputs to partition", op.ID, op.Kind)
	}
	shape := op.Outputs[0].Shape
	if cfg.NDims() > shape.Rank() {
		return errors.Errorf("operator %d (%s): config has %d dims, output only has rank %d",
			op.ID, op.Kind, cfg.NDims(), shape.Rank())
	}
	if cfg.NumPoints() > totalDevices {
		return errors.Errorf("operator %d (%s): config needs %d devices, only %d available",
			op.ID, op.Kind, cfg.NumPoints(), totalDevices)
	}
	for i, degree := range cfg.Dims {
		d := shape.Dims[i]
		if d.IsReplica {
			if degree != 1 {
				return errors.Errorf("operator %d (%s): config dim %d splits a replica dimension", op.ID, op.Kind, i)
			}
			continue
		}
		if d.Size%degree != 0 {
			return errors.Errorf("operator %d (%s): degree %d does not divide dim %d size %d",
				op.ID, op.Kind, degree, i, d.Size)
		}
	}
	return nil
}
