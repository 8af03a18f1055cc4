package assign

import (
	"math/rand"

	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// ContinueProbability is CONTINUE_PROPAGATION_CHANCE from spec.md §4.3:
// after adopting a neighbor's config during a propagation rewrite, the
// walk continues with this probability.
const ContinueProbability = 0.7

// SizeWeight balances edge volume against the PCG's mean edge volume when
// drawing the next neighbor in a propagation rewrite (spec.md §4.3).
const SizeWeight = 0.7

// eligibleOperators returns every operator a mutation may target: not the
// terminal, not a parallel (data-movement) operator, and not the
// synthetic input leaf -- mirroring spec.md §4.3 "Terminal ... operator
// is never mutated" generalized to every operator kind C5 does not own a
// meaningful config for.
func eligibleOperators(graph *pcg.PCG, terminalID int) []*pcg.Operator {
	var eligible []*pcg.Operator
	for _, op := range graph.Operators {
		if op.ID == terminalID || op.IsParallelOp() || op.Kind == optypes.Input || len(op.Outputs) == 0 {
			continue
		}
		eligible = append(eligible, op)
	}
	return eligible
}

// Rewrite proposes a new assignment from current by picking, with
// probability pPropagate, a propagation rewrite, and otherwise a random
// rewrite (spec.md §4.3, §4.5 "rewrite(current)"). It never returns an
// assignment containing an invalid config: both primitives resample
// internally until they find one, satisfying Testable Property 9.
func Rewrite(rng *rand.Rand, graph *pcg.PCG, terminalID int, totalDevices int, current *Assignment, pPropagate float64) (*Assignment, error) {
	draw := distuv.Uniform{Min: 0, Max: 1, Src: rng}.Rand()
	if draw < pPropagate {
		return PropagationRewrite(rng, graph, terminalID, totalDevices, current)
	}
	return RandomRewrite(rng, graph, terminalID, totalDevices, current)
}

// RandomRewrite implements spec.md §4.3's default mutation primitive: pick
// a uniformly random non-terminal operator and replace its config with a
// fresh random valid config.
func RandomRewrite(rng *rand.Rand, graph *pcg.PCG, terminalID int, totalDevices int, current *Assignment) (*Assignment, error) {
	eligible := eligibleOperators(graph, terminalID)
	if len(eligible) == 0 {
		return nil, errors.New("assign: no eligible operator to mutate")
	}
	target := eligible[rng.Intn(len(eligible))]

	next := current.Clone()
	cfg, err := randomValidConfig(rng, target, totalDevices)
	if err != nil {
		return nil, errors.Wrapf(err, "random rewrite of operator %d", target.ID)
	}
	next.Set(target.ID, cfg)
	return next, nil
}

// PropagationRewrite implements spec.md §4.3's edge-propagation mutator: a
// random walk from a random starting operator, at each step adopting a
// neighbor's config when it is "adoptable" (same dimensionality under
// data-parallel reduction), weighted by edge volume, continuing with
// probability ContinueProbability.
func PropagationRewrite(rng *rand.Rand, graph *pcg.PCG, terminalID int, totalDevices int, current *Assignment) (*Assignment, error) {
	eligible := eligibleOperators(graph, terminalID)
	if len(eligible) == 0 {
		return nil, errors.New("assign: no eligible operator to mutate")
	}
	next := current.Clone()
	op := eligible[rng.Intn(len(eligible))]

	for {
		// The walk stops before it would write a config onto an operator
		// eligibleOperators excludes.
		if op.ID == terminalID || op.IsParallelOp() || op.Kind == optypes.Input {
			break
		}
		neighbors := adoptableNeighbors(graph, op, next)
		if len(neighbors) == 0 {
			break
		}
		chosen := weightedChoice(rng, graph, neighbors)
		cfg, ok := next.Get(chosen.ID)
		if !ok {
			var err error
			cfg, err = randomValidConfig(rng, chosen, totalDevices)
			if err != nil {
				return nil, errors.Wrapf(err, "propagation rewrite seeding operator %d", chosen.ID)
			}
		}
		if err := IsValidConfig(op, cfg, totalDevices); err != nil {
			break
		}
		next.Set(op.ID, cfg)
		op = chosen
		if (distuv.Uniform{Min: 0, Max: 1, Src: rng}).Rand() >= ContinueProbability {
			break
		}
	}
	return next, nil
}

// adoptableNeighbors returns op's input/output neighbors whose config has
// the same dimensionality as op's current config -- the "adoptable"
// relation from spec.md §4.3.
func adoptableNeighbors(graph *pcg.PCG, op *pcg.Operator, current *Assignment) []*pcg.Operator {
	selfCfg, hasSelf := current.Get(op.ID)
	var neighbors []*pcg.Operator
	for _, ref := range op.Inputs {
		if owner := graph.OperatorByID(ref.OperatorID); owner != nil {
			neighbors = append(neighbors, owner)
		}
	}
	for _, candidate := range graph.Operators {
		for _, ref := range candidate.Inputs {
			if ref.OperatorID == op.ID {
				neighbors = append(neighbors, candidate)
			}
		}
	}
	if !hasSelf {
		return neighbors
	}
	var adoptable []*pcg.Operator
	for _, n := range neighbors {
		cfg, ok := current.Get(n.ID)
		if ok && cfg.NDims() == selfCfg.NDims() {
			adoptable = append(adoptable, n)
		}
	}
	return adoptable
}

// weightedChoice draws one neighbor weighted by
// size_weight*edge_volume + (1-size_weight)*mean_edge_volume
// (spec.md §4.3).
func weightedChoice(rng *rand.Rand, graph *pcg.PCG, neighbors []*pcg.Operator) *pcg.Operator {
	volumes := make([]float64, len(neighbors))
	var total float64
	for i, n := range neighbors {
		volumes[i] = edgeVolume(n)
		total += volumes[i]
	}
	mean := total / float64(len(neighbors))

	weights := make([]float64, len(neighbors))
	var weightTotal float64
	for i, v := range volumes {
		weights[i] = SizeWeight*v + (1-SizeWeight)*mean
		weightTotal += weights[i]
	}
	if weightTotal <= 0 {
		return neighbors[rng.Intn(len(neighbors))]
	}
	draw := distuv.Uniform{Min: 0, Max: weightTotal, Src: rng}.Rand()
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if draw <= cumulative {
			return neighbors[i]
		}
	}
	return neighbors[len(neighbors)-1]
}

// edgeVolume estimates the data volume crossing an operator's primary
// output edge -- element count times data-type byte size.
func edgeVolume(op *pcg.Operator) float64 {
	if len(op.Outputs) == 0 {
		return 0
	}
	shape := op.Outputs[0].Shape
	volume := 1
	for _, d := range shape.Dims {
		volume *= d.Size
	}
	return float64(volume * shape.DType.ByteSize())
}

// randomValidConfig builds a config splitting one of op's non-replica
// output dimensions by a random divisor of its size, resampling until it
// passes IsValidConfig.
func randomValidConfig(rng *rand.Rand, op *pcg.Operator, totalDevices int) (machineview.ParallelConfig, error) {
	if len(op.Outputs) == 0 {
		return machineview.ParallelConfig{}, errors.Errorf("operator %d (%s) has no outputs", op.ID, op.Kind)
	}
	shape := op.Outputs[0].Shape
	var candidateDims []int
	for i, d := range shape.Dims {
		if !d.IsReplica {
			candidateDims = append(candidateDims, i)
		}
	}
	if len(candidateDims) == 0 {
		return machineview.ParallelConfig{}, errors.Errorf("operator %d (%s) has no splittable dimension", op.ID, op.Kind)
	}

	const maxAttempts = 64
	for attempt := 0; attempt < maxAttempts; attempt++ {
		dimIdx := candidateDims[rng.Intn(len(candidateDims))]
		size := shape.Dims[dimIdx].Size
		divisors := divisorsUpTo(size, totalDevices)
		if len(divisors) == 0 {
			continue
		}
		degree := divisors[rng.Intn(len(divisors))]
		deviceIDs := make([]int, degree)
		for i := range deviceIDs {
			deviceIDs[i] = i
		}
		cfg := machineview.MakeConfig([]int{degree}, deviceIDs)
		// randomValidConfig only ever targets one dimension (dimIdx), so
		// shift the produced 1-D config to address that axis by padding
		// the other axes with degree 1.
		cfg = expandToDim(cfg, dimIdx, len(shape.Dims))
		if err := IsValidConfig(op, cfg, totalDevices); err == nil {
			return cfg, nil
		}
	}
	return machineview.ParallelConfig{}, errors.Errorf("could not find a valid config for operator %d (%s) after %d attempts",
		op.ID, op.Kind, maxAttempts)
}

// expandToDim places a single-axis degree at position dimIdx within a
// rank-sized config, degree 1 (and device id 0) everywhere else.
func expandToDim(single machineview.ParallelConfig, dimIdx, rank int) machineview.ParallelConfig {
	dims := make([]int, rank)
	for i := range dims {
		dims[i] = 1
	}
	dims[dimIdx] = single.Dims[0]
	return machineview.MakeConfig(dims, single.DeviceIDs)
}

// divisorsUpTo returns every divisor of n that is <= limit.
func divisorsUpTo(n, limit int) []int {
	var divisors []int
	for d := 1; d <= n && d <= limit; d++ {
		if n%d == 0 {
			divisors = append(divisors, d)
		}
	}
	return divisors
}
