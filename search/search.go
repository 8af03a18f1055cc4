// Package search implements C7, the MCMC search driver: simulated
// annealing over parallel-config assignments (spec.md §4.5).
package search

import (
	"context"
	"math"
	"math/rand"

	"github.com/williamberman/FlexFlow/assign"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/sim"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options configures one search run (spec.md §4.5 and §6's
// search_budget/search_alpha configuration options).
type Options struct {
	Budget       int
	Alpha        float64
	PPropagate   float64
	TotalDevices int
	Mode         sim.Mode
	Logger       zerolog.Logger
}

// Result is the outcome of a search run.
type Result struct {
	Best     *assign.Assignment
	BestCost float64

	// Iterations is the number of MCMC steps actually taken, which can
	// be less than Options.Budget if ctx was cancelled.
	Iterations int
}

// resetSpan computes R = clamp(B/100, 1, 1000) from spec.md §4.5.
func resetSpan(budget int) int {
	r := budget / 100
	if r < 1 {
		return 1
	}
	if r > 1000 {
		return 1000
	}
	return r
}

// Run executes the simulated-annealing loop from spec.md §4.5. ctx is
// optional cooperative cancellation (spec.md §5 "Cancellation/timeout");
// when ctx is cancelled, Run returns the best assignment found so far,
// non-fatally (SPEC_FULL.md §12.5).
func Run(ctx context.Context, rng *rand.Rand, graph *pcg.PCG, terminalID int, simulator sim.Simulator, opts Options) (*Result, error) {
	initial, err := assign.InitialDataParallel(graph, terminalID, opts.TotalDevices)
	if err != nil {
		return nil, err
	}

	best := initial
	bestCost := simulator.SimulateRuntime(graph, best, opts.Mode)
	current := best
	currentCost := bestCost
	lastReset := 0

	span := resetSpan(opts.Budget)
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: rng}

	iter := 0
	for ; iter < opts.Budget; iter++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				opts.Logger.Info().Int("iterations", iter).Msg("search cancelled, returning best so far")
				return &Result{Best: best, BestCost: bestCost, Iterations: iter}, nil
			default:
			}
		}

		if iter-lastReset >= span {
			current = best
			currentCost = bestCost
			lastReset = iter
		}

		next, err := assign.Rewrite(rng, graph, terminalID, opts.TotalDevices, current, opts.PPropagate)
		if err != nil {
			return nil, err
		}
		nextCost := simulator.SimulateRuntime(graph, next, opts.Mode)

		if nextCost < bestCost {
			best = next
			bestCost = nextCost
		}
		if nextCost < currentCost {
			current = next
			currentCost = nextCost
		} else if uniform.Rand() < math.Exp(-opts.Alpha*(nextCost-currentCost)) {
			current = next
			currentCost = nextCost
		}

		opts.Logger.Debug().Int("iter", iter).Float64("current_cost", currentCost).Float64("best_cost", bestCost).Msg("mcmc step")
	}

	return &Result{Best: best, BestCost: bestCost, Iterations: iter}, nil
}
