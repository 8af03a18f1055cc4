package main

import (
	"context"
	"math/rand"
	"testing"

	"github.com/williamberman/FlexFlow/assign"
	"github.com/williamberman/FlexFlow/fusion"
	"github.com/williamberman/FlexFlow/lift"
	"github.com/williamberman/FlexFlow/search"
	"github.com/williamberman/FlexFlow/serialize"
	"github.com/williamberman/FlexFlow/sim"
)

func TestBuildDemoGraphLiftsToExpectedOperatorCount(t *testing.T) {
	g := buildDemoGraph(32)
	result, err := lift.Lift(g, lift.Options{OnlyDataParallel: false})
	if err != nil {
		t.Fatalf("lift: %v", err)
	}
	// input, linear, dropout, linear, softmax, noop
	if got, want := len(result.Model.Graph.Operators), 6; got != want {
		t.Fatalf("expected %d operators, got %d", want, got)
	}
}

func TestRunCompilePipelineEndToEnd(t *testing.T) {
	g := buildDemoGraph(16)
	liftResult, err := lift.Lift(g, lift.Options{OnlyDataParallel: true, NumWorkers: 2})
	if err != nil {
		t.Fatalf("lift: %v", err)
	}
	model := liftResult.Model

	searchResult, err := search.Run(context.Background(), rand.New(rand.NewSource(1)), model.Graph, liftResult.TerminalID, sim.ReferenceSimulator{}, search.Options{
		Budget:       20,
		Alpha:        1.2,
		PPropagate:   0.5,
		TotalDevices: 2,
		Mode:         sim.ModeTraining,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	assign.Apply(model.Graph, searchResult.Best)
	fusion.MarkInPlace(model.Graph)

	if err := mapRegions(model.Graph, true); err != nil {
		t.Fatalf("mapRegions: %v", err)
	}

	for _, op := range model.Graph.Operators {
		if op.MachineView == nil {
			continue
		}
		for _, out := range op.Outputs {
			if out.Region == nil {
				t.Fatalf("operator %d (%s) output has no region after mapRegions", op.ID, op.Kind)
			}
		}
		for _, w := range op.Weights {
			if w.Region == nil {
				t.Fatalf("operator %d (%s) weight has no region after mapRegions", op.ID, op.Kind)
			}
		}
	}

	buf, err := serialize.Encode(model)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(buf) == 0 {
		t.Fatalf("expected a non-empty serialized buffer")
	}
}

func TestMapWeightRegionFallsBackToReplicatedMappingForBias(t *testing.T) {
	g := buildDemoGraph(8)
	liftResult, err := lift.Lift(g, lift.Options{OnlyDataParallel: true, NumWorkers: 2})
	if err != nil {
		t.Fatalf("lift: %v", err)
	}
	model := liftResult.Model

	searchResult, err := search.Run(context.Background(), rand.New(rand.NewSource(2)), model.Graph, liftResult.TerminalID, sim.ReferenceSimulator{}, search.Options{
		Budget:       5,
		Alpha:        1.2,
		PPropagate:   0.5,
		TotalDevices: 2,
		Mode:         sim.ModeTraining,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	assign.Apply(model.Graph, searchResult.Best)

	for _, op := range model.Graph.Operators {
		if op.MachineView == nil || len(op.Weights) < 2 {
			continue
		}
		bias := op.Weights[1]
		region, err := mapWeightRegion(op, bias)
		if err != nil {
			t.Fatalf("mapWeightRegion(bias): %v", err)
		}
		if !region.Complete || !region.Disjoint {
			t.Fatalf("expected a complete, disjoint single-point mapping for a replicated bias, got %+v", region)
		}
		return
	}
	t.Fatalf("no operator with 2+ weights and a machine view found")
}
