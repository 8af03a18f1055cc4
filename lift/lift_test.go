package lift_test

import (
	"testing"

	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/lift"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/shapes"
)

// TestLiftSingleLinearLayer matches spec.md §8 scenario S1: input
// [batch=64, in=128], Linear(out=64, activation=relu, use_bias=true) on a
// 4-worker machine with only_data_parallel=true should lift to
// {input, repartition(dim=0, degree=4), linear, noop}, with linear's
// output shape [batch=64, out=64] tiled along the batch dim with degree 4.
func TestLiftSingleLinearLayer(t *testing.T) {
	g := &lift.Graph{}
	inputRef := g.AddInput(shapes.Shape{Dims: []int{64, 128}, DType: shapes.Float})
	linearAttrs := catalog.LinearAttrs{OutChannels: 64, Activation: catalog.ActivationRelu, UseBias: true}
	g.AddLayer(linearAttrs, []lift.LayerRef{inputRef}, 1)

	result, err := lift.Lift(g, lift.Options{OnlyDataParallel: true, NumWorkers: 4})
	if err != nil {
		t.Fatalf("lift: %v", err)
	}

	ops := result.Model.Graph.Operators
	if len(ops) != 4 {
		t.Fatalf("expected 4 operators (input, repartition, linear, noop), got %d: %+v", len(ops), kinds(ops))
	}
	wantKinds := []optypes.OpKind{optypes.Input, optypes.Repartition, optypes.Linear, optypes.Noop}
	for i, want := range wantKinds {
		if ops[i].Kind != want {
			t.Fatalf("operator %d: expected kind %s, got %s", i, want, ops[i].Kind)
		}
	}

	linearOut := ops[2].Outputs[0]
	if linearOut.Shape.Dims[0].Size != 64 || linearOut.Shape.Dims[0].Degree != 4 {
		t.Fatalf("expected linear's batch dim to be size 64 tiled degree 4, got %+v", linearOut.Shape.Dims[0])
	}
	if linearOut.Shape.Dims[1].Size != 64 {
		t.Fatalf("expected linear's out dim to be 64, got %d", linearOut.Shape.Dims[1].Size)
	}

	if result.TerminalID != ops[3].ID {
		t.Fatalf("expected the noop operator to be the terminal operator")
	}

	if err := result.Model.Graph.CheckTopologicalSoundness(); err != nil {
		t.Fatalf("lifted graph is not topologically sound: %v", err)
	}
	if err := result.Model.Graph.CheckUniqueOwnership(); err != nil {
		t.Fatalf("lifted graph does not have unique ownership: %v", err)
	}

	linearOp := ops[2]
	if len(linearOp.Weights) != 2 {
		t.Fatalf("expected linear op to carry 2 weights (kernel, bias), got %d", len(linearOp.Weights))
	}
	kernel := linearOp.Weights[0]
	if kernel.Shape.Dims[0].Size != 64 || kernel.Shape.Dims[1].Size != 128 {
		t.Fatalf("expected kernel shape [64,128], got %+v", kernel.Shape.Dims)
	}
	if kernel.Sync != pcg.SyncParameterServer {
		t.Fatalf("expected kernel weight to use parameter-server sync, got %s", kernel.Sync)
	}
	if kernel.Initializer == nil || kernel.Initializer.Kind != pcg.InitializerGlorotUniform {
		t.Fatalf("expected kernel weight to default to glorot-uniform init, got %+v", kernel.Initializer)
	}
	bias := linearOp.Weights[1]
	if bias.Shape.Rank() != 1 || bias.Shape.Dims[0].Size != 64 {
		t.Fatalf("expected bias shape [64], got %+v", bias.Shape.Dims)
	}
}

func kinds(ops []*pcg.Operator) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Kind.String()
	}
	return names
}
