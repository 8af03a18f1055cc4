package assign_test

import (
	"math/rand"
	"testing"

	"github.com/williamberman/FlexFlow/assign"
	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/shapes"
)

func dim(size int) shapes.ParallelDim {
	return shapes.ParallelDim{Size: size, Degree: 1, ParallelIdx: -1}
}

func buildChain(t *testing.T) (*pcg.Model, int) {
	t.Helper()
	m := pcg.NewModel()
	inputOp := &pcg.Operator{Kind: optypes.Input}
	m.NewOperator(inputOp)
	inputTensor := m.NewParallelTensor(inputOp.ID, 0)
	inputTensor.Shape = shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(64), dim(128)}, DType: shapes.Float}
	inputOp.Outputs = []*pcg.ParallelTensor{inputTensor}

	linearAttrs := catalog.LinearAttrs{OutChannels: 32}
	linearOp := &pcg.Operator{Kind: optypes.Linear, Attrs: linearAttrs, Inputs: []pcg.TensorRef{{OperatorID: inputOp.ID, Slot: 0}}}
	m.NewOperator(linearOp)
	outShapes, err := catalog.Construct(linearAttrs, []shapes.ParallelTensorShape{inputTensor.Shape})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	linearOut := m.NewParallelTensor(linearOp.ID, 0)
	linearOut.Shape = outShapes[0]
	linearOp.Outputs = []*pcg.ParallelTensor{linearOut}

	noopOp := &pcg.Operator{Kind: optypes.Noop, Attrs: catalog.NoopAttrs{}, Inputs: []pcg.TensorRef{{OperatorID: linearOp.ID, Slot: 0}}}
	m.NewOperator(noopOp)
	noopOut := m.NewParallelTensor(noopOp.ID, 0)
	noopOut.Shape = linearOut.Shape.Clone()
	noopOp.Outputs = []*pcg.ParallelTensor{noopOut}

	return m, noopOp.ID
}

func TestInitialDataParallelAssignsSplittableOperators(t *testing.T) {
	m, terminalID := buildChain(t)
	a, err := assign.InitialDataParallel(m.Graph, terminalID, 4)
	if err != nil {
		t.Fatalf("InitialDataParallel: %v", err)
	}
	if _, ok := a.Get(terminalID); ok {
		t.Fatalf("terminal operator must not receive a config")
	}
	found := false
	for _, op := range m.Graph.Operators {
		if op.Kind == optypes.Linear {
			cfg, ok := a.Get(op.ID)
			if !ok {
				t.Fatalf("expected the linear operator to receive an initial config")
			}
			if cfg.Dims[0] != 4 {
				t.Fatalf("expected degree 4 along the batch dim, got %v", cfg.Dims)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a linear operator in the chain")
	}
}

// TestRewriteNeverProducesInvalidConfig is Testable Property 9:
// config-validity closure.
func TestRewriteNeverProducesInvalidConfig(t *testing.T) {
	m, terminalID := buildChain(t)
	current, err := assign.InitialDataParallel(m.Graph, terminalID, 4)
	if err != nil {
		t.Fatalf("InitialDataParallel: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		next, err := assign.Rewrite(rng, m.Graph, terminalID, 4, current, 0.5)
		if err != nil {
			t.Fatalf("rewrite iteration %d: %v", i, err)
		}
		for _, op := range m.Graph.Operators {
			cfg, ok := next.Get(op.ID)
			if !ok {
				continue
			}
			if err := assign.IsValidConfig(op, cfg, 4); err != nil {
				t.Fatalf("rewrite iteration %d produced an invalid config for operator %d: %v", i, op.ID, err)
			}
		}
		current = next
	}
}

func TestRewriteNeverMutatesTerminal(t *testing.T) {
	m, terminalID := buildChain(t)
	current, err := assign.InitialDataParallel(m.Graph, terminalID, 4)
	if err != nil {
		t.Fatalf("InitialDataParallel: %v", err)
	}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		next, err := assign.RandomRewrite(rng, m.Graph, terminalID, 4, current)
		if err != nil {
			t.Fatalf("random rewrite: %v", err)
		}
		if _, ok := next.Get(terminalID); ok {
			t.Fatalf("terminal operator must never be assigned a config")
		}
		current = next
	}
}
