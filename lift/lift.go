package lift

import (
	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/shapes"
	"github.com/pkg/errors"
)

// Options configures a lift pass (spec.md §6 "only_data_parallel" and the
// worker count it splits the batch dimension across).
type Options struct {
	// OnlyDataParallel, when true, makes every OP_INPUT insert a
	// repartition operator that splits the leading (batch) dimension,
	// dim 0, across NumWorkers devices (spec.md §4.2).
	OnlyDataParallel bool

	// NumWorkers is the repartition degree used when OnlyDataParallel is
	// set.
	NumWorkers int
}

// Result is the output of Lift: the populated model plus the id of the
// terminal operator (spec.md GLOSSARY "Terminal operator"), excluded from
// mutation (C5/C7) and fusion (C9).
type Result struct {
	Model      *pcg.Model
	TerminalID int
}

// Lift implements C3: it walks graph in topological order and builds a PCG
// realizing it under a pure data-parallel assignment (spec.md §4.2).
func Lift(graph *Graph, opts Options) (*Result, error) {
	model := pcg.NewModel()
	// T maps a layer's output slot to the parallel tensor it produced.
	outputs := make(map[LayerRef]*pcg.ParallelTensor, len(graph.Layers))

	var lastPrimary *pcg.ParallelTensor

	for _, layer := range graph.Layers {
		if layer.IsInput() {
			tensor, err := liftInput(model, opts, layer)
			if err != nil {
				return nil, errors.Wrapf(err, "lifting input layer %d", layer.ID)
			}
			outputs[LayerRef{LayerID: layer.ID, Slot: 0}] = tensor
			lastPrimary = tensor
			model.Logger.Info().Int("layer", layer.ID).Str("kind", "input").Msg("lifted layer")
			continue
		}

		inputShapes := make([]shapes.ParallelTensorShape, len(layer.Inputs))
		inputRefs := make([]pcg.TensorRef, len(layer.Inputs))
		for i, ref := range layer.Inputs {
			t, ok := outputs[ref]
			if !ok {
				return nil, errors.Errorf("layer %d input %d references layer %d slot %d before it was lifted",
					layer.ID, i, ref.LayerID, ref.Slot)
			}
			inputShapes[i] = t.Shape
			inputRefs[i] = pcg.TensorRef{OperatorID: t.OwnerOpID, Slot: t.OwnerIdx}
		}

		outShapes, err := catalog.Construct(layer.Attrs, inputShapes)
		if err != nil {
			return nil, errors.Wrapf(err, "constructing layer %d (kind %s)", layer.ID, layer.Attrs.Kind())
		}

		op := &pcg.Operator{
			Kind:          layer.Attrs.Kind(),
			Attrs:         layer.Attrs,
			Inputs:        inputRefs,
			NeedsGradient: make([]bool, len(inputRefs)),
		}
		model.NewOperator(op)
		op.Outputs = make([]*pcg.ParallelTensor, len(outShapes))
		for i, shape := range outShapes {
			t := model.NewParallelTensor(op.ID, i)
			t.Shape = shape
			op.Outputs[i] = t
			outputs[LayerRef{LayerID: layer.ID, Slot: i}] = t
		}
		if len(op.Outputs) > 0 {
			lastPrimary = op.Outputs[0]
		}
		op.Weights = materializeWeights(model, op, inputShapes)
		model.Logger.Info().Int("layer", layer.ID).Str("kind", op.Kind.String()).Msg("lifted layer")
	}

	if lastPrimary == nil {
		return nil, errors.New("lift: layer graph produced no tensors")
	}

	terminal, err := appendTerminalNoop(model, lastPrimary)
	if err != nil {
		return nil, errors.Wrap(err, "appending terminal noop")
	}

	return &Result{Model: model, TerminalID: terminal.ID}, nil
}

// liftInput realizes one OP_INPUT layer: it appends a trailing replica
// dimension to the layer's logical shape, creates a parallel tensor owned
// by a synthetic Input operator, and -- under only_data_parallel -- feeds
// it through a repartition operator that splits the leading (batch)
// dimension, dim 0, across every worker.
func liftInput(model *pcg.Model, opts Options, layer Layer) (*pcg.ParallelTensor, error) {
	dims := make([]shapes.ParallelDim, len(layer.InputShape.Dims))
	for i, size := range layer.InputShape.Dims {
		dims[i] = shapes.ParallelDim{Size: size, Degree: 1, ParallelIdx: -1}
	}
	dims = append(dims, shapes.ParallelDim{Size: 1, Degree: 1, ParallelIdx: -1, IsReplica: true})

	inputOp := &pcg.Operator{Kind: optypes.Input}
	model.NewOperator(inputOp)
	tensor := model.NewParallelTensor(inputOp.ID, 0)
	tensor.Shape = shapes.ParallelTensorShape{Dims: dims, DType: layer.InputShape.DType}
	inputOp.Outputs = []*pcg.ParallelTensor{tensor}

	if !opts.OnlyDataParallel {
		return tensor, nil
	}
	if opts.NumWorkers <= 0 {
		return nil, errors.New("lift: only_data_parallel requires NumWorkers > 0")
	}

	repartitionAttrs := catalog.RepartitionAttrs{Dim: 0, Degree: opts.NumWorkers, ParallelIdx: 0}
	outShapes, err := catalog.Construct(repartitionAttrs, []shapes.ParallelTensorShape{tensor.Shape})
	if err != nil {
		return nil, errors.Wrap(err, "inserting data-parallel repartition")
	}
	repOp := &pcg.Operator{
		Kind:          optypes.Repartition,
		Attrs:         repartitionAttrs,
		Inputs:        []pcg.TensorRef{{OperatorID: inputOp.ID, Slot: 0}},
		NeedsGradient: []bool{false},
	}
	model.NewOperator(repOp)
	repTensor := model.NewParallelTensor(repOp.ID, 0)
	repTensor.Shape = outShapes[0]
	repOp.Outputs = []*pcg.ParallelTensor{repTensor}
	return repTensor, nil
}

// appendTerminalNoop adds the sink operator described in scenario S1 --
// the operator whose output feeds the loss, excluded from mutation (C5/
// C7) and fusion (C9).
func appendTerminalNoop(model *pcg.Model, input *pcg.ParallelTensor) (*pcg.Operator, error) {
	outShapes, err := catalog.Construct(catalog.NoopAttrs{}, []shapes.ParallelTensorShape{input.Shape})
	if err != nil {
		return nil, err
	}
	op := &pcg.Operator{
		Kind:          optypes.Noop,
		Attrs:         catalog.NoopAttrs{},
		Inputs:        []pcg.TensorRef{{OperatorID: input.OwnerOpID, Slot: input.OwnerIdx}},
		NeedsGradient: []bool{false},
	}
	model.NewOperator(op)
	t := model.NewParallelTensor(op.ID, 0)
	t.Shape = outShapes[0]
	op.Outputs = []*pcg.ParallelTensor{t}
	return op, nil
}
