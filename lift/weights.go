package lift

import (
	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/shapes"
)

// materializeWeights builds the weight tensors an operator's attrs imply
// (spec.md §3 "Parallel tensor": weight tensors carry an Initializer and a
// Sync mode, neither of which apply to ordinary activations). Only Linear,
// Conv2D, and Embedding currently own weights; every other kind returns nil.
func materializeWeights(model *pcg.Model, op *pcg.Operator, inputShapes []shapes.ParallelTensorShape) []*pcg.ParallelTensor {
	switch a := op.Attrs.(type) {
	case catalog.LinearAttrs:
		inChannels := featureDimSize(inputShapes[0])
		w := newWeight(model, op, 0, []int{a.OutChannels, inChannels}, inputShapes[0].DType)
		if !a.UseBias {
			return []*pcg.ParallelTensor{w}
		}
		b := newWeight(model, op, 1, []int{a.OutChannels}, inputShapes[0].DType)
		return []*pcg.ParallelTensor{w, b}

	case catalog.Conv2DAttrs:
		inChannels := convInChannels(inputShapes[0])
		groups := a.Groups
		if groups < 1 {
			groups = 1
		}
		w := newWeight(model, op, 0, []int{a.OutChannels, inChannels / groups, a.KernelH, a.KernelW}, inputShapes[0].DType)
		if !a.UseBias {
			return []*pcg.ParallelTensor{w}
		}
		b := newWeight(model, op, 1, []int{a.OutChannels}, inputShapes[0].DType)
		return []*pcg.ParallelTensor{w, b}

	case catalog.EmbeddingAttrs:
		w := newWeight(model, op, 0, []int{a.NumEntries, a.OutDim}, shapes.Float)
		return []*pcg.ParallelTensor{w}

	default:
		return nil
	}
}

// newWeight allocates a weight-owned parallel tensor: every dimension is
// unsplit (degree 1, parallel_idx -1) at lift time -- C5/C7 are free to
// propose a partitioned config for it later -- synced via a parameter
// server (spec.md §3), and initialized with Glorot-uniform, the default
// the original FlexFlow core applies to Linear/Conv2D/Embedding weights
// when the caller names no initializer.
func newWeight(model *pcg.Model, op *pcg.Operator, slot int, dims []int, dtype shapes.DataType) *pcg.ParallelTensor {
	pdims := make([]shapes.ParallelDim, len(dims))
	for i, size := range dims {
		pdims[i] = shapes.ParallelDim{Size: size, Degree: 1, ParallelIdx: -1}
	}
	w := model.NewParallelTensor(op.ID, slot)
	w.Shape = shapes.ParallelTensorShape{Dims: pdims, DType: dtype}
	w.Sync = pcg.SyncParameterServer
	w.Initializer = &pcg.InitializerDescriptor{Kind: pcg.InitializerGlorotUniform}
	return w
}

// featureDimSize returns the size of the last non-replica dimension of
// shape, the convention catalog.Construct's Linear rule uses to determine
// a layer's input feature count.
func featureDimSize(shape shapes.ParallelTensorShape) int {
	for i := len(shape.Dims) - 1; i >= 0; i-- {
		if !shape.Dims[i].IsReplica {
			return shape.Dims[i].Size
		}
	}
	return 0
}

// convInChannels returns the channel dimension of a Conv2D input shape,
// assumed to be dimension 1 (NCHW, matching catalog.Construct's Conv2D rule).
func convInChannels(shape shapes.ParallelTensorShape) int {
	if len(shape.Dims) < 2 {
		return 0
	}
	return shape.Dims[1].Size
}
