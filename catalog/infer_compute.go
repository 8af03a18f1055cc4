package catalog

import (
	"slices"

	"github.com/williamberman/FlexFlow/types/shapes"
	"github.com/pkg/errors"
)

func inferLinear(a LinearAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "linear"); err != nil {
		return nil, err
	}
	if a.OutChannels <= 0 {
		return nil, errors.New("linear: out_channels must be positive")
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if len(logical) < 1 {
		return nil, errors.New("linear: input must have at least one non-replica dimension")
	}
	out := slices.Clone(logical)
	out[len(out)-1] = replicatedDim(a.OutChannels)
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferConv2D(a Conv2DAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "conv2d"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if len(logical) != 4 {
		return nil, errors.Errorf("conv2d: expected a 4D input (N,C,H,W), got rank %d", len(logical))
	}
	if a.Groups <= 0 {
		return nil, errors.New("conv2d: groups must be positive")
	}
	n, _, h, w := logical[0], logical[1], logical[2], logical[3]
	outH := (h.Size+2*a.PaddingH-a.KernelH)/a.StrideH + 1
	outW := (w.Size+2*a.PaddingW-a.KernelW)/a.StrideW + 1
	if outH <= 0 || outW <= 0 {
		return nil, errors.New("conv2d: kernel/stride/padding produce a non-positive output extent")
	}
	out := []shapes.ParallelDim{
		n,
		replicatedDim(a.OutChannels),
		replicatedDim(outH),
		replicatedDim(outW),
	}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferElementBinary(a ElementBinaryAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 2, "element-binary"); err != nil {
		return nil, err
	}
	lhs, rhs := inputs[0], inputs[1]
	if !slices.Equal(logicalSizes(lhs.Dims), logicalSizes(rhs.Dims)) {
		return nil, errors.Errorf("element-binary %s: shape mismatch %v vs %v", a.kind, lhs, rhs)
	}
	return []shapes.ParallelTensorShape{lhs.Clone()}, nil
}

func inferElementUnary(a ElementUnaryAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "element-unary"); err != nil {
		return nil, err
	}
	return []shapes.ParallelTensorShape{inputs[0].Clone()}, nil
}

func inferIdentity(inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if len(inputs) == 0 {
		return nil, errors.New("identity-shaped operator requires at least one input")
	}
	return []shapes.ParallelTensorShape{inputs[0].Clone()}, nil
}

func inferConcat(a ConcatAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if len(inputs) < 1 {
		return nil, errors.New("concat requires at least one input")
	}
	logical0, tail := splitTrailingReplica(inputs[0].Dims)
	if a.Axis < 0 || a.Axis >= len(logical0) {
		return nil, errors.Errorf("concat: axis %d out of range for rank %d", a.Axis, len(logical0))
	}
	out := slices.Clone(logical0)
	total := out[a.Axis].Size
	for _, in := range inputs[1:] {
		logical, _ := splitTrailingReplica(in.Dims)
		if len(logical) != len(logical0) {
			return nil, errors.New("concat: all inputs must have the same rank")
		}
		for i, d := range logical {
			if i == a.Axis {
				continue
			}
			if d.Size != out[i].Size {
				return nil, errors.Errorf("concat: dim %d size mismatch %d vs %d", i, d.Size, out[i].Size)
			}
		}
		total += logical[a.Axis].Size
	}
	out[a.Axis] = replicatedDim(total)
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferPool2D(a Pool2DAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "pool2d"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if len(logical) != 4 {
		return nil, errors.Errorf("pool2d: expected a 4D input (N,C,H,W), got rank %d", len(logical))
	}
	n, c, h, w := logical[0], logical[1], logical[2], logical[3]
	outH := (h.Size+2*a.PaddingH-a.KernelH)/a.StrideH + 1
	outW := (w.Size+2*a.PaddingW-a.KernelW)/a.StrideW + 1
	if outH <= 0 || outW <= 0 {
		return nil, errors.New("pool2d: kernel/stride/padding produce a non-positive output extent")
	}
	out := []shapes.ParallelDim{n, c, replicatedDim(outH), replicatedDim(outW)}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferCast(a CastAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "cast"); err != nil {
		return nil, err
	}
	if !a.DType.IsValid() {
		return nil, errors.New("cast: target data type is invalid")
	}
	out := inputs[0].Clone()
	out.DType = a.DType
	return []shapes.ParallelTensorShape{out}, nil
}

func inferEmbedding(a EmbeddingAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "embedding"); err != nil {
		return nil, err
	}
	if a.NumEntries <= 0 || a.OutDim <= 0 {
		return nil, errors.New("embedding: num_entries and out_dim must be positive")
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	out := append(slices.Clone(logical), replicatedDim(a.OutDim))
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: shapes.Float}}, nil
}

func inferFlat(inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "flat"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if len(logical) < 1 {
		return nil, errors.New("flat: input must have at least one non-replica dimension")
	}
	flatSize := 1
	for _, d := range logical[1:] {
		flatSize *= d.Size
	}
	out := []shapes.ParallelDim{logical[0], replicatedDim(flatSize)}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferGather(a GatherAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 2, "gather"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if a.Axis < 0 || a.Axis >= len(logical) {
		return nil, errors.Errorf("gather: axis %d out of range for rank %d", a.Axis, len(logical))
	}
	indexLogical, _ := splitTrailingReplica(inputs[1].Dims)
	if len(indexLogical) == 0 {
		return nil, errors.New("gather: index tensor must have at least one dimension")
	}
	out := slices.Clone(logical)
	out[a.Axis] = replicatedDim(indexLogical[len(indexLogical)-1].Size)
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferMultiHeadAttention(a MultiHeadAttentionAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 3, "multihead_attention"); err != nil {
		return nil, err
	}
	if a.NumHeads <= 0 {
		return nil, errors.New("multihead_attention: num_heads must be positive")
	}
	query, _ := splitTrailingReplica(inputs[0].Dims)
	_, tail := splitTrailingReplica(inputs[0].Dims)
	if len(query) < 2 {
		return nil, errors.New("multihead_attention: query must have rank >= 2 (batch, seq, ...)")
	}
	out := slices.Clone(query)
	out[len(out)-1] = replicatedDim(a.NumHeads * a.VDim)
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferReduceSum(a ReduceSumAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "reduce_sum"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	reduced := utilsSetFromInts(a.Axes)
	var out []shapes.ParallelDim
	for i, d := range logical {
		if reduced[i] {
			if a.KeepDims {
				out = append(out, replicatedDim(1))
			}
			continue
		}
		out = append(out, d)
	}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferReshape(a ReshapeAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "reshape"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	inNum := 1
	for _, d := range logical {
		inNum *= d.Size
	}
	outNum := 1
	for _, s := range a.TargetShape {
		outNum *= s
	}
	if inNum != outNum {
		return nil, errors.Errorf("reshape: element count mismatch, %d vs %d", inNum, outNum)
	}
	out := make([]shapes.ParallelDim, len(a.TargetShape))
	for i, s := range a.TargetShape {
		out[i] = replicatedDim(s)
	}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferSoftmax(a SoftmaxAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "softmax"); err != nil {
		return nil, err
	}
	logical, _ := splitTrailingReplica(inputs[0].Dims)
	if a.Axis < 0 || a.Axis >= len(logical) {
		return nil, errors.Errorf("softmax: axis %d out of range for rank %d", a.Axis, len(logical))
	}
	return []shapes.ParallelTensorShape{inputs[0].Clone()}, nil
}

func inferTranspose(a TransposeAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "transpose"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if len(a.Permutation) != len(logical) {
		return nil, errors.Errorf("transpose: permutation length %d does not match rank %d", len(a.Permutation), len(logical))
	}
	seen := utilsSetFromInts(a.Permutation)
	if len(seen) != len(logical) {
		return nil, errors.New("transpose: permutation must be a bijection over the input axes")
	}
	out := make([]shapes.ParallelDim, len(logical))
	for i, p := range a.Permutation {
		out[i] = logical[p]
	}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferBatchMatmul(a BatchMatmulAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 2, "batch_matmul"); err != nil {
		return nil, err
	}
	lhs, tail := splitTrailingReplica(inputs[0].Dims)
	rhs, _ := splitTrailingReplica(inputs[1].Dims)
	if len(lhs) < 2 || len(rhs) < 2 || len(lhs) != len(rhs) {
		return nil, errors.New("batch_matmul: both inputs must share the same rank >= 2")
	}
	m, k := lhs[len(lhs)-2], lhs[len(lhs)-1]
	k2, n := rhs[len(rhs)-2], rhs[len(rhs)-1]
	if a.TransposeA {
		m, k = k, m
	}
	if a.TransposeB {
		k2, n = n, k2
	}
	if k.Size != k2.Size {
		return nil, errors.Errorf("batch_matmul: inner dims mismatch %d vs %d", k.Size, k2.Size)
	}
	out := slices.Clone(lhs[:len(lhs)-2])
	out = append(out, m, replicatedDim(n.Size))
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[0].DType}}, nil
}

func inferSplit(a SplitAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "split"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if a.Axis < 0 || a.Axis >= len(logical) {
		return nil, errors.Errorf("split: axis %d out of range for rank %d", a.Axis, len(logical))
	}
	total := 0
	for _, s := range a.Sizes {
		total += s
	}
	if total != logical[a.Axis].Size {
		return nil, errors.Errorf("split: sizes sum to %d, expected %d", total, logical[a.Axis].Size)
	}
	outputs := make([]shapes.ParallelTensorShape, len(a.Sizes))
	for i, s := range a.Sizes {
		out := slices.Clone(logical)
		out[a.Axis] = replicatedDim(s)
		outputs[i] = shapes.ParallelTensorShape{Dims: withTail(out, tail), DType: inputs[0].DType}
	}
	return outputs, nil
}

func inferTopK(a TopKAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 1, "topk"); err != nil {
		return nil, err
	}
	logical, tail := splitTrailingReplica(inputs[0].Dims)
	if a.Axis < 0 || a.Axis >= len(logical) {
		return nil, errors.Errorf("topk: axis %d out of range for rank %d", a.Axis, len(logical))
	}
	if a.K <= 0 || a.K > logical[a.Axis].Size {
		return nil, errors.Errorf("topk: k=%d out of range for axis size %d", a.K, logical[a.Axis].Size)
	}
	values := slices.Clone(logical)
	values[a.Axis] = replicatedDim(a.K)
	indices := slices.Clone(values)
	return []shapes.ParallelTensorShape{
		{Dims: withTail(values, tail), DType: inputs[0].DType},
		{Dims: withTail(indices, tail), DType: shapes.Int32},
	}, nil
}

func inferGroupBy(a GroupByAttrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if len(inputs) < 2 {
		return nil, errors.New("group_by requires at least a data tensor and an assignment tensor")
	}
	if a.N <= 0 {
		return nil, errors.New("group_by: n must be positive")
	}
	data, tail := splitTrailingReplica(inputs[0].Dims)
	if len(data) < 1 {
		return nil, errors.New("group_by: data tensor must have at least one dimension")
	}
	outputs := make([]shapes.ParallelTensorShape, a.N)
	for i := range outputs {
		outputs[i] = shapes.ParallelTensorShape{Dims: withTail(slices.Clone(data), tail), DType: inputs[0].DType}
	}
	return outputs, nil
}

// inferAggregate implements spec.md §8 scenario S2: gate_preds, gate_assign,
// true_gate_assign, full_gate, plus n expert tensors, each shaped
// [out, rows, 1]; the output is [out, batch, 1] where batch is full_gate's
// second dimension.
func inferAggregate(a AggregationCommon, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	if err := requireInputCount(inputs, 4+a.N, "aggregate"); err != nil {
		return nil, err
	}
	fullGate, tail := splitTrailingReplica(inputs[3].Dims)
	if len(fullGate) < 2 {
		return nil, errors.New("aggregate: full_gate must have rank >= 2")
	}
	batch := fullGate[1]
	expert0, _ := splitTrailingReplica(inputs[4].Dims)
	if len(expert0) < 1 {
		return nil, errors.New("aggregate: expert tensors must have at least one dimension")
	}
	out := []shapes.ParallelDim{expert0[0], batch, replicatedDim(1)}
	return []shapes.ParallelTensorShape{{Dims: withTail(out, tail), DType: inputs[4].DType}}, nil
}

func utilsSetFromInts(values []int) map[int]bool {
	m := make(map[int]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
