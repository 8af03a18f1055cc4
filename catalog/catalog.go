package catalog

import (
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/types/shapes"
	"github.com/pkg/errors"
)

// IsValid is the validity predicate `is_valid(inputs, attrs)` from
// spec.md §4.1 point 2: it reports whether Infer accepts the shapes,
// running the full inference and discarding the output shapes.
func IsValid(attrs Attrs, inputs []shapes.ParallelTensorShape) bool {
	_, err := Infer(attrs, inputs)
	return err == nil
}

// Construct is the catalog's "given attributes + input shapes, construct
// an operator" entry point (spec.md §4.1 "single sum-typed entry point").
// It validates and infers the operator's output parallel tensor shapes;
// the pcg package wraps the result into an Operator with an owner id.
func Construct(attrs Attrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	return Infer(attrs, inputs)
}

// ParamsOf extracts the attribute record to use for graph rewrites and
// memoization. Per spec.md §9 Open Question 2, optypes.Noop does not
// participate in memoization/rewrite passes: ParamsOf returns nil for it,
// and callers must treat a nil ParamsOf as "never eligible for memoized
// reuse". The fusion pass does not call ParamsOf; it excludes noop
// operators directly (fusibleAsSeed).
func ParamsOf(attrs Attrs) Attrs {
	if attrs.Kind() == optypes.Noop {
		return nil
	}
	return attrs
}

// Infer is the output-shape function `infer(inputs, attrs) -> outputs[]`
// from spec.md §4.1 point 3. It dispatches on the concrete type of attrs
// (the sum-typed tag), matching each operator kind to its own inference
// rule -- the generalization of the teacher's shapeinference package
// (BinaryOp/UnaryOp-style dispatch, see DESIGN.md).
func Infer(attrs Attrs, inputs []shapes.ParallelTensorShape) ([]shapes.ParallelTensorShape, error) {
	switch a := attrs.(type) {
	case LinearAttrs:
		return inferLinear(a, inputs)
	case Conv2DAttrs:
		return inferConv2D(a, inputs)
	case ElementBinaryAttrs:
		return inferElementBinary(a, inputs)
	case ElementUnaryAttrs:
		return inferElementUnary(a, inputs)
	case ConcatAttrs:
		return inferConcat(a, inputs)
	case Pool2DAttrs:
		return inferPool2D(a, inputs)
	case CastAttrs:
		return inferCast(a, inputs)
	case DropoutAttrs:
		return inferIdentity(inputs)
	case EmbeddingAttrs:
		return inferEmbedding(a, inputs)
	case FlatAttrs:
		return inferFlat(inputs)
	case GatherAttrs:
		return inferGather(a, inputs)
	case MultiHeadAttentionAttrs:
		return inferMultiHeadAttention(a, inputs)
	case LayerNormAttrs:
		return inferIdentity(inputs)
	case ReduceSumAttrs:
		return inferReduceSum(a, inputs)
	case ReshapeAttrs:
		return inferReshape(a, inputs)
	case SoftmaxAttrs:
		return inferSoftmax(a, inputs)
	case TransposeAttrs:
		return inferTranspose(a, inputs)
	case BatchMatmulAttrs:
		return inferBatchMatmul(a, inputs)
	case SplitAttrs:
		return inferSplit(a, inputs)
	case TopKAttrs:
		return inferTopK(a, inputs)
	case GroupByAttrs:
		return inferGroupBy(a, inputs)
	case AggregateAttrs:
		return inferAggregate(a.AggregationCommon, inputs)
	case AggregateSpecAttrs:
		return inferAggregate(a.AggregationCommon, inputs)
	case NoopAttrs:
		return inferIdentity(inputs)
	case RepartitionAttrs:
		return inferRepartition(a, inputs)
	case ReplicateAttrs:
		return inferReplicate(a, inputs)
	case ReductionAttrs:
		return inferReduction(a, inputs)
	case CombineAttrs:
		return inferCombine(a, inputs)
	case FusedParallelAttrs:
		return inferFusedParallel(a, inputs)
	default:
		return nil, errors.Errorf("catalog: unsupported attrs type %T", attrs)
	}
}

func requireInputCount(inputs []shapes.ParallelTensorShape, n int, opName string) error {
	if len(inputs) != n {
		return errors.Errorf("%s expects %d input(s), got %d", opName, n, len(inputs))
	}
	return nil
}

// replicatedDim builds a fully-replicated (unsplit) parallel dim of the
// given logical size -- the default for any output dimension that cannot
// inherit partitioning from an input.
func replicatedDim(size int) shapes.ParallelDim {
	return shapes.ParallelDim{Size: size, Degree: 1, ParallelIdx: -1}
}
