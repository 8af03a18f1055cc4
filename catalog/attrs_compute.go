package catalog

import (
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/types/shapes"
)

// LinearAttrs is the attribute record for optypes.Linear.
type LinearAttrs struct {
	OutChannels int
	Activation  ActivationKind
	UseBias     bool
}

func (a LinearAttrs) Kind() optypes.OpKind { return optypes.Linear }
func (a LinearAttrs) Equal(other Attrs) bool {
	o, ok := other.(LinearAttrs)
	return ok && a == o
}

// Conv2DAttrs is the attribute record for optypes.Conv2D.
type Conv2DAttrs struct {
	OutChannels        int
	KernelH, KernelW   int
	StrideH, StrideW   int
	PaddingH, PaddingW int
	Groups             int
	Activation         ActivationKind
	UseBias            bool
}

func (a Conv2DAttrs) Kind() optypes.OpKind { return optypes.Conv2D }
func (a Conv2DAttrs) Equal(other Attrs) bool {
	o, ok := other.(Conv2DAttrs)
	return ok && a == o
}

// ElementBinaryAttrs is the (empty) attribute record shared by every
// element-wise binary kind (the operation itself is encoded in the
// OpKind, not in the attrs).
type ElementBinaryAttrs struct {
	kind optypes.OpKind
}

// NewElementBinaryAttrs creates the attrs record for one of the
// element-binary-* kinds.
func NewElementBinaryAttrs(kind optypes.OpKind) ElementBinaryAttrs {
	return ElementBinaryAttrs{kind: kind}
}

func (a ElementBinaryAttrs) Kind() optypes.OpKind { return a.kind }
func (a ElementBinaryAttrs) Equal(other Attrs) bool {
	o, ok := other.(ElementBinaryAttrs)
	return ok && a.kind == o.kind
}

// ElementUnaryAttrs is the attribute record shared by every element-wise
// unary kind. Scalar is only meaningful for the scalar-{add,sub,mul,div}
// kinds, ignored otherwise.
type ElementUnaryAttrs struct {
	kind   optypes.OpKind
	Scalar float64
}

// NewElementUnaryAttrs creates the attrs record for one of the
// element-unary-* kinds.
func NewElementUnaryAttrs(kind optypes.OpKind, scalar float64) ElementUnaryAttrs {
	return ElementUnaryAttrs{kind: kind, Scalar: scalar}
}

func (a ElementUnaryAttrs) Kind() optypes.OpKind { return a.kind }
func (a ElementUnaryAttrs) Equal(other Attrs) bool {
	o, ok := other.(ElementUnaryAttrs)
	return ok && a == o
}

// ConcatAttrs is the attribute record for optypes.Concat.
type ConcatAttrs struct {
	Axis int
}

func (a ConcatAttrs) Kind() optypes.OpKind { return optypes.Concat }
func (a ConcatAttrs) Equal(other Attrs) bool {
	o, ok := other.(ConcatAttrs)
	return ok && a == o
}

// Pool2DAttrs is the attribute record for optypes.Pool2D.
type Pool2DAttrs struct {
	PoolType           PoolKind
	KernelH, KernelW   int
	StrideH, StrideW   int
	PaddingH, PaddingW int
	Activation         ActivationKind
}

func (a Pool2DAttrs) Kind() optypes.OpKind { return optypes.Pool2D }
func (a Pool2DAttrs) Equal(other Attrs) bool {
	o, ok := other.(Pool2DAttrs)
	return ok && a == o
}

// CastAttrs is the attribute record for optypes.Cast.
type CastAttrs struct {
	DType shapes.DataType
}

func (a CastAttrs) Kind() optypes.OpKind { return optypes.Cast }
func (a CastAttrs) Equal(other Attrs) bool {
	o, ok := other.(CastAttrs)
	return ok && a == o
}

// DropoutAttrs is the attribute record for optypes.Dropout.
type DropoutAttrs struct {
	Rate float64
	Seed int64
}

func (a DropoutAttrs) Kind() optypes.OpKind { return optypes.Dropout }
func (a DropoutAttrs) Equal(other Attrs) bool {
	o, ok := other.(DropoutAttrs)
	return ok && a == o
}

// EmbeddingAttrs is the attribute record for optypes.Embedding.
type EmbeddingAttrs struct {
	NumEntries int
	OutDim     int
}

func (a EmbeddingAttrs) Kind() optypes.OpKind { return optypes.Embedding }
func (a EmbeddingAttrs) Equal(other Attrs) bool {
	o, ok := other.(EmbeddingAttrs)
	return ok && a == o
}

// FlatAttrs is the (empty) attribute record for optypes.Flat: it flattens
// every non-batch dimension into one.
type FlatAttrs struct{}

func (a FlatAttrs) Kind() optypes.OpKind { return optypes.Flat }
func (a FlatAttrs) Equal(other Attrs) bool {
	_, ok := other.(FlatAttrs)
	return ok
}

// GatherAttrs is the attribute record for optypes.Gather.
type GatherAttrs struct {
	Axis int
}

func (a GatherAttrs) Kind() optypes.OpKind { return optypes.Gather }
func (a GatherAttrs) Equal(other Attrs) bool {
	o, ok := other.(GatherAttrs)
	return ok && a == o
}

// MultiHeadAttentionAttrs is the attribute record for optypes.MultiHeadAttention.
type MultiHeadAttentionAttrs struct {
	NumHeads int
	KDim     int
	VDim     int
}

func (a MultiHeadAttentionAttrs) Kind() optypes.OpKind { return optypes.MultiHeadAttention }
func (a MultiHeadAttentionAttrs) Equal(other Attrs) bool {
	o, ok := other.(MultiHeadAttentionAttrs)
	return ok && a == o
}

// LayerNormAttrs is the attribute record for optypes.LayerNorm.
type LayerNormAttrs struct {
	Axes    []int
	Epsilon float64
}

func (a LayerNormAttrs) Kind() optypes.OpKind { return optypes.LayerNorm }
func (a LayerNormAttrs) Equal(other Attrs) bool {
	o, ok := other.(LayerNormAttrs)
	return ok && a.Epsilon == o.Epsilon && intSliceEqual(a.Axes, o.Axes)
}

// ReduceSumAttrs is the attribute record for optypes.ReduceSum.
type ReduceSumAttrs struct {
	Axes     []int
	KeepDims bool
}

func (a ReduceSumAttrs) Kind() optypes.OpKind { return optypes.ReduceSum }
func (a ReduceSumAttrs) Equal(other Attrs) bool {
	o, ok := other.(ReduceSumAttrs)
	return ok && a.KeepDims == o.KeepDims && intSliceEqual(a.Axes, o.Axes)
}

// ReshapeAttrs is the attribute record for optypes.Reshape.
type ReshapeAttrs struct {
	TargetShape []int
}

func (a ReshapeAttrs) Kind() optypes.OpKind { return optypes.Reshape }
func (a ReshapeAttrs) Equal(other Attrs) bool {
	o, ok := other.(ReshapeAttrs)
	return ok && intSliceEqual(a.TargetShape, o.TargetShape)
}

// SoftmaxAttrs is the attribute record for optypes.Softmax.
type SoftmaxAttrs struct {
	Axis int
}

func (a SoftmaxAttrs) Kind() optypes.OpKind { return optypes.Softmax }
func (a SoftmaxAttrs) Equal(other Attrs) bool {
	o, ok := other.(SoftmaxAttrs)
	return ok && a == o
}

// TransposeAttrs is the attribute record for optypes.Transpose.
type TransposeAttrs struct {
	Permutation []int
}

func (a TransposeAttrs) Kind() optypes.OpKind { return optypes.Transpose }
func (a TransposeAttrs) Equal(other Attrs) bool {
	o, ok := other.(TransposeAttrs)
	return ok && intSliceEqual(a.Permutation, o.Permutation)
}

// BatchMatmulAttrs is the attribute record for optypes.BatchMatmul.
type BatchMatmulAttrs struct {
	TransposeA bool
	TransposeB bool
}

func (a BatchMatmulAttrs) Kind() optypes.OpKind { return optypes.BatchMatmul }
func (a BatchMatmulAttrs) Equal(other Attrs) bool {
	o, ok := other.(BatchMatmulAttrs)
	return ok && a == o
}

// SplitAttrs is the attribute record for optypes.Split.
type SplitAttrs struct {
	Axis  int
	Sizes []int
}

func (a SplitAttrs) Kind() optypes.OpKind { return optypes.Split }
func (a SplitAttrs) Equal(other Attrs) bool {
	o, ok := other.(SplitAttrs)
	return ok && a.Axis == o.Axis && intSliceEqual(a.Sizes, o.Sizes)
}

// TopKAttrs is the attribute record for optypes.TopK.
type TopKAttrs struct {
	K      int
	Axis   int
	Sorted bool
}

func (a TopKAttrs) Kind() optypes.OpKind { return optypes.TopK }
func (a TopKAttrs) Equal(other Attrs) bool {
	o, ok := other.(TopKAttrs)
	return ok && a == o
}

// GroupByAttrs is the attribute record for optypes.GroupBy.
type GroupByAttrs struct {
	N int
}

func (a GroupByAttrs) Kind() optypes.OpKind { return optypes.GroupBy }
func (a GroupByAttrs) Equal(other Attrs) bool {
	o, ok := other.(GroupByAttrs)
	return ok && a == o
}

// AggregateAttrs is the attribute record for optypes.Aggregate
// (spec.md §8 scenario S2).
type AggregateAttrs struct {
	AggregationCommon
}

func (a AggregateAttrs) Kind() optypes.OpKind { return optypes.Aggregate }
func (a AggregateAttrs) Equal(other Attrs) bool {
	o, ok := other.(AggregateAttrs)
	return ok && a.AggregationCommon.equal(o.AggregationCommon)
}

// AggregateSpecAttrs is the attribute record for optypes.AggregateSpec.
//
// It is a distinct type from AggregateAttrs, resolving spec.md §9 Open
// Question 1 by treating AggregateSpec as its own operator kind (see
// DESIGN.md). Its output shapes come from the same inference rule as
// Aggregate's (inferAggregate); there is no aggregate-spec-specific
// inference path.
type AggregateSpecAttrs struct {
	AggregationCommon
}

func (a AggregateSpecAttrs) Kind() optypes.OpKind { return optypes.AggregateSpec }
func (a AggregateSpecAttrs) Equal(other Attrs) bool {
	o, ok := other.(AggregateSpecAttrs)
	return ok && a.AggregationCommon.equal(o.AggregationCommon)
}

// NoopAttrs is the (empty) attribute record for optypes.Noop.
//
// Per spec.md §9 Open Question 2, noop participates in shape inference
// (identity) but is excluded from ParamsOf/fusion-seed eligibility -- see
// catalog.ParamsOf and fusion's fusibleAsSeed.
type NoopAttrs struct{}

func (a NoopAttrs) Kind() optypes.OpKind { return optypes.Noop }
func (a NoopAttrs) Equal(other Attrs) bool {
	_, ok := other.(NoopAttrs)
	return ok
}
