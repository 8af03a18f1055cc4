// Package optypes defines OpKind and lists the supported parallel operator kinds.
package optypes

import (
	"fmt"

	"github.com/williamberman/FlexFlow/internal/utils"
)

// OpKind is an enum of every operator kind a PCG operator can carry. It is the
// sum-type tag that catalog.Infer dispatches on (see spec.md §4.1).
type OpKind int

const (
	Invalid OpKind = iota

	// Input is the synthetic leaf operator the lifter (C3) creates for
	// every OP_INPUT layer. It carries no catalog attribute record --
	// there is nothing to infer, it just introduces a parallel tensor
	// into the PCG -- so it is not dispatched through catalog.Infer.
	Input

	// Compute operators.
	Linear
	Conv2D
	ElementBinaryAdd
	ElementBinarySub
	ElementBinaryMul
	ElementBinaryDiv
	ElementBinaryMax
	ElementBinaryMin
	ElementUnaryExp
	ElementUnarySin
	ElementUnaryCos
	ElementUnaryScalarAdd
	ElementUnaryScalarSub
	ElementUnaryScalarMul
	ElementUnaryScalarDiv
	ElementUnaryRelu
	ElementUnarySigmoid
	ElementUnaryTanh
	ElementUnaryIdentity
	ElementUnaryGelu
	ElementUnaryElu
	Concat
	Pool2D
	Cast
	Dropout
	Embedding
	Flat
	Gather
	MultiHeadAttention
	LayerNorm
	ReduceSum
	Reshape
	Softmax
	Transpose
	BatchMatmul
	Split
	TopK
	GroupBy
	Aggregate
	AggregateSpec
	Noop

	// Parallel (data-movement) operators, see GLOSSARY "Parallel operator".
	Repartition
	Replicate
	Reduction
	Combine
	FusedParallel

	// Fused is the synthetic fusion operator created by C9.
	Fused

	// last is a sentinel, kept last, used only for range-validity checks.
	last
)

// IsParallel returns whether the kind is one of the data-movement-only
// parallel operators (spec.md GLOSSARY "Parallel operator").
func (k OpKind) IsParallel() bool {
	switch k {
	case Repartition, Replicate, Reduction, Combine, FusedParallel:
		return true
	default:
		return false
	}
}

// IsValid returns whether k is a recognized, non-sentinel OpKind.
func (k OpKind) IsValid() bool {
	return k > Invalid && k < last
}

var names = map[OpKind]string{
	Input:                 "input",
	Linear:                "linear",
	Conv2D:                "conv2d",
	ElementBinaryAdd:      "ele_add",
	ElementBinarySub:      "ele_sub",
	ElementBinaryMul:      "ele_mul",
	ElementBinaryDiv:      "ele_div",
	ElementBinaryMax:      "ele_max",
	ElementBinaryMin:      "ele_min",
	ElementUnaryExp:       "exp",
	ElementUnarySin:       "sin",
	ElementUnaryCos:       "cos",
	ElementUnaryScalarAdd: "scalar_add",
	ElementUnaryScalarSub: "scalar_sub",
	ElementUnaryScalarMul: "scalar_mul",
	ElementUnaryScalarDiv: "scalar_div",
	ElementUnaryRelu:      "relu",
	ElementUnarySigmoid:   "sigmoid",
	ElementUnaryTanh:      "tanh",
	ElementUnaryIdentity:  "identity",
	ElementUnaryGelu:      "gelu",
	ElementUnaryElu:       "elu",
	Concat:                "concat",
	Pool2D:                "pool2d",
	Cast:                  "cast",
	Dropout:               "dropout",
	Embedding:             "embedding",
	Flat:                  "flat",
	Gather:                "gather",
	MultiHeadAttention:    "multihead_attention",
	LayerNorm:             "layer_norm",
	ReduceSum:             "reduce_sum",
	Reshape:               "reshape",
	Softmax:               "softmax",
	Transpose:             "transpose",
	BatchMatmul:           "batch_matmul",
	Split:                 "split",
	TopK:                  "topk",
	GroupBy:               "group_by",
	Aggregate:             "aggregate",
	AggregateSpec:         "aggregate_spec",
	Noop:                  "noop",
	Repartition:           "repartition",
	Replicate:             "replicate",
	Reduction:             "reduction",
	Combine:               "combine",
	FusedParallel:         "fused_parallel",
	Fused:                 "fused",
}

// String implements fmt.Stringer.
func (k OpKind) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// SnakeName returns the canonical snake_case name of k. The serializer
// does not use it: it writes the numeric kind.
func (k OpKind) SnakeName() string {
	return utils.ToSnakeCase(k.String())
}
