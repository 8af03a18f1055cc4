// Package catalog implements C2, the operator catalog: for every operator
// kind it supplies an attribute record, a validity predicate, an
// output-shape inference function, and parameter extraction
// (spec.md §4.1).
package catalog

import (
	"github.com/williamberman/FlexFlow/internal/optypes"
)

// Attrs is the sum type of every operator kind's attribute record. Records
// are value-typed and equality-comparable -- equal records imply operator
// equivalence for memoization (spec.md §4.1 point 1).
//
// Implementations dispatch on Kind(); there is no open extension at
// runtime (spec.md §4.1 "single sum-typed entry point").
type Attrs interface {
	// Kind returns the operator kind this attribute record belongs to.
	Kind() optypes.OpKind

	// Equal returns whether two attribute records of the same kind are
	// identical, implying operator equivalence for memoization.
	Equal(other Attrs) bool
}

// ActivationKind is the closed set of activation functions an operator's
// attribute record may request be fused into its output.
type ActivationKind int

const (
	ActivationNone ActivationKind = iota
	ActivationRelu
	ActivationSigmoid
	ActivationTanh
	ActivationGelu
	ActivationElu
)

func (a ActivationKind) String() string {
	switch a {
	case ActivationRelu:
		return "relu"
	case ActivationSigmoid:
		return "sigmoid"
	case ActivationTanh:
		return "tanh"
	case ActivationGelu:
		return "gelu"
	case ActivationElu:
		return "elu"
	default:
		return "none"
	}
}

// PoolKind is the closed set of pooling reductions Pool2D supports.
type PoolKind int

const (
	PoolMax PoolKind = iota
	PoolAvg
)

// AggregationCommon holds the fields shared between Aggregate and
// AggregateSpec (see Open Question 1, DESIGN.md): they are modeled as
// distinct kinds with separate attribute records, but the fields they
// carry are identical and both kinds go through the same shape-inference
// rule (inferAggregate).
type AggregationCommon struct {
	// N is the number of experts/gates the aggregation combines.
	N int

	// LambdaBal is the load-balancing loss weight.
	LambdaBal float64
}

func (a AggregationCommon) equal(other AggregationCommon) bool {
	return a.N == other.N && a.LambdaBal == other.LambdaBal
}

// intSliceEqual is a small helper used by attribute records that embed a
// shapes.Shape or []int in their Equal implementation.
func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
