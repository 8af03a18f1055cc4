package shapes

import (
	"slices"
	"strconv"
	"strings"

	"github.com/williamberman/FlexFlow/internal/utils"

	"github.com/pkg/errors"
)

// ParallelTensorShape is an ordered sequence of parallel dimensions plus a
// data type (spec.md §3 "Parallel tensor shape"). It generalizes the
// teacher's per-axis ShardingSpec: instead of naming mesh axes directly,
// each dimension carries its own degree/parallel_idx/is_replica record,
// because a PCG parallel tensor must be meaningful before any machine view
// has been chosen for the operator that owns it.
type ParallelTensorShape struct {
	Dims  []ParallelDim
	DType DataType
}

// MakeParallel creates a new ParallelTensorShape.
func MakeParallel(dtype DataType, dims ...ParallelDim) ParallelTensorShape {
	return ParallelTensorShape{Dims: slices.Clone(dims), DType: dtype}
}

// Clone returns a deep copy, never sharing the backing array with the original.
func (s ParallelTensorShape) Clone() ParallelTensorShape {
	return ParallelTensorShape{Dims: slices.Clone(s.Dims), DType: s.DType}
}

// Rank returns the number of parallel dimensions, including replica dimensions.
func (s ParallelTensorShape) Rank() int {
	return len(s.Dims)
}

// Equal returns whether s and other have identical dimensions and data type.
func (s ParallelTensorShape) Equal(other ParallelTensorShape) bool {
	return s.DType == other.DType && slices.Equal(s.Dims, other.Dims)
}

// LogicalShape returns the logical (un-partitioned) Shape obtained by
// dropping every replica dimension -- used by Testable Property 3
// ("Shape consistency of lift") to compare a lifted operator's output
// against the layer's declared output shape.
func (s ParallelTensorShape) LogicalShape() Shape {
	dims := make([]int, 0, len(s.Dims))
	for _, d := range s.Dims {
		if d.IsReplica {
			continue
		}
		dims = append(dims, d.Size)
	}
	return Shape{Dims: dims, DType: s.DType}
}

// DegreeProduct returns the product of the Degree of every dimension --
// the total number of devices this tensor is spread over.
func (s ParallelTensorShape) DegreeProduct() int {
	product := 1
	for _, d := range s.Dims {
		product *= d.Degree
	}
	return product
}

// Validate checks the shape-level invariants from spec.md §3
// "Parallel tensor shape. Invariants":
//
//	(a) the product of degree across dims <= total device count;
//	(b) every non-negative parallel_idx appears on at most one dimension;
//	(c) if a dimension has degree > 1 then parallel_idx >= 0.
func (s ParallelTensorShape) Validate(numDevices int) error {
	if !s.DType.IsValid() {
		return errors.Errorf("parallel tensor shape has invalid data type %s", s.DType)
	}
	seenAxes := utils.MakeSet[int](len(s.Dims))
	for i, d := range s.Dims {
		if err := d.Validate(); err != nil {
			return errors.Wrapf(err, "parallel tensor shape dim %d", i)
		}
		if d.ParallelIdx >= 0 {
			if seenAxes.Has(d.ParallelIdx) {
				return errors.Errorf("parallel_idx %d is used by more than one dimension", d.ParallelIdx)
			}
			seenAxes.Insert(d.ParallelIdx)
		}
	}
	if product := s.DegreeProduct(); product > numDevices {
		return errors.Errorf("parallel tensor shape needs %d devices, only %d available", product, numDevices)
	}
	return nil
}

// String implements fmt.Stringer.
func (s ParallelTensorShape) String() string {
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = formatDim(d)
	}
	return "[" + strings.Join(parts, ",") + "]" + s.DType.String()
}

func formatDim(d ParallelDim) string {
	if d.IsReplica {
		return "replica"
	}
	if d.Degree <= 1 {
		return strconv.Itoa(d.Size)
	}
	return strconv.Itoa(d.Size) + "/" + strconv.Itoa(d.Degree) + "@" + strconv.Itoa(d.ParallelIdx)
}
