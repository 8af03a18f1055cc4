package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Shape is the logical, un-partitioned shape of a tensor: an ordered
// sequence of positive dimension sizes plus a data type tag
// (spec.md §3 "Tensor shape (logical)").
type Shape struct {
	Dims  []int
	DType DataType
}

// Make creates a new logical Shape.
func Make(dtype DataType, dims ...int) Shape {
	return Shape{Dims: slices.Clone(dims), DType: dtype}
}

// Clone returns a deep copy of the shape, never sharing the backing array
// with the original (mirrors the teacher's types.ConvolveAxesConfig.Clone).
func (s Shape) Clone() Shape {
	return Shape{Dims: slices.Clone(s.Dims), DType: s.DType}
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s.Dims)
}

// NumElements returns the product of all dimension sizes.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Equal returns whether s and other have identical dims and data type.
func (s Shape) Equal(other Shape) bool {
	return s.DType == other.DType && slices.Equal(s.Dims, other.Dims)
}

// Validate checks that every dimension is positive and the data type is
// recognized.
func (s Shape) Validate() error {
	if !s.DType.IsValid() {
		return errors.Errorf("shape has invalid data type %s", s.DType)
	}
	for i, d := range s.Dims {
		if d <= 0 {
			return errors.Errorf("shape dimension %d must be positive, got %d", i, d)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("[%s]%s", strings.Join(parts, "x"), s.DType)
}
