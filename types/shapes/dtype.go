// Package shapes defines the logical and parallel tensor shape types shared
// by every PCG component (spec.md §3 "Data model").
package shapes

import "fmt"

// DataType is the closed set of element types a tensor can carry
// (spec.md §3 "Tensor shape (logical)").
type DataType int

const (
	InvalidDType DataType = iota
	Half
	Float
	Double
	Int32
	Int64

	numDataTypes
)

var dataTypeNames = [numDataTypes]string{
	InvalidDType: "invalid",
	Half:         "half",
	Float:        "float",
	Double:       "double",
	Int32:        "int32",
	Int64:        "int64",
}

// String implements fmt.Stringer.
func (d DataType) String() string {
	if d < 0 || d >= numDataTypes {
		return fmt.Sprintf("DataType(%d)", int(d))
	}
	return dataTypeNames[d]
}

// IsValid returns whether d is one of the recognized, non-invalid data types.
func (d DataType) IsValid() bool {
	return d > InvalidDType && d < numDataTypes
}

// ByteSize returns the element size in bytes, used by the region mapper and
// cost simulator to estimate memory footprints.
func (d DataType) ByteSize() int {
	switch d {
	case Half:
		return 2
	case Float:
		return 4
	case Double:
		return 8
	case Int32:
		return 4
	case Int64:
		return 8
	default:
		return 0
	}
}
