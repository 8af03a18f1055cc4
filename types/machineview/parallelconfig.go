package machineview

import (
	"slices"

	"github.com/pkg/errors"
)

// ParallelConfig is the per-operator record of how an operator's output
// index space is laid out on devices: `(nDims, dim[nDims], device_ids[Π dim])`
// (spec.md §3 "Parallel config").
type ParallelConfig struct {
	// Dims holds the per-dimension split degree, one entry per task-space axis.
	Dims []int

	// DeviceIDs holds one device id per point of the task index space,
	// in row-major order over Dims. Its length must equal the product of Dims.
	DeviceIDs []int
}

// MakeConfig creates a new ParallelConfig, cloning its inputs.
func MakeConfig(dims []int, deviceIDs []int) ParallelConfig {
	return ParallelConfig{Dims: slices.Clone(dims), DeviceIDs: slices.Clone(deviceIDs)}
}

// NDims returns the number of task-space dimensions.
func (c ParallelConfig) NDims() int {
	return len(c.Dims)
}

// NumPoints returns the product of the per-dimension degrees -- the number
// of points in the operator's task index space, and the required length of
// DeviceIDs.
func (c ParallelConfig) NumPoints() int {
	n := 1
	for _, d := range c.Dims {
		n *= d
	}
	return n
}

// Clone returns a deep copy of the config.
func (c ParallelConfig) Clone() ParallelConfig {
	return ParallelConfig{Dims: slices.Clone(c.Dims), DeviceIDs: slices.Clone(c.DeviceIDs)}
}

// Equal returns whether c and other describe the same layout.
func (c ParallelConfig) Equal(other ParallelConfig) bool {
	return slices.Equal(c.Dims, other.Dims) && slices.Equal(c.DeviceIDs, other.DeviceIDs)
}

// Validate checks the structural invariant relating Dims to DeviceIDs and
// that every device id is non-negative and unique (spec.md §4.3
// "Validity": "device-id count equals product of degrees").
func (c ParallelConfig) Validate() error {
	for i, d := range c.Dims {
		if d < 1 {
			return errors.Errorf("parallel config dim %d must be >= 1, got %d", i, d)
		}
	}
	want := c.NumPoints()
	if len(c.DeviceIDs) != want {
		return errors.Errorf("parallel config has %d dims with product %d, but %d device ids",
			len(c.Dims), want, len(c.DeviceIDs))
	}
	seen := make(map[int]bool, len(c.DeviceIDs))
	for _, id := range c.DeviceIDs {
		if id < 0 {
			return errors.Errorf("parallel config device id must be >= 0, got %d", id)
		}
		if seen[id] {
			return errors.Errorf("parallel config device id %d is duplicated", id)
		}
		seen[id] = true
	}
	return nil
}

// ToMachineView returns the MachineView this config addresses, assuming
// DeviceIDs[0] is the view's start offset (the common case of a
// contiguous device range).
func (c ParallelConfig) ToMachineView() MachineView {
	start := 0
	if len(c.DeviceIDs) > 0 {
		start = c.DeviceIDs[0]
	}
	return MakeAt(start, c.Dims...)
}
