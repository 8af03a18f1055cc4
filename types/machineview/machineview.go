// Package machineview defines MachineView, the ordered tuple of axis extents
// that locates a parallel tensor's shards on devices (spec.md §3 "Machine
// view", GLOSSARY "Machine view").
package machineview

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// MachineView is an ordered list of axis extents addressing a (sub-)set of
// devices. Two tensors with identical machine views are co-located for
// launch fusion (spec.md §3).
//
// StartDeviceID is the offset of the first logical device this view
// addresses into the global, flat device numbering -- it lets two
// operators use views of the same shape but over disjoint device subsets.
type MachineView struct {
	AxisExtents   []int
	StartDeviceID int
}

// Make creates a new MachineView over the given ordered axis extents,
// starting at device 0.
func Make(axisExtents ...int) MachineView {
	return MachineView{AxisExtents: slices.Clone(axisExtents)}
}

// MakeAt creates a new MachineView starting at the given device offset.
func MakeAt(startDeviceID int, axisExtents ...int) MachineView {
	return MachineView{AxisExtents: slices.Clone(axisExtents), StartDeviceID: startDeviceID}
}

// Rank returns T, the number of axes in the task index space this view describes.
func (v MachineView) Rank() int {
	return len(v.AxisExtents)
}

// NumDevices returns the total number of devices addressed by this view.
func (v MachineView) NumDevices() int {
	n := 1
	for _, e := range v.AxisExtents {
		n *= e
	}
	return n
}

// Clone returns a deep copy of the view.
func (v MachineView) Clone() MachineView {
	return MachineView{AxisExtents: slices.Clone(v.AxisExtents), StartDeviceID: v.StartDeviceID}
}

// Equal returns whether v and other address the same axis extents starting
// at the same device -- the test used by fusion (C9) to decide two
// operators are co-located.
func (v MachineView) Equal(other MachineView) bool {
	return v.StartDeviceID == other.StartDeviceID && slices.Equal(v.AxisExtents, other.AxisExtents)
}

// Validate checks the view addresses at least one axis and does not exceed
// the cluster's total device count.
func (v MachineView) Validate(totalDevices int) error {
	if len(v.AxisExtents) == 0 {
		return errors.New("machine view must have at least one axis")
	}
	for i, e := range v.AxisExtents {
		if e <= 0 {
			return errors.Errorf("machine view axis %d extent must be positive, got %d", i, e)
		}
	}
	if v.StartDeviceID+v.NumDevices() > totalDevices {
		return errors.Errorf("machine view addresses devices [%d, %d), only %d devices available",
			v.StartDeviceID, v.StartDeviceID+v.NumDevices(), totalDevices)
	}
	return nil
}

// DeviceIDs returns the flat, global device ids this view addresses, in
// row-major order over AxisExtents.
func (v MachineView) DeviceIDs() []int {
	n := v.NumDevices()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = v.StartDeviceID + i
	}
	return ids
}

// DecomposeIndex converts a flat device index (relative to this view, in
// [0, NumDevices())) into per-axis indices, most-significant axis first.
// This is the same row-major flat-index <-> per-axis arithmetic the region
// mapper (C8) needs to build rect/transform pairs.
func (v MachineView) DecomposeIndex(flatIdx int) []int {
	indices := make([]int, len(v.AxisExtents))
	remaining := flatIdx
	for i := len(v.AxisExtents) - 1; i >= 0; i-- {
		indices[i] = remaining % v.AxisExtents[i]
		remaining /= v.AxisExtents[i]
	}
	return indices
}

// FlattenIndex is the inverse of DecomposeIndex.
func (v MachineView) FlattenIndex(axisIndices []int) int {
	flat := 0
	multiplier := 1
	for i := len(v.AxisExtents) - 1; i >= 0; i-- {
		flat += axisIndices[i] * multiplier
		multiplier *= v.AxisExtents[i]
	}
	return flat
}

// Hash returns a stable hash of the view, used to key the per-point argument
// map at task-launch time (spec.md §6 "Boundary with the task runtime").
func (v MachineView) Hash() uint64 {
	h := fnv.New64a()
	for _, e := range v.AxisExtents {
		_, _ = fmt.Fprintf(h, "%d,", e)
	}
	_, _ = fmt.Fprintf(h, "@%d", v.StartDeviceID)
	return h.Sum64()
}

// String implements fmt.Stringer.
func (v MachineView) String() string {
	parts := make([]string, len(v.AxisExtents))
	for i, e := range v.AxisExtents {
		parts[i] = fmt.Sprintf("%d", e)
	}
	return fmt.Sprintf("MachineView(start=%d, axes=[%s])", v.StartDeviceID, strings.Join(parts, ","))
}
