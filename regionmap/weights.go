package regionmap

import (
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/pkg/errors"
)

// LinearWeightRegion is the specialized region map for a linear layer's
// weight tensor (spec.md §4.6's linear-weight variant): under
// SyncParameterServer or SyncCollective the output-channel dimension is
// split across the task space's first axis, while every other weight
// dimension is left with parallel_idx -1; under SyncNone the weight's own
// dimensions are mapped as they are. Under SyncCollective that
// unsplit remainder is precisely the region enlargement spec.md calls for:
// MapTensor's transform already leaves an all-zero row for any dimension
// with parallel_idx -1, so every task point along the other axes addresses
// the same full replica of those dimensions.
func LinearWeightRegion(weight *pcg.ParallelTensor, taskSpace machineview.MachineView, sync pcg.SyncMode) (*pcg.RegionHandle, error) {
	if weight.Shape.Rank() == 0 {
		return nil, errors.New("regionmap: linear weight must have rank >= 1")
	}
	shape := weight.Shape.Clone()
	outDim := shape.Dims[0]
	if sync == pcg.SyncCollective || sync == pcg.SyncParameterServer {
		outDim.ParallelIdx = 0
		if taskSpace.Rank() > 0 {
			outDim.Degree = taskSpace.AxisExtents[0]
		}
	}
	shape.Dims[0] = outDim
	return MapTensor(shape, taskSpace)
}

// ConvWeightRegion is the specialized region map for a 2D convolution's
// weight tensor, laid out (outChannels, inChannels, kh, kw). spec.md §4.6
// prohibits splitting the channel axis of a conv weight directly: channel
// parallelism for convolutions is expressed by replicating the whole weight
// across the (N, H, W) task axes instead, never by partitioning it.
func ConvWeightRegion(weight *pcg.ParallelTensor, taskSpace machineview.MachineView, sync pcg.SyncMode) (*pcg.RegionHandle, error) {
	if weight.Shape.Rank() != 4 {
		return nil, errors.Errorf("regionmap: conv weight must have rank 4 (out,in,kh,kw), got %d", weight.Shape.Rank())
	}
	for i, d := range weight.Shape.Dims {
		if d.ParallelIdx >= 0 && d.ParallelIdx == channelAxis(taskSpace) {
			return nil, errors.Errorf("regionmap: conv weight dim %d may not be split along the channel task axis", i)
		}
	}

	if sync != pcg.SyncCollective {
		return MapTensor(weight.Shape, taskSpace)
	}
	// Replicated per (N, H, W): every one of those task points holds its
	// own full copy of the weight, so disjointness does not apply to any
	// weight dimension -- alias them all by mapping against a size-1
	// single-point task space instead of the full N/H/W space.
	return MapTensor(weight.Shape, machineview.Make(1))
}

func channelAxis(taskSpace machineview.MachineView) int {
	// By this domain's (N, C, H, W) task-axis convention the channel axis
	// is always index 1, when present.
	if taskSpace.Rank() < 2 {
		return -1
	}
	return 1
}
