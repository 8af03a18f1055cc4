// Package regionmap implements C8, the region mapper: it materializes
// parallel tensors into partitioned regions for the task runtime
// (spec.md §4.6).
package regionmap

import (
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/williamberman/FlexFlow/types/shapes"
	"github.com/pkg/errors"
)

// MapTensor implements spec.md §4.6 points 1-4 for a single (non-aliased)
// tensor: it derives per-dimension tile extents, builds the N x T
// transform matrix, and asserts the resulting partition is both complete
// and disjoint.
func MapTensor(shape shapes.ParallelTensorShape, taskSpace machineview.MachineView) (*pcg.RegionHandle, error) {
	return mapTensor(shape, taskSpace, -1)
}

// MapAliasedTensor is the "aliased partition" variant of MapTensor
// (spec.md GLOSSARY "Aliased partition"): disjointness is relaxed along
// aliasedDim, the one dimension legitimately shared by multiple shards.
func MapAliasedTensor(shape shapes.ParallelTensorShape, taskSpace machineview.MachineView, aliasedDim int) (*pcg.RegionHandle, error) {
	return mapTensor(shape, taskSpace, aliasedDim)
}

func mapTensor(shape shapes.ParallelTensorShape, taskSpace machineview.MachineView, aliasedDim int) (*pcg.RegionHandle, error) {
	t := taskSpace.Rank()
	if t == 0 {
		return nil, errors.New("regionmap: task space must have rank >= 1")
	}

	var indexDims []shapes.ParallelDim
	for _, d := range shape.Dims {
		if !d.IsReplica {
			indexDims = append(indexDims, d)
		}
	}
	n := len(indexDims)
	if n == 0 {
		return nil, errors.New("regionmap: tensor has no non-replica dimension to partition")
	}

	extents := make([]int, n)
	transform := make([][]int, n)
	disjoint := true
	complete := true
	violatesOutsideAlias := false
	for i, d := range indexDims {
		degree := d.Degree
		if degree < 1 {
			degree = 1
		}
		ext := ceilDiv(d.Size, degree)
		extents[i] = ext

		row := make([]int, t)
		if d.ParallelIdx >= 0 {
			if d.ParallelIdx >= t {
				return nil, errors.Errorf("regionmap: dim %d parallel_idx %d out of range for a rank-%d task space", i, d.ParallelIdx, t)
			}
			row[d.ParallelIdx] = ext
		}
		transform[i] = row

		if ext*degree != d.Size {
			disjoint = false
			if i != aliasedDim {
				violatesOutsideAlias = true
			}
		}
		if ext*degree < d.Size {
			complete = false
		}
	}

	if !complete {
		return nil, errors.Errorf("regionmap: partition is not complete for shape %s over task space %s", shape, taskSpace)
	}
	if aliasedDim < 0 {
		if !disjoint {
			return nil, errors.Errorf("regionmap: partition is not disjoint for shape %s over task space %s", shape, taskSpace)
		}
	} else if violatesOutsideAlias {
		return nil, errors.Errorf("regionmap: partition has a non-disjoint dimension other than the aliased dim %d for shape %s over task space %s", aliasedDim, shape, taskSpace)
	}

	return &pcg.RegionHandle{
		IndexSpaceRank: t,
		Extents:        extents,
		Transform:      transform,
		Disjoint:       disjoint,
		Complete:       complete,
		AliasedDim:     aliasedDim,
	}, nil
}

// MapWithGradient additionally maps a shadow region sharing the same
// index space when the tensor carries gradients and mode is training
// (spec.md §4.6 point 5).
func MapWithGradient(tensor *pcg.ParallelTensor, taskSpace machineview.MachineView, training bool) error {
	region, err := MapTensor(tensor.Shape, taskSpace)
	if err != nil {
		return err
	}
	tensor.Region = region
	if tensor.CreateGradient && training {
		shadow, err := MapTensor(tensor.Shape, taskSpace)
		if err != nil {
			return errors.Wrap(err, "mapping shadow gradient region")
		}
		tensor.ShadowRegion = shadow
	}
	return nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
