// Package lift implements C3, the layer-to-parallel-operator lifter: it
// walks a user's logical layer graph and builds a PCG realizing it under a
// pure data-parallel assignment (spec.md §4.2).
package lift

import (
	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/types/shapes"
)

// LayerRef is a weak reference to one output slot of an earlier layer,
// mirroring pcg.TensorRef one level up, before any parallel tensor exists.
type LayerRef struct {
	LayerID int
	Slot    int
}

// Layer is one node of the user's logical layer graph (spec.md §4.2
// "ordered layer graph L"). A Layer with Attrs == nil is an OP_INPUT leaf;
// InputShape names its logical (un-partitioned) shape. Every other layer
// carries the catalog.Attrs record C2 will construct an operator from.
type Layer struct {
	ID     int
	Attrs  catalog.Attrs
	Inputs []LayerRef

	// InputShape is only set (and only meaningful) for OP_INPUT layers.
	InputShape shapes.Shape
}

// IsInput reports whether this layer is an OP_INPUT leaf.
func (l Layer) IsInput() bool {
	return l.Attrs == nil
}

// Graph is the ordered logical layer graph the lifter consumes. Layers
// must already be in topological order -- this package does not sort them.
type Graph struct {
	Layers []Layer
}

// AddInput appends a new OP_INPUT layer with the given logical shape and
// returns its LayerRef (slot 0).
func (g *Graph) AddInput(shape shapes.Shape) LayerRef {
	id := len(g.Layers)
	g.Layers = append(g.Layers, Layer{ID: id, InputShape: shape})
	return LayerRef{LayerID: id, Slot: 0}
}

// AddLayer appends a new computed layer and returns a LayerRef for each of
// its outputs, in order. numOutputs must match the number of shapes
// catalog.Infer will return for attrs given these inputs.
func (g *Graph) AddLayer(attrs catalog.Attrs, inputs []LayerRef, numOutputs int) []LayerRef {
	id := len(g.Layers)
	g.Layers = append(g.Layers, Layer{ID: id, Attrs: attrs, Inputs: inputs})
	refs := make([]LayerRef, numOutputs)
	for i := range refs {
		refs[i] = LayerRef{LayerID: id, Slot: i}
	}
	return refs
}
