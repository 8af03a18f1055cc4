// Package serialize implements C10, the graph binary serializer
// (spec.md §4.8): it walks a compiled PCG and emits a binary buffer naming,
// per operator, its kind, attributes, input tensor references (by operator
// id and slot), and chosen machine view. The format is binary-stable only
// within a single build -- spec.md §4.8 explicitly drops any cross-version
// compatibility requirement, so there is no schema evolution to plan for
// and no varint/tag economy to win by reaching for a schema-driven wire
// format; a flat, fixed-field binary.Write encoding is the right tool here
// (see DESIGN.md).
package serialize

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/types/machineview"
)

// magic identifies a FlexFlow compiled-graph buffer; formatVersion is bumped
// whenever the binary layout below changes shape.
const (
	magic         uint32 = 0x46464752 // "FFGR"
	formatVersion uint16 = 1
)

// Encode serializes model's compiled graph into a freshly allocated buffer.
func Encode(model *pcg.Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, model); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes model's compiled graph to w, per spec.md §4.8. Modeled
// on the teacher's Statement.Write: a single err variable accumulated by
// closures that become no-ops once it is set, so the body below reads as
// straight-line code with one error check at the end.
func Write(w io.Writer, model *pcg.Model) error {
	e := &encoder{w: w}

	e.u32(magic)
	e.u16(formatVersion)
	buildID := model.BuildID
	e.bytes(buildID[:])
	e.u32(uint32(len(model.Graph.Operators)))

	for _, op := range model.Graph.Operators {
		e.writeOperator(op)
	}

	return e.err
}

// encoder accumulates a binary.Write error the way Statement.Write
// accumulates an fmt.Fprintf error: every method is a no-op once err is
// non-nil, so callers never need an if-err-return after each field.
type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.BigEndian, v)
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u8(v uint8)    { e.write(v) }
func (e *encoder) u16(v uint16)  { e.write(v) }
func (e *encoder) u32(v uint32)  { e.write(v) }
func (e *encoder) i32(v int32)   { e.write(v) }
func (e *encoder) i64(v int64)   { e.write(v) }
func (e *encoder) f64(v float64) { e.write(v) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

// writeOperator writes one operator record: id, kind, in-place flag,
// inputs, weights, outputs, machine view, source tags, kind-specific
// attributes, and -- for a fused operator -- its sub-operators, recorded
// recursively in fusion order.
func (e *encoder) writeOperator(op *pcg.Operator) {
	e.i32(int32(op.ID))
	e.u16(uint16(op.Kind))
	e.boolean(op.InPlace)

	e.u32(uint32(len(op.Inputs)))
	for idx, ref := range op.Inputs {
		e.i32(int32(ref.OperatorID))
		e.i32(int32(ref.Slot))
		needsGradient := idx < len(op.NeedsGradient) && op.NeedsGradient[idx]
		e.boolean(needsGradient)
	}

	e.u32(uint32(len(op.Weights)))
	for _, t := range op.Weights {
		e.writeTensor(t)
	}

	e.u32(uint32(len(op.Outputs)))
	for _, t := range op.Outputs {
		e.writeTensor(t)
	}

	e.writeMachineView(op.MachineView)

	e.u32(uint32(len(op.SourceTags)))
	for _, tag := range op.SourceTags {
		e.u8(uint8(tag))
	}

	e.writeAttrs(op.Attrs)

	subOps := op.SubOperators()
	e.u32(uint32(len(subOps)))
	for _, sub := range subOps {
		e.writeOperator(sub)
	}
}

// writeMachineView writes v's axis extents and start device, or a single
// absence marker if the operator has not yet been assigned a view.
func (e *encoder) writeMachineView(v *machineview.MachineView) {
	if v == nil {
		e.boolean(false)
		return
	}
	e.boolean(true)
	e.u32(uint32(len(v.AxisExtents)))
	for _, x := range v.AxisExtents {
		e.i32(int32(x))
	}
	e.i32(int32(v.StartDeviceID))
}

func (e *encoder) writeTensor(t *pcg.ParallelTensor) {
	if t == nil {
		e.boolean(false)
		return
	}
	e.boolean(true)
	e.i32(int32(t.ID))
	e.i32(int32(t.OwnerOpID))
	e.i32(int32(t.OwnerIdx))

	e.u8(uint8(t.Shape.DType))
	e.u32(uint32(len(t.Shape.Dims)))
	for _, d := range t.Shape.Dims {
		e.i32(int32(d.Size))
		e.i32(int32(d.Degree))
		e.i32(int32(d.ParallelIdx))
		e.boolean(d.IsReplica)
	}

	e.boolean(t.CreateGradient)
	e.u8(uint8(t.Sync))

	e.writeRegion(t.Region)
	e.writeRegion(t.ShadowRegion)

	if t.Initializer == nil {
		e.boolean(false)
	} else {
		e.boolean(true)
		e.u8(uint8(t.Initializer.Kind))
		e.i64(t.Initializer.Seed)
		e.f64(t.Initializer.Low)
		e.f64(t.Initializer.High)
	}
}

func (e *encoder) writeRegion(r *pcg.RegionHandle) {
	if r == nil {
		e.boolean(false)
		return
	}
	e.boolean(true)
	e.i32(int32(r.IndexSpaceRank))

	e.u32(uint32(len(r.Extents)))
	for _, x := range r.Extents {
		e.i32(int32(x))
	}

	e.u32(uint32(len(r.Transform)))
	for _, row := range r.Transform {
		e.u32(uint32(len(row)))
		for _, x := range row {
			e.i32(int32(x))
		}
	}

	e.boolean(r.Disjoint)
	e.boolean(r.Complete)
	e.i32(int32(r.AliasedDim))
}

// writeAttrs writes the kind-specific attribute record for attrs, or just
// the zero-value marker for an operator that carries none (e.g.
// optypes.Input). Dispatches the same way catalog.Infer does: a type
// switch over the concrete Attrs implementation.
func (e *encoder) writeAttrs(attrs catalog.Attrs) {
	if attrs == nil {
		e.u8(0)
		return
	}
	e.u8(1)

	switch a := attrs.(type) {
	case catalog.LinearAttrs:
		e.i32(int32(a.OutChannels))
		e.u8(uint8(a.Activation))
		e.boolean(a.UseBias)
	case catalog.Conv2DAttrs:
		e.i32(int32(a.OutChannels))
		e.i32(int32(a.KernelH))
		e.i32(int32(a.KernelW))
		e.i32(int32(a.StrideH))
		e.i32(int32(a.StrideW))
		e.i32(int32(a.PaddingH))
		e.i32(int32(a.PaddingW))
		e.i32(int32(a.Groups))
		e.u8(uint8(a.Activation))
		e.boolean(a.UseBias)
	case catalog.ElementBinaryAttrs:
		// no fields beyond the kind, already carried by op.Kind.
	case catalog.ElementUnaryAttrs:
		e.f64(a.Scalar)
	case catalog.ConcatAttrs:
		e.i32(int32(a.Axis))
	case catalog.Pool2DAttrs:
		e.u8(uint8(a.PoolType))
		e.i32(int32(a.KernelH))
		e.i32(int32(a.KernelW))
		e.i32(int32(a.StrideH))
		e.i32(int32(a.StrideW))
		e.i32(int32(a.PaddingH))
		e.i32(int32(a.PaddingW))
		e.u8(uint8(a.Activation))
	case catalog.CastAttrs:
		e.u8(uint8(a.DType))
	case catalog.DropoutAttrs:
		e.f64(a.Rate)
		e.i64(a.Seed)
	case catalog.EmbeddingAttrs:
		e.i32(int32(a.NumEntries))
		e.i32(int32(a.OutDim))
	case catalog.FlatAttrs:
		// empty
	case catalog.GatherAttrs:
		e.i32(int32(a.Axis))
	case catalog.MultiHeadAttentionAttrs:
		e.i32(int32(a.NumHeads))
		e.i32(int32(a.KDim))
		e.i32(int32(a.VDim))
	case catalog.LayerNormAttrs:
		e.writeIntSlice(a.Axes)
		e.f64(a.Epsilon)
	case catalog.ReduceSumAttrs:
		e.writeIntSlice(a.Axes)
		e.boolean(a.KeepDims)
	case catalog.ReshapeAttrs:
		e.writeIntSlice(a.TargetShape)
	case catalog.SoftmaxAttrs:
		e.i32(int32(a.Axis))
	case catalog.TransposeAttrs:
		e.writeIntSlice(a.Permutation)
	case catalog.BatchMatmulAttrs:
		e.boolean(a.TransposeA)
		e.boolean(a.TransposeB)
	case catalog.SplitAttrs:
		e.i32(int32(a.Axis))
		e.writeIntSlice(a.Sizes)
	case catalog.TopKAttrs:
		e.i32(int32(a.K))
		e.i32(int32(a.Axis))
		e.boolean(a.Sorted)
	case catalog.GroupByAttrs:
		e.i32(int32(a.N))
	case catalog.AggregateAttrs:
		e.i32(int32(a.N))
		e.f64(a.LambdaBal)
	case catalog.AggregateSpecAttrs:
		e.i32(int32(a.N))
		e.f64(a.LambdaBal)
	case catalog.NoopAttrs:
		// empty
	case catalog.RepartitionAttrs:
		e.i32(int32(a.Dim))
		e.i32(int32(a.Degree))
		e.i32(int32(a.ParallelIdx))
	case catalog.ReplicateAttrs:
		e.i32(int32(a.Degree))
		e.i32(int32(a.ParallelIdx))
	case catalog.ReductionAttrs:
		e.i32(int32(a.Dim))
		e.i32(int32(a.Degree))
	case catalog.CombineAttrs:
		e.i32(int32(a.Dim))
	case catalog.FusedParallelAttrs:
		e.u32(uint32(len(a.Steps)))
		for _, step := range a.Steps {
			e.writeAttrs(step)
		}
	default:
		// An operator kind added to optypes without a matching case here
		// would silently serialize as kind-tag-only; writeOperator's kind
		// tag lets a reader at least recognize the record, but there is
		// currently one of these for every OpKind != Input/Fused.
		_ = optypes.Invalid
	}
}

func (e *encoder) writeIntSlice(xs []int) {
	e.u32(uint32(len(xs)))
	for _, x := range xs {
		e.i32(int32(x))
	}
}
