package serialize_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/internal/optypes"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/serialize"
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/williamberman/FlexFlow/types/shapes"
)

func buildTinyGraph(t *testing.T) *pcg.Model {
	t.Helper()
	m := pcg.NewModel()
	view := machineview.Make(2)

	input := &pcg.Operator{Kind: optypes.Input, MachineView: &view}
	m.NewOperator(input)
	inTensor := m.NewParallelTensor(input.ID, 0)
	inTensor.Shape = shapes.ParallelTensorShape{
		Dims:  []shapes.ParallelDim{{Size: 8, Degree: 2, ParallelIdx: 0}},
		DType: shapes.Float,
	}
	input.Outputs = []*pcg.ParallelTensor{inTensor}

	linear := &pcg.Operator{
		Kind:        optypes.Linear,
		Attrs:       catalog.LinearAttrs{OutChannels: 8, Activation: catalog.ActivationRelu, UseBias: true},
		Inputs:      []pcg.TensorRef{{OperatorID: input.ID, Slot: 0}},
		MachineView: &view,
	}
	m.NewOperator(linear)
	out := m.NewParallelTensor(linear.ID, 0)
	out.Shape = inTensor.Shape.Clone()
	linear.Outputs = []*pcg.ParallelTensor{out}
	weight := m.NewParallelTensor(linear.ID, 0)
	weight.Shape = shapes.ParallelTensorShape{
		Dims:  []shapes.ParallelDim{{Size: 8, Degree: 1, ParallelIdx: -1}, {Size: 8, Degree: 1, ParallelIdx: -1}},
		DType: shapes.Float,
	}
	linear.Weights = []*pcg.ParallelTensor{weight}

	return m
}

func TestEncodeWritesAStableHeader(t *testing.T) {
	model := buildTinyGraph(t)

	buf, err := serialize.Encode(model)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) < 4+2+16+4 {
		t.Fatalf("encoded buffer too short for header: %d bytes", len(buf))
	}

	gotMagic := binary.BigEndian.Uint32(buf[0:4])
	if gotMagic != 0x46464752 {
		t.Fatalf("unexpected magic %x", gotMagic)
	}
	gotVersion := binary.BigEndian.Uint16(buf[4:6])
	if gotVersion != 1 {
		t.Fatalf("unexpected version %d", gotVersion)
	}
	buildID := model.BuildID
	if !bytes.Equal(buf[6:22], buildID[:]) {
		t.Fatalf("encoded build id does not match model.BuildID")
	}
	opCount := binary.BigEndian.Uint32(buf[22:26])
	if opCount != 2 {
		t.Fatalf("expected 2 operators in the header count, got %d", opCount)
	}
}

func TestEncodeIsDeterministicAcrossCalls(t *testing.T) {
	model := buildTinyGraph(t)

	first, err := serialize.Encode(model)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := serialize.Encode(model)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("encoding the same graph twice produced different buffers")
	}
}

func TestWritePropagatesWriterErrors(t *testing.T) {
	model := buildTinyGraph(t)
	if err := serialize.Write(failingWriter{}, model); err == nil {
		t.Fatalf("expected Write to surface the underlying writer's error")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errWriteFailed
}

var errWriteFailed = errWrite{}

type errWrite struct{}

func (errWrite) Error() string { return "simulated write failure" }
