package catalog_test

import (
	"testing"

	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/types/shapes"
)

func dim(size int) shapes.ParallelDim {
	return shapes.ParallelDim{Size: size, Degree: 1, ParallelIdx: -1}
}

func replicaTail() shapes.ParallelDim {
	return shapes.ParallelDim{Size: 1, Degree: 1, ParallelIdx: -1, IsReplica: true}
}

// TestLinearDataParallel matches spec.md §8 scenario S1: a
// Linear(out=64) fed a repartitioned [batch=64,in=128] input produces a
// [batch=64,out=64] output.
func TestLinearDataParallel(t *testing.T) {
	in := shapes.ParallelTensorShape{
		Dims:  []shapes.ParallelDim{{Size: 64, Degree: 4, ParallelIdx: 0}, dim(128), replicaTail()},
		DType: shapes.Float,
	}
	attrs := catalog.LinearAttrs{OutChannels: 64}
	outs, err := catalog.Construct(attrs, []shapes.ParallelTensorShape{in})
	if err != nil {
		t.Fatalf("linear construct: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outs))
	}
	got := outs[0]
	if got.Rank() != 3 {
		t.Fatalf("expected rank 3 (batch, out, replica tail), got %d", got.Rank())
	}
	if got.Dims[0].Size != 64 || got.Dims[0].Degree != 4 {
		t.Fatalf("batch dim should carry the input's partitioning untouched, got %+v", got.Dims[0])
	}
	if got.Dims[1].Size != 64 {
		t.Fatalf("expected out_channels 64, got %d", got.Dims[1].Size)
	}
	if !got.Dims[2].IsReplica {
		t.Fatalf("expected the trailing replica dim to survive linear, got %+v", got.Dims[2])
	}
}

// TestAggregateShapeInference matches spec.md §8 scenario S2.
func TestAggregateShapeInference(t *testing.T) {
	gatePreds := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4), dim(8), dim(1)}, DType: shapes.Float}
	gateAssign := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4), dim(8), dim(1)}, DType: shapes.Int32}
	trueGateAssign := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4), dim(8), dim(1)}, DType: shapes.Int32}
	fullGate := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(3), dim(8), dim(1)}, DType: shapes.Float}
	expert := func() shapes.ParallelTensorShape {
		return shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(16), dim(32), dim(1)}, DType: shapes.Float}
	}

	attrs := catalog.AggregateAttrs{AggregationCommon: catalog.AggregationCommon{N: 3, LambdaBal: 0.1}}
	inputs := []shapes.ParallelTensorShape{gatePreds, gateAssign, trueGateAssign, fullGate, expert(), expert(), expert()}

	outs, err := catalog.Construct(attrs, inputs)
	if err != nil {
		t.Fatalf("aggregate construct: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outs))
	}
	want := []int{16, 8, 1}
	got := outs[0]
	if got.Rank() != len(want) {
		t.Fatalf("expected rank %d, got %d (%v)", len(want), got.Rank(), got)
	}
	for i, w := range want {
		if got.Dims[i].Size != w {
			t.Fatalf("dim %d: expected size %d, got %d", i, w, got.Dims[i].Size)
		}
	}
}

// TestAggregateAttrsEquality checks the attrs-equality half of spec.md §8
// scenario S2.
func TestAggregateAttrsEquality(t *testing.T) {
	a := catalog.AggregateAttrs{AggregationCommon: catalog.AggregationCommon{N: 3, LambdaBal: 0.1}}
	b := catalog.AggregateAttrs{AggregationCommon: catalog.AggregationCommon{N: 3, LambdaBal: 0.1}}
	if !a.Equal(b) {
		t.Fatalf("expected reconstructed AggregateAttrs to compare equal")
	}
	if !a.Equal(a) {
		t.Fatalf("expected AggregateAttrs to compare equal to itself")
	}
}

// TestAggregateAndAggregateSpecAreDistinctKinds resolves Open Question 1:
// Aggregate and AggregateSpec never compare equal to each other even with
// identical fields, since they are distinct sum-type members.
func TestAggregateAndAggregateSpecAreDistinctKinds(t *testing.T) {
	agg := catalog.AggregateAttrs{AggregationCommon: catalog.AggregationCommon{N: 3, LambdaBal: 0.1}}
	spec := catalog.AggregateSpecAttrs{AggregationCommon: catalog.AggregationCommon{N: 3, LambdaBal: 0.1}}
	if agg.Equal(spec) {
		t.Fatalf("Aggregate and AggregateSpec must never compare equal")
	}
	if agg.Kind() == spec.Kind() {
		t.Fatalf("Aggregate and AggregateSpec must be distinct operator kinds")
	}
}

// TestParamsOfRoundTrip is Testable Property 8: construct(params_of(o)) = o
// for every operator kind except noop (Open Question 2).
func TestParamsOfRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		attrs  catalog.Attrs
		inputs []shapes.ParallelTensorShape
	}{
		{
			name:   "linear",
			attrs:  catalog.LinearAttrs{OutChannels: 32, Activation: catalog.ActivationRelu},
			inputs: []shapes.ParallelTensorShape{{Dims: []shapes.ParallelDim{dim(8), dim(16)}, DType: shapes.Float}},
		},
		{
			name:   "transpose",
			attrs:  catalog.TransposeAttrs{Permutation: []int{1, 0}},
			inputs: []shapes.ParallelTensorShape{{Dims: []shapes.ParallelDim{dim(4), dim(6)}, DType: shapes.Float}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := catalog.ParamsOf(tc.attrs)
			if params == nil {
				t.Fatalf("expected non-nil params for %s", tc.name)
			}
			got, err := catalog.Construct(params, tc.inputs)
			if err != nil {
				t.Fatalf("construct(params_of(%s)): %v", tc.name, err)
			}
			want, err := catalog.Construct(tc.attrs, tc.inputs)
			if err != nil {
				t.Fatalf("construct(%s): %v", tc.name, err)
			}
			if len(got) != len(want) {
				t.Fatalf("output count mismatch: %d vs %d", len(got), len(want))
			}
			for i := range got {
				if !got[i].Equal(want[i]) {
					t.Fatalf("output %d mismatch: %v vs %v", i, got[i], want[i])
				}
			}
			if !params.Equal(tc.attrs) {
				t.Fatalf("params_of(%s) should compare equal to the original attrs", tc.name)
			}
		})
	}
}

// TestNoopExcludedFromParamsOf resolves Open Question 2: noop is valid for
// shape inference but params_of returns nil for it.
func TestNoopExcludedFromParamsOf(t *testing.T) {
	if catalog.ParamsOf(catalog.NoopAttrs{}) != nil {
		t.Fatalf("expected params_of(noop) == nil")
	}
	in := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4)}, DType: shapes.Float}
	outs, err := catalog.Construct(catalog.NoopAttrs{}, []shapes.ParallelTensorShape{in})
	if err != nil {
		t.Fatalf("noop construct: %v", err)
	}
	if !outs[0].Equal(in) {
		t.Fatalf("noop must be an identity in shape inference")
	}
}

// TestRepartitionRejectsNonDividingDegree matches spec.md §8 scenario S5.
func TestRepartitionRejectsNonDividingDegree(t *testing.T) {
	in := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(8)}, DType: shapes.Float}
	attrs := catalog.RepartitionAttrs{Dim: 0, Degree: 3, ParallelIdx: 0}
	if catalog.IsValid(attrs, []shapes.ParallelTensorShape{in}) {
		t.Fatalf("expected degree 3 over size 8 to be invalid")
	}
}

func TestConcatAxisMismatchRejected(t *testing.T) {
	a := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4), dim(8)}, DType: shapes.Float}
	b := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4), dim(9)}, DType: shapes.Float}
	_, err := catalog.Construct(catalog.ConcatAttrs{Axis: 0}, []shapes.ParallelTensorShape{a, b})
	if err == nil {
		t.Fatalf("expected concat with mismatched non-axis dims to fail")
	}
}

func TestSplitThenConcatRoundTrips(t *testing.T) {
	in := shapes.ParallelTensorShape{Dims: []shapes.ParallelDim{dim(4), dim(10)}, DType: shapes.Float}
	splitAttrs := catalog.SplitAttrs{Axis: 1, Sizes: []int{4, 6}}
	parts, err := catalog.Construct(splitAttrs, []shapes.ParallelTensorShape{in})
	if err != nil {
		t.Fatalf("split construct: %v", err)
	}
	concatAttrs := catalog.ConcatAttrs{Axis: 1}
	rejoined, err := catalog.Construct(concatAttrs, parts)
	if err != nil {
		t.Fatalf("concat construct: %v", err)
	}
	if !rejoined[0].Equal(in) {
		t.Fatalf("expected split-then-concat to round-trip, got %v", rejoined[0])
	}
}
